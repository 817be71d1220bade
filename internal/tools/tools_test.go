package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/freshalert/freshagent/internal/freshalert"
	"github.com/freshalert/freshagent/internal/spoonacular"
)

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry(nil, nil)

	_, err := r.Execute(context.Background(), "launch_rocket", nil)
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	var unavailable *ErrToolUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrToolUnavailable, got %T: %v", err, err)
	}
	if unavailable.ToolName != "launch_rocket" {
		t.Errorf("unexpected tool name: %q", unavailable.ToolName)
	}
}

func TestExecuteUnconfiguredIntegration(t *testing.T) {
	r := NewRegistry(nil, nil)

	if _, err := r.Execute(context.Background(), "get_user_products", nil); err == nil {
		t.Error("expected error when Fresh Alert is not configured")
	}
	if _, err := r.Execute(context.Background(), "search_recipes", map[string]any{"query": "pasta"}); err == nil {
		t.Error("expected error when Spoonacular is not configured")
	}
}

func TestListStableOrder(t *testing.T) {
	r := NewRegistry(nil, nil)

	defs := r.List()
	if len(defs) != 6 {
		t.Fatalf("expected 6 builtin tools, got %d", len(defs))
	}
	var prev string
	for _, d := range defs {
		if d["type"] != "function" {
			t.Errorf("unexpected definition type: %v", d["type"])
		}
		fn := d["function"].(map[string]any)
		name := fn["name"].(string)
		if name < prev {
			t.Errorf("definitions out of order: %q after %q", name, prev)
		}
		prev = name
	}
}

func TestGetUserProducts(t *testing.T) {
	expiry := time.Now().UTC().AddDate(0, 0, 5)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/product/user" {
			t.Errorf("unexpected path: %s", req.URL.Path)
		}
		if req.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing bearer token: %q", req.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"p1","productName":"Whole Milk","brand":"Arla","category":"dairy",
			 "dateProductUsers":[{"id":"d1","productId":"p1","quantity":1,
			   "dateExpired":"` + expiry.Format(time.RFC3339) + `"}]}
		]`))
	}))
	defer srv.Close()

	r := NewRegistry(freshalert.NewClient(srv.URL, "test-token", nil), nil)
	out, err := r.Execute(context.Background(), "get_user_products", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "Whole Milk (Arla), dairy") {
		t.Errorf("product not rendered:\n%s", out)
	}
	if !strings.Contains(out, "expires in") {
		t.Errorf("expiry not rendered:\n%s", out)
	}
}

func TestGetExpiredProductsDaysArg(t *testing.T) {
	var gotDays string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotDays = req.URL.Query().Get("days")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	r := NewRegistry(freshalert.NewClient(srv.URL, "t", nil), nil)

	// JSON numbers arrive as float64.
	out, err := r.Execute(context.Background(), "get_expired_products", map[string]any{"days": float64(3)})
	if err != nil {
		t.Fatal(err)
	}
	if gotDays != "3" {
		t.Errorf("days query param = %q, want 3", gotDays)
	}
	if !strings.Contains(out, "No products expire within the next 3 days") {
		t.Errorf("unexpected empty-result text: %q", out)
	}

	out, err = r.Execute(context.Background(), "get_expired_products", nil)
	if err != nil {
		t.Fatal(err)
	}
	if gotDays != "" {
		t.Errorf("days param sent without argument: %q", gotDays)
	}
	if !strings.Contains(out, "Everything is still fresh") {
		t.Errorf("unexpected empty-result text: %q", out)
	}
}

func TestSearchProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.HasPrefix(req.URL.Path, "/product-code/search/") {
			t.Errorf("unexpected path: %s", req.URL.Path)
		}
		w.Write([]byte(`{"count":1,"products":[{"code":"4000417025005","product_name":"Hazelnut Spread","brands":"Nutoka"}]}`))
	}))
	defer srv.Close()

	r := NewRegistry(freshalert.NewClient(srv.URL, "t", nil), nil)
	out, err := r.Execute(context.Background(), "search_product", map[string]any{"query": "hazelnut"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Hazelnut Spread (Nutoka) [barcode 4000417025005]") {
		t.Errorf("search hit not rendered:\n%s", out)
	}

	if _, err := r.Execute(context.Background(), "search_product", nil); err == nil {
		t.Error("expected error for missing query")
	}
}

func TestFindRecipesByIngredients(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotQuery = req.URL.RawQuery
		w.Write([]byte(`[
			{"id":101,"title":"Chicken Fried Rice","usedIngredientCount":2,"missedIngredientCount":1,
			 "missedIngredients":[{"id":1,"name":"soy sauce"}]}
		]`))
	}))
	defer srv.Close()

	r := NewRegistry(nil, spoonacular.NewClient(srv.URL, "key", nil))
	out, err := r.Execute(context.Background(), "find_recipes_by_ingredients", map[string]any{
		"ingredients": []any{"chicken", "rice"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(gotQuery, "apiKey=key") {
		t.Errorf("api key missing from query: %s", gotQuery)
	}
	if !strings.Contains(gotQuery, "ranking=1") {
		t.Errorf("maximize-used-ingredients ranking missing: %s", gotQuery)
	}
	if !strings.Contains(out, "Chicken Fried Rice (id 101): uses 2 of your ingredients, 1 missing (soy sauce)") {
		t.Errorf("recipe not rendered:\n%s", out)
	}
}

func TestSearchRecipesFilters(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotQuery = req.URL.RawQuery
		w.Write([]byte(`{"results":[{"id":7,"title":"Pasta Primavera","readyInMinutes":25,"servings":4,"diets":["vegetarian"]}]}`))
	}))
	defer srv.Close()

	r := NewRegistry(nil, spoonacular.NewClient(srv.URL, "key", nil))
	out, err := r.Execute(context.Background(), "search_recipes", map[string]any{
		"query":             "pasta",
		"cuisine":           "italian",
		"diet":              "vegetarian",
		"max_ready_minutes": float64(30),
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"query=pasta", "cuisine=italian", "diet=vegetarian", "maxReadyTime=30"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query missing %q: %s", want, gotQuery)
		}
	}
	if !strings.Contains(out, "Pasta Primavera (id 7), ready in 25 min, serves 4 [vegetarian]") {
		t.Errorf("recipe not rendered:\n%s", out)
	}
}

func TestGetRecipeInformation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/recipes/42/information" {
			t.Errorf("unexpected path: %s", req.URL.Path)
		}
		w.Write([]byte(`{"id":42,"title":"Lentil Soup","servings":6,"readyInMinutes":45,
			"vegan":true,"glutenFree":true,
			"extendedIngredients":[{"id":1,"original":"2 cups red lentils"}],
			"instructions":"Simmer everything.","sourceUrl":"https://example.com/lentil"}`))
	}))
	defer srv.Close()

	r := NewRegistry(nil, spoonacular.NewClient(srv.URL, "key", nil))
	out, err := r.Execute(context.Background(), "get_recipe_information", map[string]any{"recipe_id": float64(42)})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Lentil Soup",
		"Servings: 6",
		"Dietary: vegan, gluten-free",
		"- 2 cups red lentils",
		"Simmer everything.",
		"https://example.com/lentil",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := r.Execute(context.Background(), "get_recipe_information", nil); err == nil {
		t.Error("expected error for missing recipe_id")
	}
}

func TestStringSlice(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"array", []any{"a", "b"}, []string{"a", "b"}},
		{"array with empties", []any{"a", "", 3}, []string{"a"}},
		{"comma string", "chicken, rice ,broccoli", []string{"chicken", "rice", "broccoli"}},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stringSlice(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("stringSlice(%v) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("stringSlice(%v)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDescribeExpiry(t *testing.T) {
	now := time.Now().UTC()
	if got := describeExpiry(now.AddDate(0, 0, -3)); !strings.Contains(got, "expired 3 days ago") {
		t.Errorf("past expiry: %q", got)
	}
	if got := describeExpiry(now.AddDate(0, 0, 5)); !strings.Contains(got, "expires in 4 days") && !strings.Contains(got, "expires in 5 days") {
		t.Errorf("future expiry: %q", got)
	}
}
