// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/freshalert/freshagent/internal/freshalert"
	"github.com/freshalert/freshagent/internal/spoonacular"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string                                                          `json:"name"`
	Description string                                                          `json:"description"`
	Parameters  map[string]any                                                  `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds available tools.
type Registry struct {
	tools       map[string]*Tool
	freshalert  *freshalert.Client
	spoonacular *spoonacular.Client
}

// NewRegistry creates a tool registry over the food integrations. Either
// client may be nil, in which case its tools report that the integration
// is not configured.
func NewRegistry(fa *freshalert.Client, sp *spoonacular.Client) *Registry {
	r := &Registry{
		tools:       make(map[string]*Tool),
		freshalert:  fa,
		spoonacular: sp,
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	// Inventory listing
	r.Register(&Tool{
		Name:        "get_user_products",
		Description: "Get all food products the user currently tracks, including brand, category, quantity, and expiration dates. Use this to answer questions about what the user has at home.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: r.handleGetUserProducts,
	})

	// Expired / expiring products
	r.Register(&Tool{
		Name:        "get_expired_products",
		Description: "Get products that have already expired, or that will expire within a given number of days. Use this for questions about spoiled food or what to use up soon.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"days": map[string]any{
					"type":        "integer",
					"description": "Optional: look ahead this many days for products about to expire. Omit to list only already-expired products.",
				},
			},
		},
		Handler: r.handleGetExpiredProducts,
	})

	// Food database search
	r.Register(&Tool{
		Name:        "search_product",
		Description: "Search the food database by product name or barcode. Use this to look up products the user mentions but does not track yet.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Product name or barcode to search for",
				},
			},
			"required": []string{"query"},
		},
		Handler: r.handleSearchProduct,
	})

	// Recipes from ingredients on hand
	r.Register(&Tool{
		Name:        "find_recipes_by_ingredients",
		Description: "Find recipes that use the given ingredients, preferring recipes that use the most of them. Pair with get_expired_products to suggest meals that use up food before it spoils.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ingredients": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Ingredients to cook with (e.g., [\"chicken\", \"rice\", \"broccoli\"])",
				},
				"number": map[string]any{
					"type":        "integer",
					"description": "Maximum number of recipes to return (default 5)",
				},
			},
			"required": []string{"ingredients"},
		},
		Handler: r.handleFindRecipesByIngredients,
	})

	// Recipe search with filters
	r.Register(&Tool{
		Name:        "search_recipes",
		Description: "Search for recipes by name with optional cuisine, diet, and time filters.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to search for (e.g., 'pasta', 'chicken curry')",
				},
				"cuisine": map[string]any{
					"type":        "string",
					"description": "Optional cuisine filter (e.g., italian, mexican, thai)",
				},
				"diet": map[string]any{
					"type":        "string",
					"description": "Optional diet filter (e.g., vegetarian, vegan, gluten free)",
				},
				"intolerances": map[string]any{
					"type":        "string",
					"description": "Optional comma-separated intolerances (e.g., dairy, peanut)",
				},
				"max_ready_minutes": map[string]any{
					"type":        "integer",
					"description": "Optional maximum total preparation time in minutes",
				},
				"number": map[string]any{
					"type":        "integer",
					"description": "Maximum number of recipes to return (default 5)",
				},
			},
			"required": []string{"query"},
		},
		Handler: r.handleSearchRecipes,
	})

	// Full recipe details
	r.Register(&Tool{
		Name:        "get_recipe_information",
		Description: "Get full details for one recipe: ingredients with amounts, instructions, servings, and dietary properties. Use after a recipe search when the user picks a recipe.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"recipe_id": map[string]any{
					"type":        "integer",
					"description": "The recipe ID from a previous search",
				},
			},
			"required": []string{"recipe_id"},
		},
		Handler: r.handleGetRecipeInformation,
	})
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, or nil if not registered.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tool definitions for the LLM, in stable order.
func (r *Registry) List() []map[string]any {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]map[string]any, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with the given arguments.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}
	return tool.Handler(ctx, args)
}

// Tool handlers

func (r *Registry) handleGetUserProducts(ctx context.Context, args map[string]any) (string, error) {
	if r.freshalert == nil {
		return "", fmt.Errorf("Fresh Alert not configured")
	}

	products, err := r.freshalert.GetUserProducts(ctx)
	if err != nil {
		return "", err
	}

	if len(products) == 0 {
		return "The user is not tracking any products yet.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "The user tracks %d products:\n", len(products))
	for _, p := range products {
		sb.WriteString(formatProduct(p))
	}
	return sb.String(), nil
}

func (r *Registry) handleGetExpiredProducts(ctx context.Context, args map[string]any) (string, error) {
	if r.freshalert == nil {
		return "", fmt.Errorf("Fresh Alert not configured")
	}

	days := 0
	if d, ok := args["days"].(float64); ok {
		days = int(d)
	}

	products, err := r.freshalert.GetExpiredProducts(ctx, days)
	if err != nil {
		return "", err
	}

	if len(products) == 0 {
		if days > 0 {
			return fmt.Sprintf("No products expire within the next %d days.", days), nil
		}
		return "No expired products. Everything is still fresh.", nil
	}

	var sb strings.Builder
	if days > 0 {
		fmt.Fprintf(&sb, "%d products expire within %d days:\n", len(products), days)
	} else {
		fmt.Fprintf(&sb, "%d products have expired:\n", len(products))
	}
	for _, p := range products {
		sb.WriteString(formatProduct(p))
	}
	return sb.String(), nil
}

func (r *Registry) handleSearchProduct(ctx context.Context, args map[string]any) (string, error) {
	if r.freshalert == nil {
		return "", fmt.Errorf("Fresh Alert not configured")
	}

	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	results, err := r.freshalert.SearchProducts(ctx, query)
	if err != nil {
		return "", err
	}

	if len(results) == 0 {
		return fmt.Sprintf("No products found matching '%s'.", query), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d products matching '%s':\n", len(results), query)
	for _, p := range results {
		name := p.ProductName
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&sb, "- %s", name)
		if p.Brands != "" {
			fmt.Fprintf(&sb, " (%s)", p.Brands)
		}
		if p.Code != "" {
			fmt.Fprintf(&sb, " [barcode %s]", p.Code)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (r *Registry) handleFindRecipesByIngredients(ctx context.Context, args map[string]any) (string, error) {
	if r.spoonacular == nil {
		return "", fmt.Errorf("Spoonacular not configured")
	}

	ingredients := stringSlice(args["ingredients"])
	if len(ingredients) == 0 {
		return "", fmt.Errorf("ingredients is required")
	}

	number := 0
	if n, ok := args["number"].(float64); ok {
		number = int(n)
	}

	recipes, err := r.spoonacular.FindByIngredients(ctx, ingredients, number)
	if err != nil {
		return "", err
	}

	if len(recipes) == 0 {
		return fmt.Sprintf("No recipes found using %s.", strings.Join(ingredients, ", ")), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d recipes using %s:\n", len(recipes), strings.Join(ingredients, ", "))
	for _, rec := range recipes {
		fmt.Fprintf(&sb, "- %s (id %d): uses %d of your ingredients, %d missing",
			rec.Title, rec.ID, rec.UsedIngredientCount, rec.MissedIngredientCount)
		if len(rec.MissedIngredients) > 0 {
			missing := make([]string, 0, len(rec.MissedIngredients))
			for _, ing := range rec.MissedIngredients {
				missing = append(missing, ing.Name)
			}
			fmt.Fprintf(&sb, " (%s)", strings.Join(missing, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (r *Registry) handleSearchRecipes(ctx context.Context, args map[string]any) (string, error) {
	if r.spoonacular == nil {
		return "", fmt.Errorf("Spoonacular not configured")
	}

	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	params := spoonacular.SearchParams{Query: query}
	params.Cuisine, _ = args["cuisine"].(string)
	params.Diet, _ = args["diet"].(string)
	params.Intolerance, _ = args["intolerances"].(string)
	if m, ok := args["max_ready_minutes"].(float64); ok {
		params.MaxReadyMin = int(m)
	}
	if n, ok := args["number"].(float64); ok {
		params.Number = int(n)
	}

	recipes, err := r.spoonacular.ComplexSearch(ctx, params)
	if err != nil {
		return "", err
	}

	if len(recipes) == 0 {
		return fmt.Sprintf("No recipes found for '%s'.", query), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d recipes for '%s':\n", len(recipes), query)
	for _, rec := range recipes {
		fmt.Fprintf(&sb, "- %s (id %d)", rec.Title, rec.ID)
		if rec.ReadyInMinutes > 0 {
			fmt.Fprintf(&sb, ", ready in %d min", rec.ReadyInMinutes)
		}
		if rec.Servings > 0 {
			fmt.Fprintf(&sb, ", serves %d", rec.Servings)
		}
		if len(rec.Diets) > 0 {
			fmt.Fprintf(&sb, " [%s]", strings.Join(rec.Diets, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (r *Registry) handleGetRecipeInformation(ctx context.Context, args map[string]any) (string, error) {
	if r.spoonacular == nil {
		return "", fmt.Errorf("Spoonacular not configured")
	}

	id, ok := args["recipe_id"].(float64)
	if !ok {
		return "", fmt.Errorf("recipe_id is required")
	}

	rec, err := r.spoonacular.GetRecipeInformation(ctx, int(id))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", rec.Title)
	if rec.ReadyInMinutes > 0 {
		fmt.Fprintf(&sb, "Ready in: %d minutes\n", rec.ReadyInMinutes)
	}
	if rec.Servings > 0 {
		fmt.Fprintf(&sb, "Servings: %d\n", rec.Servings)
	}
	var dietary []string
	if rec.Vegan {
		dietary = append(dietary, "vegan")
	} else if rec.Vegetarian {
		dietary = append(dietary, "vegetarian")
	}
	if rec.GlutenFree {
		dietary = append(dietary, "gluten-free")
	}
	if rec.DairyFree {
		dietary = append(dietary, "dairy-free")
	}
	if len(dietary) > 0 {
		fmt.Fprintf(&sb, "Dietary: %s\n", strings.Join(dietary, ", "))
	}
	if len(rec.ExtendedIngredients) > 0 {
		sb.WriteString("Ingredients:\n")
		for _, ing := range rec.ExtendedIngredients {
			fmt.Fprintf(&sb, "- %s\n", ing.Original)
		}
	}
	if rec.Instructions != "" {
		fmt.Fprintf(&sb, "Instructions:\n%s\n", rec.Instructions)
	}
	if rec.SourceURL != "" {
		fmt.Fprintf(&sb, "Source: %s\n", rec.SourceURL)
	}
	return sb.String(), nil
}

// formatProduct renders one tracked product with its expiration status.
func formatProduct(p freshalert.Product) string {
	name := p.ProductName
	if name == "" {
		name = "(unnamed product)"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "- %s", name)
	if p.Brand != "" {
		fmt.Fprintf(&sb, " (%s)", p.Brand)
	}
	if p.Category != "" {
		fmt.Fprintf(&sb, ", %s", p.Category)
	}
	for _, d := range p.DateEntries {
		if d.Quantity > 0 {
			fmt.Fprintf(&sb, ", qty %g", d.Quantity)
		}
		if expiry := d.DateExpired; expiry != nil {
			fmt.Fprintf(&sb, ", %s", describeExpiry(*expiry))
		} else if best := d.DateBestBefore; best != nil {
			fmt.Fprintf(&sb, ", best before %s", best.Format("2006-01-02"))
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

// describeExpiry renders an expiration date relative to now.
func describeExpiry(t time.Time) string {
	days := int(time.Until(t).Hours() / 24)
	switch {
	case days < 0:
		return fmt.Sprintf("expired %d days ago (%s)", -days, t.Format("2006-01-02"))
	case days == 0:
		return fmt.Sprintf("expires today (%s)", t.Format("2006-01-02"))
	default:
		return fmt.Sprintf("expires in %d days (%s)", days, t.Format("2006-01-02"))
	}
}

// stringSlice coerces a JSON argument into a string slice. Accepts a real
// array or a comma-separated string, since models produce both.
func stringSlice(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
