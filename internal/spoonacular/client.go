// Package spoonacular provides a client for the Spoonacular recipe API.
package spoonacular

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/freshalert/freshagent/internal/httpkit"
)

// Client is a Spoonacular REST API client. Spoonacular authenticates with
// an apiKey query parameter rather than a header.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Spoonacular client.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(3, 2*time.Second),
			httpkit.WithLogger(logger),
		),
	}
}

// Ingredient is one ingredient of a recipe.
type Ingredient struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Original string  `json:"original,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
	Unit     string  `json:"unit,omitempty"`
}

// Recipe is a Spoonacular recipe. Not every endpoint fills every field;
// findByIngredients returns a slim shape while the information endpoint
// returns everything.
type Recipe struct {
	ID             int     `json:"id"`
	Title          string  `json:"title"`
	Image          string  `json:"image,omitempty"`
	Servings       int     `json:"servings,omitempty"`
	ReadyInMinutes int     `json:"readyInMinutes,omitempty"`
	SourceURL      string  `json:"sourceUrl,omitempty"`
	HealthScore    float64 `json:"healthScore,omitempty"`

	Cuisines []string `json:"cuisines,omitempty"`
	Diets    []string `json:"diets,omitempty"`

	Vegan      bool `json:"vegan,omitempty"`
	Vegetarian bool `json:"vegetarian,omitempty"`
	GlutenFree bool `json:"glutenFree,omitempty"`
	DairyFree  bool `json:"dairyFree,omitempty"`

	Summary      string `json:"summary,omitempty"`
	Instructions string `json:"instructions,omitempty"`

	ExtendedIngredients []Ingredient `json:"extendedIngredients,omitempty"`

	// Set by findByIngredients only.
	UsedIngredientCount   int          `json:"usedIngredientCount,omitempty"`
	MissedIngredientCount int          `json:"missedIngredientCount,omitempty"`
	MissedIngredients     []Ingredient `json:"missedIngredients,omitempty"`
	UsedIngredients       []Ingredient `json:"usedIngredients,omitempty"`
}

// FindByIngredients searches for recipes that use the given ingredients,
// ranked to maximize used ingredients.
func (c *Client) FindByIngredients(ctx context.Context, ingredients []string, number int) ([]Recipe, error) {
	if number <= 0 {
		number = 5
	}
	q := url.Values{}
	q.Set("ingredients", strings.Join(ingredients, ","))
	q.Set("number", strconv.Itoa(number))
	q.Set("ranking", "1")
	q.Set("ignorePantry", "true")

	var recipes []Recipe
	if err := c.get(ctx, "/recipes/findByIngredients", q, &recipes); err != nil {
		return nil, err
	}
	return recipes, nil
}

// SearchParams narrows a complex recipe search. Zero values are omitted.
type SearchParams struct {
	Query       string
	Cuisine     string
	Diet        string
	Intolerance string
	MaxReadyMin int
	Number      int
}

// ComplexSearch performs a recipe search with optional filters.
func (c *Client) ComplexSearch(ctx context.Context, params SearchParams) ([]Recipe, error) {
	q := url.Values{}
	q.Set("query", params.Query)
	if params.Cuisine != "" {
		q.Set("cuisine", params.Cuisine)
	}
	if params.Diet != "" {
		q.Set("diet", params.Diet)
	}
	if params.Intolerance != "" {
		q.Set("intolerances", params.Intolerance)
	}
	if params.MaxReadyMin > 0 {
		q.Set("maxReadyTime", strconv.Itoa(params.MaxReadyMin))
	}
	number := params.Number
	if number <= 0 {
		number = 5
	}
	q.Set("number", strconv.Itoa(number))
	q.Set("addRecipeInformation", "true")

	var page struct {
		Results      []Recipe `json:"results"`
		TotalResults int      `json:"totalResults"`
	}
	if err := c.get(ctx, "/recipes/complexSearch", q, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// GetRecipeInformation retrieves full details for one recipe.
func (c *Client) GetRecipeInformation(ctx context.Context, id int) (*Recipe, error) {
	q := url.Values{}
	q.Set("includeNutrition", "false")

	var recipe Recipe
	if err := c.get(ctx, fmt.Sprintf("/recipes/%d/information", id), q, &recipe); err != nil {
		return nil, err
	}
	return &recipe, nil
}

// get performs a GET request with the API key appended.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusPaymentRequired:
		return fmt.Errorf("spoonacular authentication failed (check API key)")
	case http.StatusNotFound:
		return fmt.Errorf("spoonacular resource not found: %s", path)
	default:
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return fmt.Errorf("spoonacular API error %d: %s", resp.StatusCode, body)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
