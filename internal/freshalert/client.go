// Package freshalert provides a client for the Fresh Alert API.
package freshalert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/freshalert/freshagent/internal/httpkit"
)

// Client is a Fresh Alert REST API client. All requests authenticate with
// the user's bearer token; the API scopes results to that user.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new Fresh Alert client.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(3, 2*time.Second),
			httpkit.WithLogger(logger),
		),
	}
}

// DateEntry is one expiration-tracking record attached to a product.
type DateEntry struct {
	ID               string     `json:"id"`
	ProductID        string     `json:"productId"`
	DateManufactured *time.Time `json:"dateManufactured,omitempty"`
	DateBestBefore   *time.Time `json:"dateBestBefore,omitempty"`
	DateExpired      *time.Time `json:"dateExpired,omitempty"`
	Quantity         float64    `json:"quantity,omitempty"`
}

// Product is a tracked product with its date entries.
type Product struct {
	ID                 string      `json:"id"`
	CodeNumber         string      `json:"codeNumber,omitempty"`
	CodeType           string      `json:"codeType,omitempty"`
	ProductName        string      `json:"productName,omitempty"`
	Brand              string      `json:"brand,omitempty"`
	Category           string      `json:"category,omitempty"`
	Description        string      `json:"description,omitempty"`
	StorageInstruction string      `json:"storageInstruction,omitempty"`
	DateEntries        []DateEntry `json:"dateProductUsers,omitempty"`
}

// SearchResult is one hit from the product-code search service.
type SearchResult struct {
	Code        string `json:"code,omitempty"`
	ProductName string `json:"product_name,omitempty"`
	Brands      string `json:"brands,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// GetUserProducts retrieves all products tracked by the current user.
func (c *Client) GetUserProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.get(ctx, "/product/user", &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetExpiredProducts retrieves expired products. When days > 0 the API
// instead returns products expiring within that many days.
func (c *Client) GetExpiredProducts(ctx context.Context, days int) ([]Product, error) {
	path := "/product/user/expired"
	if days > 0 {
		path += "?days=" + strconv.Itoa(days)
	}
	var products []Product
	if err := c.get(ctx, path, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// SearchProducts searches the food database by name.
func (c *Client) SearchProducts(ctx context.Context, query string) ([]SearchResult, error) {
	// The search endpoint wraps results in a pagination envelope.
	var page struct {
		Count    int            `json:"count"`
		Products []SearchResult `json:"products"`
	}
	if err := c.get(ctx, "/product-code/search/"+url.PathEscape(query), &page); err != nil {
		return nil, err
	}
	return page.Products, nil
}

// get performs a GET request to the Fresh Alert API.
func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	// Drain and close to ensure connection reuse even on early return.
	defer httpkit.DrainAndClose(resp.Body, 4096)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return fmt.Errorf("fresh alert authentication failed (check bearer token)")
	case http.StatusNotFound:
		return fmt.Errorf("fresh alert resource not found: %s", path)
	default:
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return fmt.Errorf("fresh alert API error %d: %s", resp.StatusCode, body)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
