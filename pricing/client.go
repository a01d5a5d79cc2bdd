// Package pricing talks to the external price-search collaborator and runs
// the per-item lookup fan-out for unresolved ingredients.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// maxResponseSize bounds the search response body.
const maxResponseSize = 2 * 1024 * 1024 // 2MB

// Product is one ranked result from the price-search collaborator.
type Product struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Brand     string  `json:"brand,omitempty"`
	Price     float64 `json:"price"`
	UnitPrice float64 `json:"unitPrice,omitempty"`
	Quantity  string  `json:"quantity,omitempty"`
	Merchant  string  `json:"merchant,omitempty"`
	URL       string  `json:"url,omitempty"`
	ImageURL  string  `json:"imageUrl,omitempty"`
}

// Searcher is the price-search collaborator boundary: one item name in, a
// ranked product list out.
type Searcher interface {
	Search(ctx context.Context, item string) ([]Product, error)
}

// HTTPClient is the JSON-over-HTTP Searcher implementation.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient sets a custom underlying HTTP client.
func WithHTTPClient(c *http.Client) HTTPClientOption {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) HTTPClientOption {
	return func(h *HTTPClient) {
		h.logger = logger
	}
}

// NewHTTPClient creates a price-search client against the given base URL.
func NewHTTPClient(baseURL string, opts ...HTTPClientOption) *HTTPClient {
	h := &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// searchResponse is the collaborator's envelope.
type searchResponse struct {
	Products []Product `json:"products"`
}

// Search requests the first result page for one item, default sort.
func (h *HTTPClient) Search(ctx context.Context, item string) ([]Product, error) {
	q := url.Values{}
	q.Set("q", item)
	q.Set("page", "1")
	q.Set("sort", "default")

	reqURL := h.baseURL + "/search?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price search failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price search status %d", resp.StatusCode)
	}

	var envelope searchResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	return envelope.Products, nil
}
