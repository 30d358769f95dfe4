// File: internal/commerce/http_client.go
package commerce

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shoptalk-labs/shoptalk/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPClient talks to the commerce-data service over its REST API. Outbound
// calls share a token-bucket limiter so a burst of conversation turns cannot
// stampede the backend.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewHTTPClient builds the client from configuration.
func NewHTTPClient(cfg config.CommerceConfig, logger *zap.Logger) *HTTPClient {
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		logger:     logger.Named("commerce"),
	}
}

// SearchProducts queries the catalog.
func (c *HTTPClient) SearchProducts(ctx context.Context, q SearchQuery) ([]Product, error) {
	params := url.Values{}
	params.Set("q", q.Text)
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.MaxPrice > 0 {
		params.Set("max_price", strconv.FormatFloat(q.MaxPrice, 'f', 2, 64))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var products []Product
	if err := c.do(ctx, http.MethodGet, "/v1/products?"+params.Encode(), nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct fetches one product by SKU.
func (c *HTTPClient) GetProduct(ctx context.Context, sku string) (*Product, error) {
	var p Product
	if err := c.do(ctx, http.MethodGet, "/v1/products/"+url.PathEscape(sku), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// AddToCart adds a line to the cart and returns the authoritative cart.
func (c *HTTPClient) AddToCart(ctx context.Context, cartID string, line CartLine) (*Cart, error) {
	var cart Cart
	if err := c.do(ctx, http.MethodPost, "/v1/carts/"+url.PathEscape(cartID)+"/items", line, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// UpdateCart changes a line's quantity.
func (c *HTTPClient) UpdateCart(ctx context.Context, cartID string, line CartLine) (*Cart, error) {
	var cart Cart
	path := "/v1/carts/" + url.PathEscape(cartID) + "/items/" + url.PathEscape(line.SKU)
	if err := c.do(ctx, http.MethodPut, path, line, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// RemoveFromCart deletes a line.
func (c *HTTPClient) RemoveFromCart(ctx context.Context, cartID, sku string) (*Cart, error) {
	var cart Cart
	path := "/v1/carts/" + url.PathEscape(cartID) + "/items/" + url.PathEscape(sku)
	if err := c.do(ctx, http.MethodDelete, path, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// ApplyCoupon applies a coupon code to the cart.
func (c *HTTPClient) ApplyCoupon(ctx context.Context, cartID, code string) (*CouponResult, error) {
	var result CouponResult
	body := map[string]string{"code": code}
	if err := c.do(ctx, http.MethodPost, "/v1/carts/"+url.PathEscape(cartID)+"/coupon", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Checkout submits the cart.
func (c *HTTPClient) Checkout(ctx context.Context, cartID string) (*CheckoutResult, error) {
	var result CheckoutResult
	if err := c.do(ctx, http.MethodPost, "/v1/carts/"+url.PathEscape(cartID)+"/checkout", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do executes one throttled request and decodes the JSON response into out.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("commerce rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("commerce request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read commerce response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Commerce backend returned an error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("commerce backend returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode commerce response: %w", err)
	}
	return nil
}
