// File: internal/commerce/client.go
// The commerce-data client is an external collaborator with a stable
// contract. The engine and bulk pipeline depend only on the Client interface;
// vendor-specific normalization happens behind it.
package commerce

import "context"

// Product is the canonical product view the unified data layer exposes.
type Product struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Available   bool    `json:"available"`
	Stock       int     `json:"stock"`
}

// SearchQuery narrows a product search.
type SearchQuery struct {
	Text     string  `json:"text"`
	Category string  `json:"category,omitempty"`
	MaxPrice float64 `json:"max_price,omitempty"`
	Limit    int     `json:"limit,omitempty"`
}

// CartLine is one mutation of the remote cart.
type CartLine struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Cart is the authoritative cart the backend returns after every mutation.
type Cart struct {
	ID       string     `json:"id"`
	Items    []CartItem `json:"items"`
	Subtotal float64    `json:"subtotal"`
	Total    float64    `json:"total"`
	Currency string     `json:"currency"`
}

// CartItem is one line of the remote cart.
type CartItem struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// CheckoutResult reports the outcome of a checkout submission.
type CheckoutResult struct {
	OrderID string  `json:"order_id"`
	Total   float64 `json:"total"`
	Status  string  `json:"status"`
}

// CouponResult reports a coupon application.
type CouponResult struct {
	Applied  bool    `json:"applied"`
	Code     string  `json:"code"`
	Discount float64 `json:"discount"`
	Message  string  `json:"message,omitempty"`
}

// Client is the commerce-data contract. Each call is at-most-once from the
// engine's perspective; idempotency is the backend's concern.
type Client interface {
	SearchProducts(ctx context.Context, q SearchQuery) ([]Product, error)
	GetProduct(ctx context.Context, sku string) (*Product, error)
	AddToCart(ctx context.Context, cartID string, line CartLine) (*Cart, error)
	UpdateCart(ctx context.Context, cartID string, line CartLine) (*Cart, error)
	RemoveFromCart(ctx context.Context, cartID, sku string) (*Cart, error)
	ApplyCoupon(ctx context.Context, cartID, code string) (*CouponResult, error)
	Checkout(ctx context.Context, cartID string) (*CheckoutResult, error)
}
