// File: internal/actions/builtin.go
// Built-in commerce actions. Each handler talks to the commerce client,
// then describes its effect on conversation state as an ordered Command
// list; it never mutates the state directly.
package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
	"github.com/shoptalk-labs/shoptalk/internal/commerce"
)

// Builtins returns the handler set the loader registers under the matching
// definition IDs. Definitions themselves ship in the action config file so
// operators can tune schemas and budgets without a rebuild.
func Builtins(client commerce.Client) map[string]schemas.ActionHandler {
	h := &handlers{client: client}
	return map[string]schemas.ActionHandler{
		"search_products":     h.searchProducts,
		"get_product_details": h.getProductDetails,
		"add_to_cart":         h.addToCart,
		"update_cart":         h.updateCart,
		"remove_from_cart":    h.removeFromCart,
		"apply_coupon":        h.applyCoupon,
		"checkout":            h.checkout,
		"compare_products":    h.compareProducts,
		"request_quote":       h.requestQuote,
	}
}

type handlers struct {
	client commerce.Client
}

func (h *handlers) searchProducts(ctx context.Context, args schemas.ActionArgs, state *schemas.ConversationState) ([]schemas.Command, error) {
	q := commerce.SearchQuery{
		Text:     stringArg(args, "query"),
		Category: stringArg(args, "category"),
		MaxPrice: floatArg(args, "max_price"),
		Limit:    intArg(args, "limit"),
	}
	if q.Limit <= 0 || q.Limit > 25 {
		q.Limit = 10
	}
	products, err := h.client.SearchProducts(ctx, q)
	if err != nil {
		return nil, &schemas.ActionExecutionError{ActionID: "search_products", Err: err}
	}
	return []schemas.Command{
		schemas.UpdateContext(map[string]any{
			"search_results": productSummaries(products),
			"search_query":   q.Text,
		}),
	}, nil
}

func (h *handlers) getProductDetails(ctx context.Context, args schemas.ActionArgs, state *schemas.ConversationState) ([]schemas.Command, error) {
	sku := stringArg(args, "sku")
	product, err := h.client.GetProduct(ctx, sku)
	if err != nil {
		return nil, &schemas.ActionExecutionError{ActionID: "get_product_details", Err: err}
	}
	return []schemas.Command{
		schemas.UpdateContext(map[string]any{"product_" + sku: *product}),
	}, nil
}

func (h *handlers) addToCart(ctx context.Context, args schemas.ActionArgs, state *schemas.ConversationState) ([]schemas.Command, error) {
	line := commerce.CartLine{SKU: stringArg(args, "sku"), Quantity: intArg(args, "quantity")}
	if line.Quantity <= 0 {
		line.Quantity = 1
	}
	cart, err := h.client.AddToCart(ctx, state.ThreadID, line)
	if err != nil {
		return nil, &schemas.ActionExecutionError{ActionID: "add_to_cart", Err: err}
	}
	return []schemas.Command{schemas.UpdateCart(toSnapshot(cart))}, nil
}

func (h *handlers) updateCart(ctx context.Context, args schemas.ActionArgs, state *schemas.ConversationState) ([]schemas.Command, error) {
	line := commerce.CartLine{SKU: stringArg(args, "sku"), Quantity: intArg(args, "quantity")}
	cart, err := h.client.UpdateCart(ctx, state.ThreadID, line)
	if err != nil {
		return nil, &schemas.ActionExecutionError{ActionID: "update_cart", Err: err}
	}
	return []schemas.Command{schemas.UpdateCart(toSnapshot(cart))}, nil
}

func (h *handlers) removeFromCart(ctx context.Context, args schemas.ActionArgs, state *schemas.ConversationState) ([]schemas.Command, error) {
	cart, err := h.client.RemoveFromCart(ctx, state.ThreadID, stringArg(args, "sku"))
	if err != nil {
		return nil, &schemas.ActionExecutionError{ActionID: "remove_from_cart", Err: err}
	}
	return []schemas.Command{schemas.UpdateCart(toSnapshot(cart))}, nil
}

func (h *handlers) applyCoupon(ctx context.Context, args schemas.ActionArgs, state *schemas.ConversationState) ([]schemas.Command, error) {
	code := strings.TrimSpace(stringArg(args, "code"))
	result, err := h.client.ApplyCoupon(ctx, state.ThreadID, code)
	if err != nil {
		return nil, &schemas.ActionExecutionError{ActionID: "apply_coupon", Err: err}
	}
	commands := []schemas.Command{
		schemas.UpdateContext(map[string]any{"coupon": *result}),
	}
	if !result.Applied {
		commands = append(commands, schemas.SetError(
			fmt.Sprintf("The coupon %q could not be applied. %s", code, result.Message)))
	}
	return commands, nil
}

func (h *handlers) checkout(ctx context.Context, args schemas.ActionArgs, state *schemas.ConversationState) ([]schemas.Command, error) {
	if len(state.Cart.Items) == 0 {
		return nil, &schemas.ValidationError{Field: "cart", Reason: "cannot check out an empty cart"}
	}
	result, err := h.client.Checkout(ctx, state.ThreadID)
	if err != nil {
		return nil, &schemas.ActionExecutionError{ActionID: "checkout", Err: err}
	}
	return []schemas.Command{
		schemas.UpdateContext(map[string]any{
			"order_id":     result.OrderID,
			"order_total":  result.Total,
			"order_status": result.Status,
		}),
		schemas.UpdateCart(schemas.CartSnapshot{Currency: state.Cart.Currency}),
	}, nil
}

// compareProducts fetches each requested SKU and records a side-by-side view
// in the conversation context. Partial failures surface per-SKU; one bad SKU
// does not sink the comparison.
func (h *handlers) compareProducts(ctx context.Context, args schemas.ActionArgs, state *schemas.ConversationState) ([]schemas.Command, error) {
	skus := stringSliceArg(args, "skus")
	if len(skus) < 2 {
		return nil, &schemas.ValidationError{Field: "skus", Reason: "comparison needs at least two SKUs"}
	}
	comparison := make([]map[string]any, 0, len(skus))
	for _, sku := range skus {
		product, err := h.client.GetProduct(ctx, sku)
		if err != nil {
			comparison = append(comparison, map[string]any{"sku": sku, "error": "not found"})
			continue
		}
		comparison = append(comparison, map[string]any{
			"sku":       product.SKU,
			"name":      product.Name,
			"price":     product.Price,
			"available": product.Available,
		})
	}
	return []schemas.Command{
		schemas.UpdateContext(map[string]any{"comparison": comparison}),
	}, nil
}

// requestQuote is the business-mode path: instead of checking out, the cart
// is packaged into a quote request for account-manager follow-up.
func (h *handlers) requestQuote(ctx context.Context, args schemas.ActionArgs, state *schemas.ConversationState) ([]schemas.Command, error) {
	if state.Mode != schemas.ModeB2B {
		return nil, &schemas.ValidationError{Field: "mode", Reason: "quotes are only available to business accounts"}
	}
	if len(state.Cart.Items) == 0 {
		return nil, &schemas.ValidationError{Field: "cart", Reason: "cannot quote an empty cart"}
	}
	return []schemas.Command{
		schemas.UpdateContext(map[string]any{
			"quote_requested": true,
			"quote_notes":     stringArg(args, "notes"),
			"quote_total":     state.Cart.Total,
		}),
	}, nil
}

func toSnapshot(cart *commerce.Cart) schemas.CartSnapshot {
	items := make([]schemas.CartItem, len(cart.Items))
	for i, it := range cart.Items {
		items[i] = schemas.CartItem{
			SKU:       it.SKU,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}
	return schemas.CartSnapshot{
		Items:    items,
		Subtotal: cart.Subtotal,
		Total:    cart.Total,
		Currency: cart.Currency,
	}
}

func productSummaries(products []commerce.Product) []map[string]any {
	out := make([]map[string]any, len(products))
	for i, p := range products {
		out[i] = map[string]any{
			"sku":       p.SKU,
			"name":      p.Name,
			"price":     p.Price,
			"available": p.Available,
		}
	}
	return out
}

func stringArg(args schemas.ActionArgs, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func stringSliceArg(args schemas.ActionArgs, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func intArg(args schemas.ActionArgs, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func floatArg(args schemas.ActionArgs, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
