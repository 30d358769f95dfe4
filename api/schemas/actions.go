// File: api/schemas/actions.go
package schemas

import (
	"context"
	"fmt"
	"time"
)

// ActionCategory classifies what part of the shopping flow an action serves.
type ActionCategory string

const (
	CategorySearch     ActionCategory = "search"
	CategoryCart       ActionCategory = "cart"
	CategoryProduct    ActionCategory = "product"
	CategoryComparison ActionCategory = "comparison"
	CategoryNavigation ActionCategory = "navigation"
	CategoryCustomer   ActionCategory = "customer"
)

// ValidCategories lists every accepted action category.
var ValidCategories = []ActionCategory{
	CategorySearch, CategoryCart, CategoryProduct,
	CategoryComparison, CategoryNavigation, CategoryCustomer,
}

// IsValid reports whether the category is one of the known values.
func (c ActionCategory) IsValid() bool {
	for _, v := range ValidCategories {
		if c == v {
			return true
		}
	}
	return false
}

// ActionMode restricts an action to a storefront mode.
type ActionMode string

const (
	ModeB2C  ActionMode = "b2c"
	ModeB2B  ActionMode = "b2b"
	ModeBoth ActionMode = "both"
)

// IsValid reports whether the mode is one of the known values.
func (m ActionMode) IsValid() bool {
	return m == ModeB2C || m == ModeB2B || m == ModeBoth
}

// Matches reports whether an action declared with mode m is available under
// the requested storefront mode. Actions declared "both" match everything.
func (m ActionMode) Matches(requested ActionMode) bool {
	if requested == "" || m == ModeBoth {
		return true
	}
	return m == requested
}

// ParameterSpec describes a single declared parameter. The schema is an
// explicit data structure; nothing is inferred by reflection.
type ParameterSpec struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
}

// ParameterSchema is the declarative parameter contract of an action.
type ParameterSchema struct {
	Type       string                   `json:"type"`
	Properties map[string]ParameterSpec `json:"properties"`
	Required   []string                 `json:"required,omitempty"`
}

// SecurityConfig marks an action as requiring Judge review of its arguments
// before its side effects are committed.
type SecurityConfig struct {
	ValidateInput  bool `json:"validate_input"`
	Sensitive      bool `json:"sensitive"`
	RevalidateArgs bool `json:"revalidate_args"`
}

// RateLimitConfig is a per-action call budget, independent of the global
// request limiter. The window is carried as milliseconds on the wire.
type RateLimitConfig struct {
	MaxCalls int   `json:"max_calls"`
	WindowMS int64 `json:"window_ms"`
}

// Window returns the budget window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMS) * time.Millisecond
}

// ActionDefinition is the declarative description of an invocable commerce
// capability. The ID is immutable for the lifetime of the definition; updates
// supersede the whole definition rather than mutating it in place.
type ActionDefinition struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Category    ActionCategory   `json:"category"`
	Mode        ActionMode       `json:"mode"`
	Parameters  ParameterSchema  `json:"parameters"`
	Security    *SecurityConfig  `json:"security,omitempty"`
	RateLimit   *RateLimitConfig `json:"rate_limit,omitempty"`
}

// Validate checks the fields the registry requires before compilation.
func (d ActionDefinition) Validate() error {
	if d.ID == "" {
		return &ValidationError{Field: "id", Reason: "action id is required"}
	}
	if d.Name == "" {
		return &ValidationError{Field: "name", Reason: "action name is required"}
	}
	if d.Description == "" {
		return &ValidationError{Field: "description", Reason: "action description is required"}
	}
	if !d.Category.IsValid() {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", d.Category)}
	}
	if !d.Mode.IsValid() {
		return &ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", d.Mode)}
	}
	if d.Parameters.Type == "" || d.Parameters.Properties == nil {
		return &ValidationError{Field: "parameters", Reason: "parameter schema is required"}
	}
	return nil
}

// ActionArgs are the arguments an action is invoked with, already decoded
// from the caller's JSON.
type ActionArgs map[string]any

// ActionHandler executes one action against the commerce backend and returns
// the ordered Commands describing its effect on conversation state. Handlers
// never mutate the state they are given.
type ActionHandler func(ctx context.Context, args ActionArgs, state *ConversationState) ([]Command, error)
