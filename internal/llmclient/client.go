// File: internal/llmclient/client.go
package llmclient

import "context"

// ModelTier selects between the cheap/fast model and the powerful one.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierPowerful ModelTier = "powerful"
)

// GenerationRequest is a single prompt exchange.
type GenerationRequest struct {
	SystemPrompt    string
	UserPrompt      string
	Tier            ModelTier
	ForceJSONFormat bool
}

// DeltaFunc receives incremental text as the model produces it. Returning an
// error aborts generation.
type DeltaFunc func(delta string) error

// Client is the LLM contract the engine depends on.
type Client interface {
	// Generate returns the complete response text.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// GenerateStream emits the response incrementally through onDelta.
	GenerateStream(ctx context.Context, req GenerationRequest, onDelta DeltaFunc) error
}
