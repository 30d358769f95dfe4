// File: internal/llmclient/router.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shoptalk-labs/shoptalk/internal/config"
)

// Router implements Client and dispatches each request to the client for its
// tier. Requests without a tier go to the powerful model.
type Router struct {
	logger  *zap.Logger
	clients map[ModelTier]Client
}

// NewRouter wires a router from two tier clients.
func NewRouter(logger *zap.Logger, fast, powerful Client) (*Router, error) {
	if fast == nil {
		return nil, fmt.Errorf("fast tier client cannot be nil")
	}
	if powerful == nil {
		return nil, fmt.Errorf("powerful tier client cannot be nil")
	}
	return &Router{
		logger: logger.Named("llm_router"),
		clients: map[ModelTier]Client{
			TierFast:     fast,
			TierPowerful: powerful,
		},
	}, nil
}

// NewFromConfig builds routed Gemini clients for both tiers.
func NewFromConfig(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*Router, error) {
	fast, err := NewGeminiClient(ctx, cfg, cfg.FastModel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create fast-tier client: %w", err)
	}
	powerful, err := NewGeminiClient(ctx, cfg, cfg.PowerfulModel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create powerful-tier client: %w", err)
	}
	return NewRouter(logger, fast, powerful)
}

func (r *Router) pick(tier ModelTier) (Client, error) {
	if tier == "" {
		tier = TierPowerful
	}
	client, ok := r.clients[tier]
	if !ok {
		return nil, fmt.Errorf("no LLM client configured for tier %q", tier)
	}
	r.logger.Debug("Routing LLM request", zap.String("tier", string(tier)))
	return client, nil
}

// Generate dispatches a blocking generation to the tier's client.
func (r *Router) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	client, err := r.pick(req.Tier)
	if err != nil {
		return "", err
	}
	return client.Generate(ctx, req)
}

// GenerateStream dispatches a streaming generation to the tier's client.
func (r *Router) GenerateStream(ctx context.Context, req GenerationRequest, onDelta DeltaFunc) error {
	client, err := r.pick(req.Tier)
	if err != nil {
		return err
	}
	return client.GenerateStream(ctx, req, onDelta)
}
