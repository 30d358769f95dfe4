// File: internal/llmclient/gemini.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/shoptalk-labs/shoptalk/internal/config"
)

// GeminiClient implements Client against the Gemini API for one model.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

// NewGeminiClient initializes a client bound to a single model name.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, model string, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClient{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
		logger:      logger.Named("llm.gemini").With(zap.String("model", model)),
	}, nil
}

// Generate returns the complete response text for one exchange.
func (c *GeminiClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.UserPrompt), c.generationConfig(req))
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	return resp.Text(), nil
}

// GenerateStream forwards each token batch through onDelta as it arrives.
func (c *GeminiClient) GenerateStream(ctx context.Context, req GenerationRequest, onDelta DeltaFunc) error {
	for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, genai.Text(req.UserPrompt), c.generationConfig(req)) {
		if err != nil {
			return fmt.Errorf("llm stream failed: %w", err)
		}
		if text := resp.Text(); text != "" {
			if err := onDelta(text); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *GeminiClient) generationConfig(req GenerationRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	if req.ForceJSONFormat {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}
