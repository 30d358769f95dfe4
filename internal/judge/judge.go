// File: internal/judge/judge.go
// The Judge is the stateless multi-layer content validator that gates every
// inbound free-text turn and every financially significant action before its
// side effects commit.
package judge

import (
	"go.uber.org/zap"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
	"github.com/shoptalk-labs/shoptalk/internal/config"
)

// layer is one independent validation pass. Layers never see each other's
// results; the Judge picks the single worst failure afterwards.
type layer interface {
	name() string
	validate(content string, state *schemas.ConversationState) []schemas.ValidationResult
}

// Judge runs the prompt-injection, price-manipulation and business-rule
// layers over a piece of content. It holds no per-conversation state.
type Judge struct {
	layers []layer
	logger *zap.Logger
}

// New builds a Judge from the configured policy table.
func New(cfg config.JudgeConfig, logger *zap.Logger) *Judge {
	p := cfg.Policy
	return &Judge{
		logger: logger.Named("judge"),
		layers: []layer{
			newInjectionLayer(p),
			newPriceLayer(p),
			newBusinessLayer(p),
		},
	}
}

// Validate runs all layers and returns the single worst-severity failure, or
// a valid result when every layer passes. Ties on severity keep the earliest
// layer's finding.
func (j *Judge) Validate(content string, state *schemas.ConversationState) schemas.ValidationResult {
	worst := schemas.Valid()
	worstScore := 0

	for _, l := range j.layers {
		for _, r := range l.validate(content, state) {
			if r.IsValid {
				continue
			}
			if score := r.Severity.Score(); score > worstScore {
				worst = r
				worstScore = score
			}
		}
	}

	if !worst.IsValid {
		j.logger.Warn("Content rejected",
			zap.String("category", string(worst.Category)),
			zap.String("severity", string(worst.Severity)),
			zap.String("reason", worst.Reason))
	}
	return worst
}
