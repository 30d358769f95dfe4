// File: internal/judge/business.go
package judge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
	"github.com/shoptalk-labs/shoptalk/internal/config"
)

var (
	quantityMentionRe = regexp.MustCompile(`(?i)\b(\d[\d,]*)\s*(units?|items?|pieces?|pcs|copies|qty|boxes|cases)\b`)

	availabilityOverrideRe = regexp.MustCompile(`(?i)(mark|set|flag|force|override)\s+(\S+\s+){0,3}?(as\s+)?(in[-\s]?stock|available|availability)`)
)

// businessLayer enforces mode-dependent commerce rules: quantity ceilings,
// cart-value bounds and per-mode restricted operations.
type businessLayer struct {
	policy config.JudgePolicy
}

func newBusinessLayer(p config.JudgePolicy) *businessLayer {
	return &businessLayer{policy: p}
}

func (l *businessLayer) name() string { return "business_rule" }

func (l *businessLayer) validate(content string, state *schemas.ConversationState) []schemas.ValidationResult {
	mode := schemas.ModeB2C
	if state != nil && state.Mode == schemas.ModeB2B {
		mode = schemas.ModeB2B
	}

	var findings []schemas.ValidationResult
	findings = append(findings, l.checkQuantities(content, mode)...)
	findings = append(findings, l.checkCartValue(state, mode)...)
	findings = append(findings, l.checkRestrictedOps(content, mode)...)

	if availabilityOverrideRe.MatchString(content) {
		findings = append(findings, schemas.Invalid(schemas.SeverityHigh, schemas.CategoryBusinessRule,
			"availability override is not permitted"))
	}
	return findings
}

func (l *businessLayer) maxQuantity(mode schemas.ActionMode) int {
	if mode == schemas.ModeB2B {
		return l.policy.B2BMaxQuantity
	}
	return l.policy.B2CMaxQuantity
}

func (l *businessLayer) cartBounds(mode schemas.ActionMode) (min, max float64) {
	if mode == schemas.ModeB2B {
		return l.policy.B2BMinCartValue, l.policy.B2BMaxCartValue
	}
	return l.policy.B2CMinCartValue, l.policy.B2CMaxCartValue
}

// checkQuantities matches natural-language quantity mentions against the
// mode's bounds.
func (l *businessLayer) checkQuantities(content string, mode schemas.ActionMode) []schemas.ValidationResult {
	ceiling := l.maxQuantity(mode)
	var findings []schemas.ValidationResult

	for _, m := range quantityMentionRe.FindAllStringSubmatch(content, -1) {
		raw := strings.ReplaceAll(m[1], ",", "")
		qty, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if qty < 1 {
			findings = append(findings, schemas.Invalid(schemas.SeverityMedium, schemas.CategoryBusinessRule,
				"quantity must be at least 1"))
		} else if qty > ceiling {
			findings = append(findings, schemas.Invalid(schemas.SeverityMedium, schemas.CategoryBusinessRule,
				fmt.Sprintf("quantity %d exceeds the %s limit of %d units", qty, mode, ceiling)))
		}
	}
	return findings
}

// checkCartValue compares the cart snapshot against the mode bounds. The
// minimum only applies once a checkout intent is active; browsing with a
// small cart is fine.
func (l *businessLayer) checkCartValue(state *schemas.ConversationState, mode schemas.ActionMode) []schemas.ValidationResult {
	if state == nil {
		return nil
	}
	min, max := l.cartBounds(mode)
	var findings []schemas.ValidationResult

	if state.Cart.Total > max {
		findings = append(findings, schemas.Invalid(schemas.SeverityHigh, schemas.CategoryBusinessRule,
			fmt.Sprintf("cart total %.2f exceeds the %s maximum of %.2f", state.Cart.Total, mode, max)))
	}
	if state.CheckoutIntent && state.Cart.Total > 0 && state.Cart.Total < min {
		findings = append(findings, schemas.Invalid(schemas.SeverityMedium, schemas.CategoryBusinessRule,
			fmt.Sprintf("cart total %.2f is below the %s checkout minimum of %.2f", state.Cart.Total, mode, min)))
	}
	return findings
}

// checkRestrictedOps flags operations the current mode does not offer.
func (l *businessLayer) checkRestrictedOps(content string, mode schemas.ActionMode) []schemas.ValidationResult {
	restricted := l.policy.B2CRestrictedOps
	if mode == schemas.ModeB2B {
		restricted = l.policy.B2BRestrictedOps
	}

	lower := strings.ToLower(content)
	var findings []schemas.ValidationResult
	for _, op := range restricted {
		if strings.Contains(lower, strings.ToLower(op)) {
			findings = append(findings, schemas.Invalid(schemas.SeverityHigh, schemas.CategoryBusinessRule,
				fmt.Sprintf("%q is not available in %s mode", op, mode)))
		}
	}
	return findings
}
