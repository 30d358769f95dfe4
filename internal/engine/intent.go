// File: internal/engine/intent.go
package engine

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
	"github.com/shoptalk-labs/shoptalk/internal/llmclient"
)

// PlannedAction is one step of the turn's action plan, in selection order.
type PlannedAction struct {
	ID   string             `json:"id"`
	Args schemas.ActionArgs `json:"args"`
}

// actionPlan is the JSON shape the fast-tier model returns.
type actionPlan struct {
	Actions []PlannedAction `json:"actions"`
}

var jsonBlockRegex = regexp.MustCompile("(?s)(?:```json\\s*|)(\\{.*\\})(?:```|)")

const intentSystemPrompt = `You are the action planner of a conversational shopping assistant.
Given the user's message and the list of available actions, respond ONLY with a
single JSON object of the form {"actions": [{"id": "<action_id>", "args": {...}}]}.
Select zero actions when the user is just chatting. Arguments must match each
action's declared parameters. Never invent action ids.`

// detectIntent asks the fast-tier model for an action plan. When the model is
// unavailable or returns garbage, a deterministic keyword fallback keeps the
// conversation usable.
func (e *Engine) detectIntent(ctx context.Context, content string, available []schemas.ActionDefinition) []PlannedAction {
	if e.llm != nil {
		if plan, ok := e.llmIntent(ctx, content, available); ok {
			return plan
		}
	}
	return keywordIntent(content, available)
}

func (e *Engine) llmIntent(ctx context.Context, content string, available []schemas.ActionDefinition) ([]PlannedAction, bool) {
	var catalog strings.Builder
	for _, def := range available {
		catalog.WriteString("- ")
		catalog.WriteString(def.ID)
		catalog.WriteString(": ")
		catalog.WriteString(def.Description)
		catalog.WriteString("\n")
	}

	resp, err := e.llm.Generate(ctx, llmclient.GenerationRequest{
		SystemPrompt:    intentSystemPrompt,
		UserPrompt:      "Available actions:\n" + catalog.String() + "\nUser message: " + content,
		Tier:            llmclient.TierFast,
		ForceJSONFormat: true,
	})
	if err != nil {
		e.logger.Warn("Intent detection LLM call failed, using keyword fallback", zap.Error(err))
		return nil, false
	}

	raw := strings.TrimSpace(resp)
	if m := jsonBlockRegex.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}

	var plan actionPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		e.logger.Warn("Unparseable intent plan, using keyword fallback",
			zap.String("raw", truncate(resp, 200)), zap.Error(err))
		return nil, false
	}

	// Drop anything the model invented.
	known := make(map[string]bool, len(available))
	for _, def := range available {
		known[def.ID] = true
	}
	valid := plan.Actions[:0]
	for _, a := range plan.Actions {
		if known[a.ID] {
			valid = append(valid, a)
		}
	}
	return valid, true
}

// keywordIntent is the deterministic fallback planner.
func keywordIntent(content string, available []schemas.ActionDefinition) []PlannedAction {
	known := make(map[string]bool, len(available))
	for _, def := range available {
		known[def.ID] = true
	}

	lower := strings.ToLower(content)
	var plan []PlannedAction
	add := func(id string, args schemas.ActionArgs) {
		if known[id] {
			plan = append(plan, PlannedAction{ID: id, Args: args})
		}
	}

	switch {
	case strings.Contains(lower, "checkout") || strings.Contains(lower, "place my order") || strings.Contains(lower, "place the order"):
		add("checkout", schemas.ActionArgs{})
	case strings.Contains(lower, "coupon") || strings.Contains(lower, "promo code"):
		if code := extractCouponCode(content); code != "" {
			add("apply_coupon", schemas.ActionArgs{"code": code})
		}
	case strings.Contains(lower, "compare"):
		add("compare_products", schemas.ActionArgs{"query": content})
	case strings.Contains(lower, "add") && strings.Contains(lower, "cart"):
		add("add_to_cart", schemas.ActionArgs{"query": content})
	case strings.Contains(lower, "remove") && strings.Contains(lower, "cart"):
		add("remove_from_cart", schemas.ActionArgs{"query": content})
	case strings.Contains(lower, "search") || strings.Contains(lower, "find") ||
		strings.Contains(lower, "show me") || strings.Contains(lower, "looking for"):
		add("search_products", schemas.ActionArgs{"query": content})
	}
	return plan
}

var couponCodeRe = regexp.MustCompile(`(?i)(?:coupon|promo)\s*(?:code)?\s*[:\s]\s*([A-Za-z0-9_-]{2,40})`)

func extractCouponCode(content string) string {
	if m := couponCodeRe.FindStringSubmatch(content); len(m) > 1 {
		return m[1]
	}
	return ""
}

// hasCheckoutIntent reports whether the plan includes a checkout step, which
// activates the Judge's cart-minimum rule.
func hasCheckoutIntent(plan []PlannedAction) bool {
	for _, a := range plan {
		if a.ID == "checkout" {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
