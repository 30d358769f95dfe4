// File: api/schemas/schemas_test.go
package schemas

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeMatches(t *testing.T) {
	tests := []struct {
		declared  ActionMode
		requested ActionMode
		want      bool
	}{
		{ModeBoth, ModeB2C, true},
		{ModeBoth, ModeB2B, true},
		{ModeB2C, ModeB2C, true},
		{ModeB2C, ModeB2B, false},
		{ModeB2B, ModeB2C, false},
		{ModeB2B, "", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.declared.Matches(tt.requested),
			"%s vs %s", tt.declared, tt.requested)
	}
}

func TestSeverityOrdering(t *testing.T) {
	assert.Greater(t, SeverityCritical.Score(), SeverityHigh.Score())
	assert.Greater(t, SeverityHigh.Score(), SeverityMedium.Score())
	assert.Greater(t, SeverityMedium.Score(), SeverityLow.Score())
	assert.Greater(t, SeverityLow.Score(), Severity("").Score())
}

func TestSecurityContextRecord(t *testing.T) {
	var sc SecurityContext

	sc.Record(Valid())
	assert.Empty(t, sc.Findings, "passing results are not recorded")

	sc.Record(Invalid(SeverityMedium, CategoryBusinessRule, "too many units"))
	sc.Record(Invalid(SeverityCritical, CategoryPriceManipulation, "zero price"))
	sc.Record(Invalid(SeverityLow, CategoryPromptInjection, "odd encoding"))

	require.Len(t, sc.Findings, 3)
	assert.Equal(t, SeverityCritical, sc.WorstSeverity, "worst severity is sticky")
}

func TestUserMessageTemplates(t *testing.T) {
	sec := &SecurityViolationError{Result: Invalid(SeverityHigh, CategoryPromptInjection, "instruction override detected")}
	assert.Contains(t, UserMessage(sec), "instruction override detected")

	rl := &RateLimitError{RetryAfter: 30}
	assert.Contains(t, UserMessage(rl), "30 seconds")

	exec := &ActionExecutionError{ActionID: "checkout", Err: errors.New("backend down")}
	msg := UserMessage(exec)
	assert.NotContains(t, msg, "backend down", "internal detail stays out of user text")
	assert.Contains(t, msg, "try again")

	val := &ValidationError{Field: "sku", Reason: "required"}
	assert.Contains(t, UserMessage(val), "rephrase")

	assert.Contains(t, UserMessage(errors.New("???")), "unexpected error")
}

func TestUserMessageUnwrapsWrappedErrors(t *testing.T) {
	wrapped := EngineError("apply commands", &ActionExecutionError{ActionID: "x", Err: errors.New("nope")})
	assert.True(t, errors.Is(wrapped, ErrEngine))
}

func TestConversationStateClone(t *testing.T) {
	state := NewConversationState("t1", ModeB2C)
	state.Messages = append(state.Messages, Message{ID: "m1", Role: RoleUser, Content: "hi"})
	state.Cart.Items = append(state.Cart.Items, CartItem{SKU: "A", Quantity: 1})
	state.Context["key"] = "value"
	state.Security.Record(Invalid(SeverityLow, CategoryPromptInjection, "x"))

	clone := state.Clone()
	assert.Empty(t, cmp.Diff(state, clone))

	clone.Messages[0].Content = "tampered"
	clone.Cart.Items[0].Quantity = 99
	clone.Context["key"] = "tampered"
	clone.Security.Findings[0].Reason = "tampered"

	assert.Equal(t, "hi", state.Messages[0].Content)
	assert.Equal(t, 1, state.Cart.Items[0].Quantity)
	assert.Equal(t, "value", state.Context["key"])
	assert.Equal(t, "x", state.Security.Findings[0].Reason)
}

func TestActionDefinitionValidate(t *testing.T) {
	def := ActionDefinition{
		ID:          "search_products",
		Name:        "Search",
		Description: "Search the catalog.",
		Category:    CategorySearch,
		Mode:        ModeBoth,
		Parameters: ParameterSchema{
			Type:       "object",
			Properties: map[string]ParameterSpec{"query": {Type: "string"}},
		},
	}
	require.NoError(t, def.Validate())

	t.Run("missing id", func(t *testing.T) {
		d := def
		d.ID = ""
		assert.Error(t, d.Validate())
	})

	t.Run("unknown category", func(t *testing.T) {
		d := def
		d.Category = "warehouse"
		assert.Error(t, d.Validate())
	})

	t.Run("unknown mode", func(t *testing.T) {
		d := def
		d.Mode = "retail"
		assert.Error(t, d.Validate())
	})

	t.Run("missing parameter schema", func(t *testing.T) {
		d := def
		d.Parameters = ParameterSchema{}
		assert.Error(t, d.Validate())
	})
}
