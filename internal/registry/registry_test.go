// File: internal/registry/registry_test.go
package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
)

// stubValidator rejects content containing the word "forbidden".
type stubValidator struct{}

func (stubValidator) Validate(content string, _ *schemas.ConversationState) schemas.ValidationResult {
	if content == "forbidden" {
		return schemas.Invalid(schemas.SeverityCritical, schemas.CategoryPromptInjection, "blocked")
	}
	return schemas.Valid()
}

func noopHandler(ctx context.Context, args schemas.ActionArgs, state *schemas.ConversationState) ([]schemas.Command, error) {
	return []schemas.Command{schemas.UpdateContext(map[string]any{"ran": true})}, nil
}

func testDefinition(id string, mode schemas.ActionMode) schemas.ActionDefinition {
	return schemas.ActionDefinition{
		ID:          id,
		Name:        "Test " + id,
		Description: "A test action.",
		Category:    schemas.CategoryCart,
		Mode:        mode,
		Parameters: schemas.ParameterSchema{
			Type: "object",
			Properties: map[string]schemas.ParameterSpec{
				"sku": {Type: "string"},
			},
		},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(stubValidator{}, nil, 16, zap.NewNop())
}

func TestRegisterAndGetTool(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Register(testDefinition("add_to_cart", schemas.ModeBoth), noopHandler))

	tool, ok := r.GetTool("add_to_cart")
	require.True(t, ok)
	assert.Equal(t, "add_to_cart", tool.Definition.ID)

	_, ok = r.GetTool("nope")
	assert.False(t, ok)
}

func TestRegisterDuplicateID(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Register(testDefinition("checkout", schemas.ModeB2C), noopHandler))

	err := r.Register(testDefinition("checkout", schemas.ModeB2C), noopHandler)
	require.Error(t, err)

	var dup *schemas.DuplicateActionError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "checkout", dup.ID)

	// The original registration must be untouched.
	tool, ok := r.GetTool("checkout")
	require.True(t, ok)
	assert.Equal(t, schemas.ModeB2C, tool.Definition.Mode)
}

func TestRegisterRejectsInvalidDefinition(t *testing.T) {
	r := newTestRegistry(t)

	def := testDefinition("bad", schemas.ModeBoth)
	def.Category = "astrology"
	require.Error(t, r.Register(def, noopHandler))

	def = testDefinition("bad", schemas.ModeBoth)
	require.Error(t, r.Register(def, nil))
}

func TestUpdateMergesAndKeepsID(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(testDefinition("search", schemas.ModeB2C), noopHandler))

	err := r.Update("search", schemas.ActionDefinition{Mode: schemas.ModeBoth, Description: "Updated."})
	require.NoError(t, err)

	tool, ok := r.GetTool("search")
	require.True(t, ok)
	assert.Equal(t, "search", tool.Definition.ID)
	assert.Equal(t, schemas.ModeBoth, tool.Definition.Mode)
	assert.Equal(t, "Updated.", tool.Definition.Description)
	assert.Equal(t, "Test search", tool.Definition.Name, "unset fields keep their values")
}

func TestUpdateUnknownID(t *testing.T) {
	r := newTestRegistry(t)
	require.Error(t, r.Update("ghost", schemas.ActionDefinition{}))
}

func TestUnregister(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(testDefinition("temp", schemas.ModeBoth), noopHandler))

	r.Unregister("temp")
	_, ok := r.GetTool("temp")
	assert.False(t, ok)

	// Unregistering twice is harmless.
	r.Unregister("temp")
}

func TestGetToolsByFilter(t *testing.T) {
	r := newTestRegistry(t)

	both := testDefinition("compare", schemas.ModeBoth)
	both.Category = schemas.CategoryComparison
	require.NoError(t, r.Register(both, noopHandler))
	require.NoError(t, r.Register(testDefinition("checkout", schemas.ModeB2C), noopHandler))
	require.NoError(t, r.Register(testDefinition("request_quote", schemas.ModeB2B), noopHandler))

	ids := func(tools []*CompiledTool) []string {
		out := make([]string, len(tools))
		for i, tool := range tools {
			out[i] = tool.Definition.ID
		}
		return out
	}

	t.Run("mode both matches every mode filter", func(t *testing.T) {
		assert.Equal(t, []string{"checkout", "compare"}, ids(r.GetToolsBy(Filter{Mode: schemas.ModeB2C})))
		assert.Equal(t, []string{"compare", "request_quote"}, ids(r.GetToolsBy(Filter{Mode: schemas.ModeB2B})))
	})

	t.Run("category filter", func(t *testing.T) {
		assert.Equal(t, []string{"checkout", "request_quote"}, ids(r.GetToolsBy(Filter{Category: schemas.CategoryCart})))
	})

	t.Run("no filter returns everything sorted", func(t *testing.T) {
		assert.Equal(t, []string{"checkout", "compare", "request_quote"}, ids(r.GetToolsBy(Filter{})))
	})
}

func TestToolCacheHitsAndInvalidation(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(testDefinition("cached", schemas.ModeBoth), noopHandler))

	first, _ := r.GetTool("cached")
	second, _ := r.GetTool("cached")
	assert.Same(t, first, second, "repeated lookups hit the cache")

	hits, _ := r.CacheStats()
	assert.GreaterOrEqual(t, hits, uint64(2))

	// A schema-bearing update invalidates the old entry.
	require.NoError(t, r.Update("cached", schemas.ActionDefinition{Name: "Renamed"}))
	third, _ := r.GetTool("cached")
	assert.NotSame(t, first, third)
	assert.Equal(t, "Renamed", third.Definition.Name)
}

func TestInvokeRunsHandler(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(testDefinition("run", schemas.ModeBoth), noopHandler))

	tool, _ := r.GetTool("run")
	state := schemas.NewConversationState("t1", schemas.ModeB2C)

	commands, err := tool.Invoke(context.Background(), schemas.ActionArgs{"sku": "A-1"}, state)
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, schemas.CmdUpdateContext, commands[0].Type)
}

func TestInvokeWrapsHandlerError(t *testing.T) {
	r := newTestRegistry(t)

	boom := errors.New("backend down")
	handler := func(ctx context.Context, args schemas.ActionArgs, state *schemas.ConversationState) ([]schemas.Command, error) {
		return nil, boom
	}
	require.NoError(t, r.Register(testDefinition("fail", schemas.ModeBoth), handler))

	tool, _ := r.GetTool("fail")
	_, err := tool.Invoke(context.Background(), schemas.ActionArgs{}, nil)
	require.Error(t, err)

	var exec *schemas.ActionExecutionError
	require.ErrorAs(t, err, &exec)
	assert.Equal(t, "fail", exec.ActionID)
	assert.ErrorIs(t, err, boom)
}

func TestInvokeRevalidatesArgs(t *testing.T) {
	r := newTestRegistry(t)

	def := testDefinition("strict", schemas.ModeBoth)
	def.Parameters.Required = []string{"sku"}
	def.Security = &schemas.SecurityConfig{RevalidateArgs: true}
	require.NoError(t, r.Register(def, noopHandler))

	tool, _ := r.GetTool("strict")

	t.Run("missing required argument", func(t *testing.T) {
		_, err := tool.Invoke(context.Background(), schemas.ActionArgs{}, nil)
		var val *schemas.ValidationError
		require.ErrorAs(t, err, &val)
	})

	t.Run("undeclared argument", func(t *testing.T) {
		_, err := tool.Invoke(context.Background(), schemas.ActionArgs{"sku": "A", "rogue": 1}, nil)
		var val *schemas.ValidationError
		require.ErrorAs(t, err, &val)
	})

	t.Run("valid arguments pass", func(t *testing.T) {
		_, err := tool.Invoke(context.Background(), schemas.ActionArgs{"sku": "A"}, nil)
		assert.NoError(t, err)
	})
}

func TestInvokeJudgeReview(t *testing.T) {
	r := newTestRegistry(t)

	def := testDefinition("guarded", schemas.ModeBoth)
	def.Security = &schemas.SecurityConfig{ValidateInput: true}
	require.NoError(t, r.Register(def, noopHandler))

	tool, _ := r.GetTool("guarded")

	_, err := tool.Invoke(context.Background(), schemas.ActionArgs{"sku": "forbidden"}, nil)
	var sec *schemas.SecurityViolationError
	require.ErrorAs(t, err, &sec)
	assert.Equal(t, schemas.SeverityCritical, sec.Result.Severity)

	_, err = tool.Invoke(context.Background(), schemas.ActionArgs{"sku": "fine"}, nil)
	assert.NoError(t, err)
}

func TestInvokeCallBudget(t *testing.T) {
	r := newTestRegistry(t)

	def := testDefinition("budgeted", schemas.ModeBoth)
	def.RateLimit = &schemas.RateLimitConfig{MaxCalls: 3, WindowMS: 60_000}
	require.NoError(t, r.Register(def, noopHandler))

	tool, _ := r.GetTool("budgeted")
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tool.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		_, err := tool.Invoke(context.Background(), schemas.ActionArgs{"sku": "A"}, nil)
		require.NoError(t, err, "call %d", i+1)
	}

	_, err := tool.Invoke(context.Background(), schemas.ActionArgs{"sku": "A"}, nil)
	var rl *schemas.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Greater(t, rl.RetryAfter, 0)

	// Advancing past the window restores the budget.
	clock = clock.Add(61 * time.Second)
	_, err = tool.Invoke(context.Background(), schemas.ActionArgs{"sku": "A"}, nil)
	assert.NoError(t, err)
}

func TestInvokeRecordsSamples(t *testing.T) {
	rec := NewPerfRecorder(zap.NewNop())
	r := New(stubValidator{}, rec, 16, zap.NewNop())
	require.NoError(t, r.Register(testDefinition("timed", schemas.ModeBoth), noopHandler))

	tool, _ := r.GetTool("timed")
	_, err := tool.Invoke(context.Background(), schemas.ActionArgs{"sku": "A"}, nil)
	require.NoError(t, err)

	stats := rec.Snapshot()
	require.Contains(t, stats, "timed")
	assert.Equal(t, 1, stats["timed"].Calls)
	assert.Equal(t, 0, stats["timed"].Failures)
}
