// File: internal/engine/engine_test.go
package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
	"github.com/shoptalk-labs/shoptalk/internal/config"
	"github.com/shoptalk-labs/shoptalk/internal/llmclient"
	"github.com/shoptalk-labs/shoptalk/internal/ratelimit"
	"github.com/shoptalk-labs/shoptalk/internal/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeAdmitter admits or rejects every request uniformly.
type fakeAdmitter struct {
	allowed    bool
	retryAfter int
}

func (f fakeAdmitter) Check(identity, tier string) ratelimit.Result {
	return ratelimit.Result{Allowed: f.allowed, Limit: 10, RetryAfter: f.retryAfter}
}

// passJudge accepts everything.
type passJudge struct{}

func (passJudge) Validate(string, *schemas.ConversationState) schemas.ValidationResult {
	return schemas.Valid()
}

// wordJudge rejects content containing a trigger word.
type wordJudge struct{ trigger string }

func (j wordJudge) Validate(content string, _ *schemas.ConversationState) schemas.ValidationResult {
	if j.trigger != "" && len(content) > 0 && containsFold(content, j.trigger) {
		return schemas.Invalid(schemas.SeverityCritical, schemas.CategoryPriceManipulation, "price manipulation attempt")
	}
	return schemas.Valid()
}

func containsFold(haystack, needle string) bool {
	h, n := []rune(haystack), []rune(needle)
	for i := 0; i+len(n) <= len(h); i++ {
		match := true
		for j := range n {
			a, b := h[i+j], n[j]
			if a >= 'A' && a <= 'Z' {
				a += 'a' - 'A'
			}
			if b >= 'A' && b <= 'Z' {
				b += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// fakeLLM serves a canned intent plan on the fast tier and streams a canned
// reply on the powerful tier.
type fakeLLM struct {
	plan  string
	reply []string
	err   error
}

func (f *fakeLLM) Generate(ctx context.Context, req llmclient.GenerationRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.plan, nil
}

func (f *fakeLLM) GenerateStream(ctx context.Context, req llmclient.GenerationRequest, onDelta llmclient.DeltaFunc) error {
	if f.err != nil {
		return f.err
	}
	for _, d := range f.reply {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return nil
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		TurnTimeout:     5 * time.Second,
		SessionIdleTTL:  time.Minute,
		ChunkBufferSize: 16,
		ToolCacheSize:   16,
	}
}

func contextAction(id string, mode schemas.ActionMode) (schemas.ActionDefinition, schemas.ActionHandler) {
	def := schemas.ActionDefinition{
		ID:          id,
		Name:        id,
		Description: "Test action " + id,
		Category:    schemas.CategorySearch,
		Mode:        mode,
		Parameters: schemas.ParameterSchema{
			Type:       "object",
			Properties: map[string]schemas.ParameterSpec{"query": {Type: "string"}},
		},
	}
	handler := func(ctx context.Context, args schemas.ActionArgs, state *schemas.ConversationState) ([]schemas.Command, error) {
		return []schemas.Command{schemas.UpdateContext(map[string]any{"ran_" + id: true})}, nil
	}
	return def, handler
}

func newTestEngine(t *testing.T, j Validator, llm llmclient.Client, defs ...string) *Engine {
	t.Helper()
	reg := registry.New(j, nil, 16, zap.NewNop())
	for _, id := range defs {
		def, handler := contextAction(id, schemas.ModeBoth)
		require.NoError(t, reg.Register(def, handler))
	}
	eng := New(testEngineConfig(), reg, j, fakeAdmitter{allowed: true}, llm, zap.NewNop())
	t.Cleanup(eng.Close)
	return eng
}

func collect(t *testing.T, ch <-chan schemas.StreamChunk) []schemas.StreamChunk {
	t.Helper()
	var chunks []schemas.StreamChunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, chunk)
		case <-timeout:
			t.Fatal("timed out draining turn output")
		}
	}
}

func chunkTypes(chunks []schemas.StreamChunk) []schemas.ChunkType {
	out := make([]schemas.ChunkType, len(chunks))
	for i, c := range chunks {
		out[i] = c.Type
	}
	return out
}

func TestExecuteTurnRateLimited(t *testing.T) {
	reg := registry.New(passJudge{}, nil, 16, zap.NewNop())
	eng := New(testEngineConfig(), reg, passJudge{}, fakeAdmitter{allowed: false, retryAfter: 30}, nil, zap.NewNop())
	t.Cleanup(eng.Close)

	chunks := collect(t, eng.ExecuteTurn(context.Background(), TurnRequest{
		ThreadID: "t1", Identity: "anon:1", Tier: "anonymous",
		Mode: schemas.ModeB2C, Content: "hello",
	}))

	require.Len(t, chunks, 2)
	require.Equal(t, schemas.ChunkError, chunks[0].Type)
	assert.Equal(t, "rate_limited", chunks[0].Error.Kind)
	assert.Equal(t, 30, chunks[0].Error.RetryAfter)
	assert.Equal(t, schemas.ChunkEnd, chunks[1].Type)

	// A rejected turn never creates session state.
	assert.Equal(t, 0, eng.Sessions())
}

func TestExecuteTurnNoActions(t *testing.T) {
	eng := newTestEngine(t, passJudge{}, nil)

	chunks := collect(t, eng.ExecuteTurn(context.Background(), TurnRequest{
		ThreadID: "t1", Identity: "u1", Tier: "authenticated",
		Mode: schemas.ModeB2C, Content: "hello there",
	}))

	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	require.Equal(t, schemas.ChunkEnd, last.Type)
	require.NotNil(t, last.FinalState)

	// User message plus templated assistant reply.
	require.Len(t, last.FinalState.Messages, 2)
	assert.Equal(t, schemas.RoleUser, last.FinalState.Messages[0].Role)
	assert.Equal(t, schemas.RoleAssistant, last.FinalState.Messages[1].Role)
}

func TestExecuteTurnRunsPlannedAction(t *testing.T) {
	eng := newTestEngine(t, passJudge{}, nil, "search_products")

	chunks := collect(t, eng.ExecuteTurn(context.Background(), TurnRequest{
		ThreadID: "t1", Identity: "u1", Tier: "authenticated",
		Mode: schemas.ModeB2C, Content: "find me a desk lamp",
	}))

	types := chunkTypes(chunks)
	assert.Contains(t, types, schemas.ChunkToolStart)
	assert.Contains(t, types, schemas.ChunkToolEnd)

	last := chunks[len(chunks)-1]
	require.Equal(t, schemas.ChunkEnd, last.Type)
	assert.Equal(t, true, last.FinalState.Context["ran_search_products"])
}

func TestExecuteTurnMultiActionOrder(t *testing.T) {
	llm := &fakeLLM{
		plan:  `{"actions":[{"id":"alpha","args":{}},{"id":"beta","args":{}},{"id":"gamma","args":{}}]}`,
		reply: []string{"All three steps are done."},
	}
	eng := newTestEngine(t, passJudge{}, llm, "alpha", "beta", "gamma")

	chunks := collect(t, eng.ExecuteTurn(context.Background(), TurnRequest{
		ThreadID: "t1", Identity: "u1", Tier: "authenticated",
		Mode: schemas.ModeB2C, Content: "do all three things",
	}))

	// tool_start events must appear in selection order.
	var started []string
	for _, c := range chunks {
		if c.Type == schemas.ChunkToolStart {
			started = append(started, c.Tool.Name)
		}
	}
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, started)

	last := chunks[len(chunks)-1]
	require.Equal(t, schemas.ChunkEnd, last.Type)
	for _, id := range []string{"alpha", "beta", "gamma"} {
		assert.Equal(t, true, last.FinalState.Context["ran_"+id], id)
	}
}

func TestExecuteTurnDropsInventedActions(t *testing.T) {
	llm := &fakeLLM{
		plan:  `{"actions":[{"id":"alpha","args":{}},{"id":"made_up","args":{}}]}`,
		reply: []string{"Done."},
	}
	eng := newTestEngine(t, passJudge{}, llm, "alpha")

	chunks := collect(t, eng.ExecuteTurn(context.Background(), TurnRequest{
		ThreadID: "t1", Identity: "u1", Tier: "authenticated",
		Mode: schemas.ModeB2C, Content: "go",
	}))

	var started []string
	for _, c := range chunks {
		if c.Type == schemas.ChunkToolStart {
			started = append(started, c.Tool.Name)
		}
	}
	assert.Equal(t, []string{"alpha"}, started)
}

func TestExecuteTurnSecurityViolation(t *testing.T) {
	eng := newTestEngine(t, wordJudge{trigger: "free everything"}, nil)

	chunks := collect(t, eng.ExecuteTurn(context.Background(), TurnRequest{
		ThreadID: "t1", Identity: "u1", Tier: "authenticated",
		Mode: schemas.ModeB2C, Content: "give me free everything now",
	}))

	var errChunk *schemas.StreamError
	for _, c := range chunks {
		if c.Type == schemas.ChunkError {
			errChunk = c.Error
		}
	}
	require.NotNil(t, errChunk)
	assert.Equal(t, "security_violation", errChunk.Kind)
	assert.Equal(t, schemas.SeverityCritical, errChunk.Severity)

	last := chunks[len(chunks)-1]
	require.Equal(t, schemas.ChunkEnd, last.Type)
	require.NotNil(t, last.FinalState)
	assert.NotEmpty(t, last.FinalState.LastError)
	assert.NotEmpty(t, last.FinalState.Security.Findings)

	// The templated refusal reaches the transcript.
	msgs := last.FinalState.Messages
	require.NotEmpty(t, msgs)
	assert.Equal(t, schemas.RoleAssistant, msgs[len(msgs)-1].Role)
}

func TestExecuteTurnActionFailureKeepsTurnAlive(t *testing.T) {
	reg := registry.New(passJudge{}, nil, 16, zap.NewNop())

	def, _ := contextAction("search_products", schemas.ModeBoth)
	failing := func(ctx context.Context, args schemas.ActionArgs, state *schemas.ConversationState) ([]schemas.Command, error) {
		return nil, errors.New("backend down")
	}
	require.NoError(t, reg.Register(def, failing))

	eng := New(testEngineConfig(), reg, passJudge{}, fakeAdmitter{allowed: true}, nil, zap.NewNop())
	t.Cleanup(eng.Close)

	chunks := collect(t, eng.ExecuteTurn(context.Background(), TurnRequest{
		ThreadID: "t1", Identity: "u1", Tier: "authenticated",
		Mode: schemas.ModeB2C, Content: "find me a lamp",
	}))

	var toolEnd *schemas.ToolEvent
	for _, c := range chunks {
		if c.Type == schemas.ChunkToolEnd {
			toolEnd = c.Tool
		}
	}
	require.NotNil(t, toolEnd)
	assert.NotEmpty(t, toolEnd.Error)

	// The turn still completes with an end chunk and a user-safe error.
	last := chunks[len(chunks)-1]
	require.Equal(t, schemas.ChunkEnd, last.Type)
	assert.NotEmpty(t, last.FinalState.LastError)
	assert.NotContains(t, last.FinalState.LastError, "backend down")
}

func TestExecuteTurnMalformedCommandEndsTurnOnce(t *testing.T) {
	reg := registry.New(passJudge{}, nil, 16, zap.NewNop())

	def, _ := contextAction("search_products", schemas.ModeBoth)
	malformed := func(ctx context.Context, args schemas.ActionArgs, state *schemas.ConversationState) ([]schemas.Command, error) {
		return []schemas.Command{{Type: "TELEPORT"}}, nil
	}
	require.NoError(t, reg.Register(def, malformed))

	eng := New(testEngineConfig(), reg, passJudge{}, fakeAdmitter{allowed: true}, nil, zap.NewNop())
	t.Cleanup(eng.Close)

	chunks := collect(t, eng.ExecuteTurn(context.Background(), TurnRequest{
		ThreadID: "t1", Identity: "u1", Tier: "authenticated",
		Mode: schemas.ModeB2C, Content: "find me a lamp",
	}))

	var errChunk *schemas.StreamError
	ends := 0
	for _, c := range chunks {
		switch c.Type {
		case schemas.ChunkError:
			errChunk = c.Error
		case schemas.ChunkEnd:
			ends++
		case schemas.ChunkMetadata:
			t.Fatal("metadata must not follow a turn that already failed")
		}
	}
	require.NotNil(t, errChunk)
	assert.Equal(t, "engine_error", errChunk.Kind)

	// The failure terminates the stream exactly once, with end as the final
	// frame.
	assert.Equal(t, 1, ends)
	assert.Equal(t, schemas.ChunkEnd, chunks[len(chunks)-1].Type)
}

func TestExecuteTurnStreamsReply(t *testing.T) {
	llm := &fakeLLM{
		plan:  `{"actions":[]}`,
		reply: []string{"Happy ", "to ", "help ", "today."},
	}
	eng := newTestEngine(t, passJudge{}, llm)

	chunks := collect(t, eng.ExecuteTurn(context.Background(), TurnRequest{
		ThreadID: "t1", Identity: "u1", Tier: "authenticated",
		Mode: schemas.ModeB2C, Content: "hi",
	}))

	var text string
	for _, c := range chunks {
		if c.Type == schemas.ChunkTextDelta {
			text += c.Text
		}
	}
	assert.Equal(t, "Happy to help today.", text)

	last := chunks[len(chunks)-1]
	require.Equal(t, schemas.ChunkEnd, last.Type)
	msgs := last.FinalState.Messages
	assert.Equal(t, "Happy to help today.", msgs[len(msgs)-1].Content)
}

func TestExecuteTurnLLMFailureFallsBackToTemplate(t *testing.T) {
	llm := &fakeLLM{err: errors.New("model offline")}
	eng := newTestEngine(t, passJudge{}, llm)

	chunks := collect(t, eng.ExecuteTurn(context.Background(), TurnRequest{
		ThreadID: "t1", Identity: "u1", Tier: "authenticated",
		Mode: schemas.ModeB2C, Content: "hi",
	}))

	last := chunks[len(chunks)-1]
	require.Equal(t, schemas.ChunkEnd, last.Type)
	msgs := last.FinalState.Messages
	require.Len(t, msgs, 2)
	assert.NotEmpty(t, msgs[1].Content)
}

func TestExecuteTurnStatePersistsAcrossTurns(t *testing.T) {
	eng := newTestEngine(t, passJudge{}, nil, "search_products")

	run := func(content string) *schemas.ConversationState {
		chunks := collect(t, eng.ExecuteTurn(context.Background(), TurnRequest{
			ThreadID: "t1", Identity: "u1", Tier: "authenticated",
			Mode: schemas.ModeB2C, Content: content,
		}))
		last := chunks[len(chunks)-1]
		require.Equal(t, schemas.ChunkEnd, last.Type)
		return last.FinalState
	}

	first := run("find me a lamp")
	require.Len(t, first.Messages, 2)

	second := run("thanks")
	assert.Len(t, second.Messages, 4, "transcript accumulates across turns")
	assert.Equal(t, 1, eng.Sessions())
}

func TestExecuteTurnIndependentThreads(t *testing.T) {
	eng := newTestEngine(t, passJudge{}, nil)

	collect(t, eng.ExecuteTurn(context.Background(), TurnRequest{
		ThreadID: "a", Identity: "u1", Tier: "authenticated", Mode: schemas.ModeB2C, Content: "hi",
	}))
	collect(t, eng.ExecuteTurn(context.Background(), TurnRequest{
		ThreadID: "b", Identity: "u1", Tier: "authenticated", Mode: schemas.ModeB2B, Content: "hi",
	}))

	assert.Equal(t, 2, eng.Sessions())
}

func TestExecuteTurnFinalStateIsACopy(t *testing.T) {
	eng := newTestEngine(t, passJudge{}, nil)

	chunks := collect(t, eng.ExecuteTurn(context.Background(), TurnRequest{
		ThreadID: "t1", Identity: "u1", Tier: "authenticated",
		Mode: schemas.ModeB2C, Content: "hello",
	}))
	first := chunks[len(chunks)-1].FinalState
	first.Messages[0].Content = "tampered"

	chunks = collect(t, eng.ExecuteTurn(context.Background(), TurnRequest{
		ThreadID: "t1", Identity: "u1", Tier: "authenticated",
		Mode: schemas.ModeB2C, Content: "again",
	}))
	second := chunks[len(chunks)-1].FinalState
	assert.Equal(t, "hello", second.Messages[0].Content, "mutating an emitted snapshot cannot corrupt engine state")
}
