// File: internal/engine/engine.go
// The execution engine drives one conversation turn through the state
// machine: intent detection, enrichment, Judge validation, action execution
// through the registry, output validation, response formatting and streamed
// emission.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
	"github.com/shoptalk-labs/shoptalk/internal/config"
	"github.com/shoptalk-labs/shoptalk/internal/llmclient"
	"github.com/shoptalk-labs/shoptalk/internal/ratelimit"
	"github.com/shoptalk-labs/shoptalk/internal/registry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Admitter is the slice of the rate limiter the engine needs.
type Admitter interface {
	Check(identity, tier string) ratelimit.Result
}

// Validator gates content through the Judge.
type Validator interface {
	Validate(content string, state *schemas.ConversationState) schemas.ValidationResult
}

// TurnRequest is one inbound user turn.
type TurnRequest struct {
	ThreadID string
	Identity string
	Tier     string
	Mode     schemas.ActionMode
	Content  string
}

// Engine orchestrates turns. One Engine serves every thread; per-thread
// serialization lives in the session manager.
type Engine struct {
	cfg      config.EngineConfig
	logger   *zap.Logger
	registry *registry.Registry
	judge    Validator
	limiter  Admitter
	llm      llmclient.Client
	sessions *sessionManager
}

// New wires an engine. llm may be nil; intent detection and formatting then
// run on their deterministic fallbacks.
func New(cfg config.EngineConfig, reg *registry.Registry, j Validator, limiter Admitter, llm llmclient.Client, logger *zap.Logger) *Engine {
	log := logger.Named("engine")
	return &Engine{
		cfg:      cfg,
		logger:   log,
		registry: reg,
		judge:    j,
		limiter:  limiter,
		llm:      llm,
		sessions: newSessionManager(cfg.SessionIdleTTL, log),
	}
}

// Close tears the engine down: the session sweep stops and all sessions drop.
func (e *Engine) Close() {
	e.sessions.close()
}

// Sessions reports the number of live conversation threads.
func (e *Engine) Sessions() int {
	return e.sessions.count()
}

// ExecuteTurn runs one turn and returns its chunk sequence. The channel is
// closed when the turn ends or the consumer cancels ctx. Commands applied
// before a cancellation stay committed.
func (e *Engine) ExecuteTurn(ctx context.Context, req TurnRequest) <-chan schemas.StreamChunk {
	ch := make(chan schemas.StreamChunk, e.cfg.ChunkBufferSize)
	go func() {
		defer close(ch)
		e.runTurn(ctx, req, &emitter{ctx: ctx, ch: ch})
	}()
	return ch
}

// runTurn is the state machine for a single turn.
func (e *Engine) runTurn(ctx context.Context, req TurnRequest, out *emitter) {
	turnID := uuid.NewString()
	logger := e.logger.With(zap.String("turn_id", turnID), zap.String("thread_id", req.ThreadID))
	start := time.Now()
	st := StateReceived

	// Admission runs before anything else; a rejected turn never touches
	// conversation state.
	admission := e.limiter.Check(req.Identity, req.Tier)
	if !admission.Allowed {
		st = StateRateLimited
		logger.Warn("Turn rejected by rate limiter",
			zap.String("identity", req.Identity),
			zap.Int("retry_after", admission.RetryAfter))
		out.emit(schemas.ErrorChunk(schemas.StreamError{
			Kind:       "rate_limited",
			Message:    schemas.UserMessage(&schemas.RateLimitError{RetryAfter: admission.RetryAfter}),
			RetryAfter: admission.RetryAfter,
		}))
		out.emit(schemas.EndChunk(nil))
		return
	}

	// Holding the session lock for the whole turn serializes turns within a
	// thread; independent threads proceed concurrently.
	sess := e.sessions.get(req.ThreadID, req.Mode)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	state := sess.state

	turnCtx := ctx
	if e.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, e.cfg.TurnTimeout)
		defer cancel()
	}

	applyCommands(state, []schemas.Command{schemas.AddMessage(schemas.Message{
		ID:      uuid.NewString(),
		Role:    schemas.RoleUser,
		Content: req.Content,
	})})
	state.LastError = ""

	// Intent detection over the actions available in this mode.
	available := e.availableDefinitions(state.Mode)
	plan := e.detectIntent(turnCtx, req.Content, available)
	st = e.transition(logger, st, StateIntentDetected)

	applyCommands(state, []schemas.Command{schemas.UpdateContext(map[string]any{
		"last_turn_id": turnID,
		"last_plan":    planIDs(plan),
	})})
	state.CheckoutIntent = hasCheckoutIntent(plan)
	st = e.transition(logger, st, StateContextEnriched)

	// Input gate.
	if result := e.judge.Validate(req.Content, state); !result.IsValid {
		state.Security.Record(result)
		e.failTurn(logger, st, StateUnauthorized, state, out, &schemas.SecurityViolationError{Result: result}, schemas.StreamError{
			Kind:     "security_violation",
			Message:  schemas.UserMessage(&schemas.SecurityViolationError{Result: result}),
			Severity: result.Severity,
		})
		return
	}
	st = e.transition(logger, st, StateInputValidated)

	// Action execution, strictly in selection order. Failures become
	// SET_ERROR commands; the turn keeps going.
	st = e.transition(logger, st, StateActionsSelected)
	results, execErr := e.executeActions(turnCtx, logger, plan, state, out)
	if turnCtx.Err() != nil {
		logger.Info("Turn cancelled mid-execution; applied commands remain committed")
		return
	}
	if errors.Is(execErr, schemas.ErrEngine) {
		// A malformed command already ended the turn through failTurn.
		return
	}
	st = e.transition(logger, st, StateActionsExecuted)

	// Output gate over the draft the formatter will render.
	draft := buildDraft(state, results)
	if result := e.judge.Validate(draft, state); !result.IsValid {
		state.Security.Record(result)
		e.failTurn(logger, st, StateUnauthorized, state, out, &schemas.SecurityViolationError{Result: result}, schemas.StreamError{
			Kind:     "security_violation",
			Message:  schemas.UserMessage(&schemas.SecurityViolationError{Result: result}),
			Severity: result.Severity,
		})
		return
	}
	st = e.transition(logger, st, StateOutputValidated)

	// Response formatting, streamed as it is generated.
	replyText, fmtErr := e.formatResponse(turnCtx, state, results, out)
	if turnCtx.Err() != nil {
		logger.Info("Turn cancelled during formatting; applied commands remain committed")
		return
	}
	if fmtErr != nil {
		logger.Warn("Response formatting degraded to template", zap.Error(fmtErr))
	}
	st = e.transition(logger, st, StateResponseFormatted)

	applyCommands(state, []schemas.Command{schemas.AddMessage(schemas.Message{
		ID:      uuid.NewString(),
		Role:    schemas.RoleAssistant,
		Content: replyText,
	})})

	out.emit(schemas.Metadata(map[string]any{
		"turn_id":  turnID,
		"duration": time.Since(start).String(),
		"actions":  len(plan),
		"degraded": execErr != nil,
	}))
	out.emit(schemas.EndChunk(state.Clone()))
	st = e.transition(logger, st, StateEmitted)

	e.transition(logger, st, StateCompleted)
	logger.Info("Turn completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("actions", len(plan)))
}

// actionResult pairs an executed action with what it produced, in selection
// order.
type actionResult struct {
	Name     string
	Commands int
	Err      error
}

// executeActions invokes each planned action sequentially and applies its
// commands immediately, which keeps the commit order equal to selection
// order. The first handler error is returned for metadata but never aborts
// the turn.
func (e *Engine) executeActions(ctx context.Context, logger *zap.Logger, plan []PlannedAction, state *schemas.ConversationState, out *emitter) ([]actionResult, error) {
	var firstErr error
	results := make([]actionResult, 0, len(plan))

	for _, planned := range plan {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}

		tool, ok := e.registry.GetTool(planned.ID)
		if !ok {
			logger.Warn("Planned action is not registered", zap.String("action_id", planned.ID))
			continue
		}

		if !out.emit(schemas.ToolStart(tool.Definition.ID, planned.Args)) {
			return results, ctx.Err()
		}

		commands, err := tool.Invoke(ctx, planned.Args, state)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			userMsg := schemas.UserMessage(err)
			applyCommands(state, []schemas.Command{schemas.SetError(userMsg)})
			var sec *schemas.SecurityViolationError
			if errors.As(err, &sec) {
				state.Security.Record(sec.Result)
			}
			results = append(results, actionResult{Name: tool.Definition.ID, Err: err})
			out.emit(schemas.ToolEnd(tool.Definition.ID, nil, userMsg))
			continue
		}

		if err := applyCommands(state, commands); err != nil {
			// A malformed command is an engine bug, not a user problem.
			e.failTurn(logger, StateActionsSelected, StateError, state, out, schemas.EngineError("apply commands", err), schemas.StreamError{
				Kind:    "engine_error",
				Message: schemas.UserMessage(err),
			})
			return results, schemas.EngineError("apply commands", err)
		}

		results = append(results, actionResult{Name: tool.Definition.ID, Commands: len(commands)})
		out.emit(schemas.ToolEnd(tool.Definition.ID, map[string]any{"commands": len(commands)}, ""))
	}
	return results, firstErr
}

// failTurn converts an expected failure into a SET_ERROR command plus an
// in-band error chunk, emits the templated reply and ends the turn. The
// conversation itself survives.
func (e *Engine) failTurn(logger *zap.Logger, from, to TurnState, state *schemas.ConversationState, out *emitter, cause error, streamErr schemas.StreamError) {
	e.transition(logger, from, to)
	logger.Warn("Turn failed", zap.Error(cause))

	userMsg := streamErr.Message
	applyCommands(state, []schemas.Command{
		schemas.SetError(userMsg),
		schemas.AddMessage(schemas.Message{
			ID:      uuid.NewString(),
			Role:    schemas.RoleAssistant,
			Content: userMsg,
		}),
	})

	out.emit(schemas.ErrorChunk(streamErr))
	out.emit(schemas.TextDelta(userMsg))
	out.emit(schemas.EndChunk(state.Clone()))
}

func (e *Engine) transition(logger *zap.Logger, from, to TurnState) TurnState {
	logger.Debug("Turn state transition", zap.String("from", string(from)), zap.String("to", string(to)))
	return to
}

func (e *Engine) availableDefinitions(mode schemas.ActionMode) []schemas.ActionDefinition {
	tools := e.registry.GetToolsBy(registry.Filter{Mode: mode})
	defs := make([]schemas.ActionDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, t.Definition)
	}
	return defs
}

func planIDs(plan []PlannedAction) []string {
	ids := make([]string, len(plan))
	for i, a := range plan {
		ids[i] = a.ID
	}
	return ids
}
