// File: internal/registry/compile.go
package registry

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
)

// CompiledTool is the invocable form of an ActionDefinition bound to its
// handler. The wrapper adds structured logging, optional schema and Judge
// re-validation, an independent per-action call budget, and performance
// metrics. Handler errors are re-thrown; recovery is the engine's decision.
type CompiledTool struct {
	Definition schemas.ActionDefinition

	handler  schemas.ActionHandler
	judge    Validator
	recorder Recorder
	logger   *zap.Logger

	// Recent call timestamps for the per-action rate window.
	callMu sync.Mutex
	calls  []time.Time
	now    func() time.Time
}

// compile wraps the raw handler into a monitored tool.
func (r *Registry) compile(def schemas.ActionDefinition, handler schemas.ActionHandler) *CompiledTool {
	return &CompiledTool{
		Definition: def,
		handler:    handler,
		judge:      r.judge,
		recorder:   r.recorder,
		logger:     r.logger.With(zap.String("action_id", def.ID)),
		now:        time.Now,
	}
}

// Invoke executes the wrapped handler with the full pre/post pipeline.
func (t *CompiledTool) Invoke(ctx context.Context, args schemas.ActionArgs, state *schemas.ConversationState) ([]schemas.Command, error) {
	start := t.now()
	t.logger.Info("Executing action", zap.Any("args", args))

	if err := t.preflight(args, state); err != nil {
		t.record(start, false, err)
		return nil, err
	}

	commands, err := t.handler(ctx, args, state)
	if err != nil {
		wrapped := &schemas.ActionExecutionError{ActionID: t.Definition.ID, Err: err}
		t.record(start, false, wrapped)
		t.logger.Warn("Action failed",
			zap.Duration("duration", t.now().Sub(start)),
			zap.Error(err))
		return nil, wrapped
	}

	t.record(start, true, nil)
	t.logger.Info("Action completed",
		zap.Duration("duration", t.now().Sub(start)),
		zap.Int("commands", len(commands)))
	return commands, nil
}

// preflight runs schema re-validation, Judge review and the per-action rate
// window, in that order.
func (t *CompiledTool) preflight(args schemas.ActionArgs, state *schemas.ConversationState) error {
	sec := t.Definition.Security

	if sec != nil && sec.RevalidateArgs {
		if err := validateArgs(t.Definition.Parameters, args); err != nil {
			return err
		}
	}

	if sec != nil && sec.ValidateInput && t.judge != nil {
		for name, value := range args {
			s, ok := value.(string)
			if !ok {
				continue
			}
			if result := t.judge.Validate(s, state); !result.IsValid {
				t.logger.Warn("Judge rejected action argument",
					zap.String("arg", name),
					zap.String("severity", string(result.Severity)))
				return &schemas.SecurityViolationError{Result: result}
			}
		}
	}

	if rl := t.Definition.RateLimit; rl != nil && rl.MaxCalls > 0 {
		if err := t.checkCallBudget(*rl); err != nil {
			return err
		}
	}
	return nil
}

// checkCallBudget enforces the action's own call budget, windowed over recent
// call timestamps. This counter is independent of the global request limiter.
func (t *CompiledTool) checkCallBudget(rl schemas.RateLimitConfig) error {
	now := t.now()
	cutoff := now.Add(-rl.Window())

	t.callMu.Lock()
	defer t.callMu.Unlock()

	kept := t.calls[:0]
	for _, ts := range t.calls {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	t.calls = kept

	if len(t.calls) >= rl.MaxCalls {
		retry := int(math.Ceil(t.calls[0].Add(rl.Window()).Sub(now).Seconds()))
		if retry < 1 {
			retry = 1
		}
		return &schemas.RateLimitError{RetryAfter: retry}
	}
	t.calls = append(t.calls, now)
	return nil
}

func (t *CompiledTool) record(start time.Time, success bool, err error) {
	if t.recorder == nil {
		return
	}
	s := Sample{
		ActionID: t.Definition.ID,
		Duration: t.now().Sub(start),
		Success:  success,
		At:       t.now(),
	}
	if err != nil {
		s.Error = fmt.Sprintf("%v", err)
	}
	t.recorder.Record(s)
}
