// File: api/schemas/errors.go
package schemas

import (
	"errors"
	"fmt"
)

// The error taxonomy. Expected failures (validation, security, rate limit,
// action execution) are recovered inside a turn and surfaced as Commands or
// stream events; only configuration-time and truly internal errors propagate
// as Go errors past the engine boundary.

// ValidationError reports malformed input or a bad action schema.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// DuplicateActionError is returned when registering an action id that already
// exists. This is an operator-facing configuration failure.
type DuplicateActionError struct {
	ID string
}

func (e *DuplicateActionError) Error() string {
	return fmt.Sprintf("action %q is already registered", e.ID)
}

// SecurityViolationError wraps a failed Judge result.
type SecurityViolationError struct {
	Result ValidationResult
}

func (e *SecurityViolationError) Error() string {
	return fmt.Sprintf("security violation (%s/%s): %s", e.Result.Category, e.Result.Severity, e.Result.Reason)
}

// RateLimitError is the admission rejection. RetryAfter is in seconds.
type RateLimitError struct {
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfter)
}

// ActionExecutionError wraps a handler failure. The wrapped error is for logs
// only; user-facing text is templated from the action name.
type ActionExecutionError struct {
	ActionID string
	Err      error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action %q failed: %v", e.ActionID, e.Err)
}

func (e *ActionExecutionError) Unwrap() error { return e.Err }

// ErrEngine marks unexpected internal failures (stream serialization, broken
// invariants). These terminate the stream with an error event.
var ErrEngine = errors.New("engine internal error")

// EngineError wraps an internal failure with ErrEngine so callers can match
// it with errors.Is.
func EngineError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrEngine, op, err)
}

// UserMessage maps an error onto the templated, user-safe text the engine
// emits. Raw internal detail never reaches the end user.
func UserMessage(err error) string {
	var sec *SecurityViolationError
	var rl *RateLimitError
	var exec *ActionExecutionError
	var val *ValidationError
	switch {
	case errors.As(err, &sec):
		return "I can't help with that request. " + sec.Result.Reason
	case errors.As(err, &rl):
		return fmt.Sprintf("You're sending requests too quickly. Please try again in %d seconds.", rl.RetryAfter)
	case errors.As(err, &exec):
		return "Something went wrong while completing that step. Please try again."
	case errors.As(err, &val):
		return "I couldn't understand part of that request. Could you rephrase it?"
	default:
		return "An unexpected error occurred. Please try again."
	}
}
