// File: internal/engine/state.go
package engine

// TurnState is the per-turn execution state machine. Transitions are strictly
// forward; the terminal states say how the turn ended, not whether the
// conversation survives (it always does, except on transport death).
type TurnState string

const (
	StateReceived          TurnState = "RECEIVED"
	StateIntentDetected    TurnState = "INTENT_DETECTED"
	StateContextEnriched   TurnState = "CONTEXT_ENRICHED"
	StateInputValidated    TurnState = "INPUT_VALIDATED"
	StateActionsSelected   TurnState = "ACTIONS_SELECTED"
	StateActionsExecuted   TurnState = "ACTIONS_EXECUTED"
	StateOutputValidated   TurnState = "OUTPUT_VALIDATED"
	StateResponseFormatted TurnState = "RESPONSE_FORMATTED"
	StateEmitted           TurnState = "EMITTED"

	StateCompleted    TurnState = "COMPLETED"
	StateError        TurnState = "ERROR"
	StateRateLimited  TurnState = "RATE_LIMITED"
	StateUnauthorized TurnState = "UNAUTHORIZED"
)

// Terminal reports whether the state ends the turn.
func (s TurnState) Terminal() bool {
	switch s {
	case StateCompleted, StateError, StateRateLimited, StateUnauthorized:
		return true
	}
	return false
}
