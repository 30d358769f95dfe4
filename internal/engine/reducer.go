// File: internal/engine/reducer.go
package engine

import (
	"fmt"
	"time"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
)

// applyCommands folds an ordered command list into the conversation state,
// left to right. Commands are the only way state changes; emission order is
// preserved exactly.
func applyCommands(state *schemas.ConversationState, commands []schemas.Command) error {
	for i, cmd := range commands {
		if err := applyCommand(state, cmd); err != nil {
			return fmt.Errorf("command %d (%s): %w", i, cmd.Type, err)
		}
	}
	return nil
}

func applyCommand(state *schemas.ConversationState, cmd schemas.Command) error {
	switch cmd.Type {
	case schemas.CmdAddMessage:
		if cmd.Message == nil {
			return fmt.Errorf("ADD_MESSAGE without a message payload")
		}
		msg := *cmd.Message
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now().UTC()
		}
		state.Messages = append(state.Messages, msg)

	case schemas.CmdUpdateCart:
		if cmd.Cart == nil {
			return fmt.Errorf("UPDATE_CART without a cart payload")
		}
		state.Cart = cmd.Cart.Cart

	case schemas.CmdUpdateContext:
		if state.Context == nil {
			state.Context = make(map[string]any, len(cmd.Context))
		}
		for k, v := range cmd.Context {
			state.Context[k] = v
		}

	case schemas.CmdSetError:
		state.LastError = cmd.Error

	default:
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}

	state.UpdatedAt = time.Now().UTC()
	return nil
}
