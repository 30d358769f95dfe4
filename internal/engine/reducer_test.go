// File: internal/engine/reducer_test.go
package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
)

func TestApplyCommandsOrder(t *testing.T) {
	state := schemas.NewConversationState("t1", schemas.ModeB2C)

	cart := schemas.CartSnapshot{
		Items:    []schemas.CartItem{{SKU: "A", Quantity: 2, UnitPrice: 5}},
		Subtotal: 10, Total: 10, Currency: "USD",
	}
	err := applyCommands(state, []schemas.Command{
		schemas.AddMessage(schemas.Message{ID: "m1", Role: schemas.RoleUser, Content: "add it"}),
		schemas.UpdateCart(cart),
		schemas.UpdateContext(map[string]any{"step": 1}),
		schemas.UpdateContext(map[string]any{"step": 2}),
	})
	require.NoError(t, err)

	require.Len(t, state.Messages, 1)
	assert.False(t, state.Messages[0].CreatedAt.IsZero(), "missing timestamps are filled in")
	assert.Equal(t, cart.Total, state.Cart.Total)
	assert.Equal(t, 2, state.Context["step"], "later commands overwrite earlier ones")
	assert.False(t, state.UpdatedAt.IsZero())
}

func TestApplyCommandContextMerge(t *testing.T) {
	state := schemas.NewConversationState("t1", schemas.ModeB2C)
	state.Context["existing"] = "kept"

	require.NoError(t, applyCommands(state, []schemas.Command{
		schemas.UpdateContext(map[string]any{"new": "added"}),
	}))

	assert.Equal(t, "kept", state.Context["existing"])
	assert.Equal(t, "added", state.Context["new"])
}

func TestApplyCommandSetError(t *testing.T) {
	state := schemas.NewConversationState("t1", schemas.ModeB2C)

	require.NoError(t, applyCommands(state, []schemas.Command{schemas.SetError("something went wrong")}))
	assert.Equal(t, "something went wrong", state.LastError)

	require.NoError(t, applyCommands(state, []schemas.Command{schemas.SetError("")}))
	assert.Empty(t, state.LastError)
}

func TestApplyCommandRejectsMalformed(t *testing.T) {
	state := schemas.NewConversationState("t1", schemas.ModeB2C)

	err := applyCommands(state, []schemas.Command{{Type: schemas.CmdAddMessage}})
	require.Error(t, err)

	err = applyCommands(state, []schemas.Command{{Type: schemas.CmdUpdateCart}})
	require.Error(t, err)

	err = applyCommands(state, []schemas.Command{{Type: "TELEPORT"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEPORT")
}
