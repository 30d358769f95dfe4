// File: api/schemas/commands.go
package schemas

// CommandType is the discriminator of the Command variant.
type CommandType string

const (
	CmdAddMessage    CommandType = "ADD_MESSAGE"
	CmdUpdateCart    CommandType = "UPDATE_CART"
	CmdUpdateContext CommandType = "UPDATE_CONTEXT"
	CmdSetError      CommandType = "SET_ERROR"
)

// CartUpdate carries the cart replacement for an UPDATE_CART command. The
// commerce client returns the authoritative cart; the engine replaces its
// snapshot wholesale rather than patching line items.
type CartUpdate struct {
	Cart CartSnapshot `json:"cart"`
}

// Command is the closed set of state mutations an action handler may emit.
// Exactly one payload field is set, selected by Type. Commands are applied by
// the engine reducer in emission order and never out of order.
type Command struct {
	Type    CommandType    `json:"type"`
	Message *Message       `json:"message,omitempty"`
	Cart    *CartUpdate    `json:"cart,omitempty"`
	Context map[string]any `json:"context,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// AddMessage builds an ADD_MESSAGE command.
func AddMessage(msg Message) Command {
	return Command{Type: CmdAddMessage, Message: &msg}
}

// UpdateCart builds an UPDATE_CART command.
func UpdateCart(cart CartSnapshot) Command {
	return Command{Type: CmdUpdateCart, Cart: &CartUpdate{Cart: cart}}
}

// UpdateContext builds an UPDATE_CONTEXT command. Keys are merged into the
// existing conversation context.
func UpdateContext(kv map[string]any) Command {
	return Command{Type: CmdUpdateContext, Context: kv}
}

// SetError builds a SET_ERROR command with a user-safe message.
func SetError(msg string) Command {
	return Command{Type: CmdSetError, Error: msg}
}
