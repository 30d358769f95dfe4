// File: api/schemas/conversation.go
package schemas

import "time"

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is one entry in the conversation transcript. Messages are
// append-only within a turn.
type Message struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// CartItem is a single line in the cart snapshot.
type CartItem struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// CartSnapshot is the engine's view of the cart at a point in time.
type CartSnapshot struct {
	Items    []CartItem `json:"items"`
	Subtotal float64    `json:"subtotal"`
	Total    float64    `json:"total"`
	Currency string     `json:"currency"`
}

// SecurityContext accumulates Judge findings over the life of a conversation
// so later validation layers can see prior behavior.
type SecurityContext struct {
	Findings      []ValidationResult `json:"findings,omitempty"`
	WorstSeverity Severity           `json:"worst_severity,omitempty"`
}

// Record appends a failed validation and tracks the worst severity seen.
func (s *SecurityContext) Record(r ValidationResult) {
	if r.IsValid {
		return
	}
	s.Findings = append(s.Findings, r)
	if r.Severity.Score() > s.WorstSeverity.Score() {
		s.WorstSeverity = r.Severity
	}
}

// ConversationState is the full mutable state of one conversation thread.
// It is only ever changed by the engine's command reducer; handlers receive
// it read-only and describe changes as Commands.
type ConversationState struct {
	ThreadID        string            `json:"thread_id"`
	Mode            ActionMode        `json:"mode"`
	Cart            CartSnapshot      `json:"cart"`
	Messages        []Message         `json:"messages"`
	Context         map[string]any    `json:"context,omitempty"`
	Security        SecurityContext   `json:"security"`
	CheckoutIntent  bool              `json:"checkout_intent,omitempty"`
	LastError       string            `json:"last_error,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewConversationState creates the state for a fresh thread.
func NewConversationState(threadID string, mode ActionMode) *ConversationState {
	return &ConversationState{
		ThreadID:  threadID,
		Mode:      mode,
		Cart:      CartSnapshot{Currency: "USD"},
		Context:   make(map[string]any),
		UpdatedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy safe to hand to a streaming consumer after the
// turn has committed.
func (s *ConversationState) Clone() *ConversationState {
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	cp.Cart.Items = append([]CartItem(nil), s.Cart.Items...)
	cp.Context = make(map[string]any, len(s.Context))
	for k, v := range s.Context {
		cp.Context[k] = v
	}
	cp.Security.Findings = append([]ValidationResult(nil), s.Security.Findings...)
	return &cp
}
