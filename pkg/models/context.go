package models

// Well-known keys of the conversation context bag.
const (
	ContextConfidence         = "confidence"
	ContextSentiment          = "sentiment"
	ContextMessage            = "message"
	ContextConversationLength = "conversationLength"
	ContextCustomerTier       = "customerTier"
	ContextAmount             = "amount"
)

// Context is the read-only bag of signals computed upstream for a conversation.
// Besides the well-known keys it may carry arbitrary custom fields.
type Context map[string]any

// Lookup returns the value stored under key. A nil value counts as absent.
func (c Context) Lookup(key string) (any, bool) {
	if c == nil || key == "" {
		return nil, false
	}

	value, ok := c[key]
	if !ok || value == nil {
		return nil, false
	}

	return value, true
}

// ConversationEvent is an inbound signal for an ongoing conversation.
type ConversationEvent struct {
	ConversationID string         `json:"conversation_id"     validate:"required"`
	Industry       string         `json:"industry"            validate:"required"`
	Context        Context        `json:"context"             validate:"required"`
	Variables      map[string]any `json:"variables,omitempty"`
}
