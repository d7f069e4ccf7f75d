package domain

import (
	"encoding/json"
	"errors"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNoValidResponse is returned when the inference endpoint answers but
// reports failure or an empty reply.
var ErrNoValidResponse = errors.New("no valid response from the inference API")

// Turn is one message in a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered list of turns as raw JSON values. Turns supplied
// by callers are forwarded to the inference endpoint exactly as received.
type Conversation []json.RawMessage

// Append returns a new Conversation with t added at the end. The receiver is
// never modified, even when it has spare capacity.
func (c Conversation) Append(t Turn) Conversation {
	raw, err := json.Marshal(t)
	if err != nil {
		// Turn only holds strings; Marshal cannot fail.
		panic(err)
	}
	out := make(Conversation, len(c), len(c)+1)
	copy(out, c)
	return append(out, raw)
}

// MarshalJSON encodes a nil Conversation as an empty array.
func (c Conversation) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]json.RawMessage(c))
}
