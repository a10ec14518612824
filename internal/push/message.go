// Package push adapts the external push delivery channel. Messages carry a
// star or unstar action for one session and are applied as an immediate local
// flag flip, independent of any sync pass.
package push

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/conference-schedule/backend/internal/validation"
)

// Kind is the push message action.
type Kind string

// Push message kinds.
const (
	KindStar   Kind = "star"
	KindUnstar Kind = "unstar"
)

// ErrInvalidMessage is wrapped by every Decode failure.
var ErrInvalidMessage = errors.New("invalid push message")

// Message is a decoded push message.
type Message struct {
	Kind      Kind   `json:"kind" validate:"required,oneof=star unstar"`
	SessionID string `json:"session_id" validate:"required"`
}

// Starred returns the flag value the message sets.
func (m Message) Starred() bool {
	return m.Kind == KindStar
}

// Decode parses and validates a JSON push payload.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	m.Kind = Kind(strings.ToLower(strings.TrimSpace(string(m.Kind))))
	m.SessionID = strings.TrimSpace(m.SessionID)
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate checks the kind and session id.
func (m Message) Validate() error {
	if err := validation.ValidateStruct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}
