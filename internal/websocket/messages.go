package websocket

import (
	"time"

	"github.com/goccy/go-json"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeSyncStarted         MessageType = "sync.started"
	TypeSyncCompleted       MessageType = "sync.completed"
	TypeStarsChanged        MessageType = "stars.changed"
	TypeRegistrationChanged MessageType = "registration.changed"
	TypeNotification        MessageType = "notification"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// Command is a client -> server message.
type Command struct {
	Type MessageType `json:"type"`
}

// ParseCommand decodes a client message.
func ParseCommand(data []byte) (Command, error) {
	var c Command
	err := json.Unmarshal(data, &c)
	return c, err
}

// SyncStartedPayload is the payload for sync.started events.
type SyncStartedPayload struct {
	Kind string `json:"kind"`
}

// SyncCompletedPayload is the payload for sync.completed events.
type SyncCompletedPayload struct {
	Kind    string `json:"kind"`
	Status  string `json:"status"` // success, partial, skipped, error
	Applied int64  `json:"applied"`
	Error   string `json:"error,omitempty"`
}

// StarsChangedPayload is the payload for stars.changed events.
type StarsChangedPayload struct {
	SessionIDs        []string `json:"session_ids"`
	PendingOperations int      `json:"pending_operations"`
}

// RegistrationPayload is the payload for registration.changed events.
type RegistrationPayload struct {
	Status    string `json:"status"`
	LastError string `json:"last_error,omitempty"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level       string `json:"level"` // info, warning, error, success
	Title       string `json:"title"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
