package websocket

import (
	"github.com/conference-schedule/backend/internal/logging"
)

// EventBroadcaster turns sync events into WebSocket messages.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// BroadcastSyncStarted sends a sync started event.
func (b *EventBroadcaster) BroadcastSyncStarted(kind string) {
	b.broadcast(NewMessage(TypeSyncStarted, SyncStartedPayload{Kind: kind}))
}

// BroadcastSyncCompleted sends a sync completed event. A failed pass also
// raises an error notification.
func (b *EventBroadcaster) BroadcastSyncCompleted(kind, status string, applied int64, errMsg string) {
	b.broadcast(NewMessage(TypeSyncCompleted, SyncCompletedPayload{
		Kind:    kind,
		Status:  status,
		Applied: applied,
		Error:   errMsg,
	}))
	if status == "error" {
		b.BroadcastNotification("error", "Sync failed", kind+": "+errMsg)
	}
}

// BroadcastStarsChanged sends a star state change event.
func (b *EventBroadcaster) BroadcastStarsChanged(sessionIDs []string, pending int) {
	if sessionIDs == nil {
		sessionIDs = []string{}
	}
	b.broadcast(NewMessage(TypeStarsChanged, StarsChangedPayload{
		SessionIDs:        sessionIDs,
		PendingOperations: pending,
	}))
}

// BroadcastRegistrationChanged sends a registration status event.
func (b *EventBroadcaster) BroadcastRegistrationChanged(status, lastError string) {
	b.broadcast(NewMessage(TypeRegistrationChanged, RegistrationPayload{
		Status:    status,
		LastError: lastError,
	}))
}

// BroadcastNotification sends a notification to all connected clients.
func (b *EventBroadcaster) BroadcastNotification(level, title, message string) {
	b.broadcast(NewMessage(TypeNotification, NotificationPayload{
		Level:       level,
		Title:       title,
		Message:     message,
		Dismissible: true,
	}))
}

func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		logging.Error().Err(err).Str("type", string(msg.Type)).Msg("Error encoding WebSocket message")
		return
	}
	b.hub.Broadcast(data)
}
