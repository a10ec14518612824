package push

import (
	"context"

	"github.com/conference-schedule/backend/internal/logging"
	"github.com/conference-schedule/backend/internal/metrics"
)

// Applier applies a decoded push message to local state.
type Applier interface {
	ApplyPush(ctx context.Context, msg Message) error
}

// Deliver decodes data and hands it to applier. Both the NATS subscriber and
// the HTTP webhook go through here.
func Deliver(ctx context.Context, applier Applier, data []byte) (Message, error) {
	msg, err := Decode(data)
	if err != nil {
		metrics.PushMessages.WithLabelValues("unknown", "invalid").Inc()
		logging.Warn().Err(err).Msg("Dropping invalid push message")
		return Message{}, err
	}

	if err := applier.ApplyPush(ctx, msg); err != nil {
		metrics.PushMessages.WithLabelValues(string(msg.Kind), "error").Inc()
		logging.Warn().Err(err).Str("kind", string(msg.Kind)).Str("session_id", msg.SessionID).Msg("Failed to apply push message")
		return msg, err
	}

	metrics.PushMessages.WithLabelValues(string(msg.Kind), "applied").Inc()
	logging.Debug().Str("kind", string(msg.Kind)).Str("session_id", msg.SessionID).Msg("Push message applied")
	return msg, nil
}
