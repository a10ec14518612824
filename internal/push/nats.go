package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/conference-schedule/backend/internal/logging"
)

// ErrConnectionClosed is returned by Serve when the NATS connection closes
// for good, so the supervisor restarts the subscriber.
var ErrConnectionClosed = errors.New("nats connection closed")

// NATSSubscriber receives push messages from a NATS subject. It implements
// suture.Service.
type NATSSubscriber struct {
	url     string
	subject string
	applier Applier
}

// NewNATSSubscriber creates a subscriber for subject on the server at url.
func NewNATSSubscriber(url, subject string, applier Applier) *NATSSubscriber {
	return &NATSSubscriber{url: url, subject: subject, applier: applier}
}

// Serve connects, subscribes and applies messages until ctx is canceled.
func (s *NATSSubscriber) Serve(ctx context.Context) error {
	closed := make(chan struct{}, 1)
	nc, err := nats.Connect(s.url,
		nats.Name("confsched-push"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			select {
			case closed <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	msgs := make(chan *nats.Msg, 64)
	sub, err := nc.ChanSubscribe(s.subject, msgs)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.subject, err)
	}
	defer sub.Unsubscribe()

	logging.Info().Str("subject", s.subject).Msg("Listening for push messages")

	return s.consume(ctx, msgs, closed)
}

// consume applies messages until ctx ends or the connection closes.
func (s *NATSSubscriber) consume(ctx context.Context, msgs <-chan *nats.Msg, closed <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			logging.Warn().Str("subject", s.subject).Msg("NATS connection closed, subscriber exiting")
			return ErrConnectionClosed
		case m := <-msgs:
			Deliver(ctx, s.applier, m.Data)
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *NATSSubscriber) String() string {
	return "push-nats-subscriber"
}
