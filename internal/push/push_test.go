package push

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Message
		wantErr bool
	}{
		{"star", `{"kind": "star", "session_id": "session-101"}`, Message{KindStar, "session-101"}, false},
		{"unstar mixed case", `{"kind": " UNSTAR ", "session_id": "session-7", "extra": 1}`, Message{KindUnstar, "session-7"}, false},
		{"unknown kind", `{"kind": "boost", "session_id": "session-7"}`, Message{}, true},
		{"missing id", `{"kind": "star"}`, Message{}, true},
		{"not json", `star session-7`, Message{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMessage) {
					t.Fatalf("err = %v, want ErrInvalidMessage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode = %+v, want %+v", got, tt.want)
			}
		})
	}
}

type recordingApplier struct {
	got []Message
	err error
}

func (r *recordingApplier) ApplyPush(_ context.Context, msg Message) error {
	r.got = append(r.got, msg)
	return r.err
}

func TestDeliver(t *testing.T) {
	applier := &recordingApplier{}

	msg, err := Deliver(context.Background(), applier, []byte(`{"kind": "unstar", "session_id": "session-3"}`))
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if msg.Starred() {
		t.Error("unstar message reports Starred() = true")
	}
	if len(applier.got) != 1 || applier.got[0].SessionID != "session-3" {
		t.Errorf("applied = %+v", applier.got)
	}

	if _, err := Deliver(context.Background(), applier, []byte(`{}`)); err == nil {
		t.Error("invalid message delivered")
	}
	if len(applier.got) != 1 {
		t.Error("invalid message reached the applier")
	}

	applier.err = errors.New("no such session")
	if _, err := Deliver(context.Background(), applier, []byte(`{"kind": "star", "session_id": "x"}`)); err == nil {
		t.Error("applier error not returned")
	}
}

func TestSubscriberExitsWhenConnectionCloses(t *testing.T) {
	applier := &recordingApplier{}
	sub := NewNATSSubscriber("nats://127.0.0.1:4222", "confsched.push", applier)

	msgs := make(chan *nats.Msg)
	closed := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- sub.consume(context.Background(), msgs, closed) }()

	msgs <- &nats.Msg{Data: []byte(`{"kind": "star", "session_id": "session-9"}`)}
	close(closed)

	select {
	case err := <-done:
		if !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("consume = %v, want ErrConnectionClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber kept running after the connection closed")
	}
	if len(applier.got) != 1 || applier.got[0].SessionID != "session-9" {
		t.Errorf("applied = %+v", applier.got)
	}
}

func TestSubscriberStopsOnCancel(t *testing.T) {
	sub := NewNATSSubscriber("nats://127.0.0.1:4222", "confsched.push", &recordingApplier{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sub.consume(ctx, make(chan *nats.Msg), make(chan struct{}))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("consume = %v, want context.Canceled", err)
	}
}
