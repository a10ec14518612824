package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc, <-chan error) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()
	t.Cleanup(cancel)
	return hub, cancel, done
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data, ok := <-c.Send():
		if !ok {
			t.Fatal("send channel closed")
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("decoding %s: %v", data, err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func TestBroadcastReachesClients(t *testing.T) {
	hub, _, _ := startHub(t)
	ctx := context.Background()
	a, b := NewClient(hub), NewClient(hub)
	hub.Register(ctx, a)
	hub.Register(ctx, b)

	events := NewEventBroadcaster(hub)
	events.BroadcastSyncCompleted("schedule", "success", 12, "")

	for _, c := range []*Client{a, b} {
		m := receive(t, c)
		if m.Type != TypeSyncCompleted {
			t.Errorf("type = %s", m.Type)
		}
		payload := m.Payload.(map[string]any)
		if payload["kind"] != "schedule" || payload["applied"] != float64(12) {
			t.Errorf("payload = %v", payload)
		}
	}
}

func TestFailedSyncAlsoNotifies(t *testing.T) {
	hub, _, _ := startHub(t)
	c := NewClient(hub)
	hub.Register(context.Background(), c)

	NewEventBroadcaster(hub).BroadcastSyncCompleted("news", "error", 0, "reconciliation failed")

	if m := receive(t, c); m.Type != TypeSyncCompleted {
		t.Errorf("first type = %s", m.Type)
	}
	if m := receive(t, c); m.Type != TypeNotification {
		t.Errorf("second type = %s", m.Type)
	}
}

func TestStarsChangedNeverSendsNullIDs(t *testing.T) {
	hub, _, _ := startHub(t)
	c := NewClient(hub)
	hub.Register(context.Background(), c)

	NewEventBroadcaster(hub).BroadcastStarsChanged(nil, 2)

	m := receive(t, c)
	payload := m.Payload.(map[string]any)
	if ids, ok := payload["session_ids"].([]any); !ok || len(ids) != 0 {
		t.Errorf("session_ids = %#v", payload["session_ids"])
	}
	if payload["pending_operations"] != float64(2) {
		t.Errorf("pending = %v", payload["pending_operations"])
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	hub, _, _ := startHub(t)
	ctx := context.Background()
	c := NewClient(hub)
	hub.Register(ctx, c)
	hub.Unregister(ctx, c)

	select {
	case _, ok := <-c.Send():
		if ok {
			t.Error("unexpected message")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send not closed")
	}
	if c.Reply([]byte("late")) {
		t.Error("Reply succeeded on a dropped client")
	}
}

func TestRunWithContextStopsAndClosesClients(t *testing.T) {
	hub, cancel, done := startHub(t)
	c := NewClient(hub)
	hub.Register(context.Background(), c)

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	if _, ok := <-c.Send(); ok {
		t.Error("client send still open")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("clients = %d", hub.ClientCount())
	}
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"ping"}`))
	if err != nil || cmd.Type != TypePing {
		t.Errorf("ParseCommand = %+v, %v", cmd, err)
	}
	if _, err := ParseCommand([]byte("{")); err == nil {
		t.Error("truncated command accepted")
	}
}
