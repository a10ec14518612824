package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*WebSocketHubService)(nil)
	_ suture.Service = (*SchedulerService)(nil)
)

type mockHTTPServer struct {
	listenErr error
	started   chan struct{}
	stopCh    chan struct{}
	shutdowns atomic.Int32
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{started: make(chan struct{}, 1), stopCh: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	m.started <- struct{}{}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdowns.Add(1)
	close(m.stopCh)
	return nil
}

func TestHTTPServerServiceShutsDownOnCancel(t *testing.T) {
	server := newMockHTTPServer()
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-server.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if server.shutdowns.Load() != 1 {
		t.Errorf("shutdowns = %d", server.shutdowns.Load())
	}
}

func TestHTTPServerServiceReportsListenFailure(t *testing.T) {
	server := newMockHTTPServer()
	server.listenErr = errors.New("address in use")
	svc := NewHTTPServerService(server, 0)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, server.listenErr) {
		t.Errorf("err = %v", err)
	}
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("default timeout = %s", svc.shutdownTimeout)
	}
}

type fakeHub struct{ ran atomic.Bool }

func (h *fakeHub) RunWithContext(ctx context.Context) error {
	h.ran.Store(true)
	<-ctx.Done()
	return ctx.Err()
}

func TestWebSocketHubServiceDelegates(t *testing.T) {
	hub := &fakeHub{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewWebSocketHubService(hub).Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if !hub.ran.Load() {
		t.Error("hub not run")
	}
}

type fakeScheduler struct {
	started, stopped atomic.Int32
}

func (s *fakeScheduler) Start(context.Context) { s.started.Add(1) }
func (s *fakeScheduler) Stop()                 { s.stopped.Add(1) }

func TestSchedulerServiceStartsAndStops(t *testing.T) {
	sched := &fakeScheduler{}
	svc := NewSchedulerService(sched)
	var onStart atomic.Int32
	svc.OnStart = func() { onStart.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()
	<-done

	if sched.started.Load() != 1 || sched.stopped.Load() != 1 || onStart.Load() != 1 {
		t.Errorf("started=%d stopped=%d onStart=%d", sched.started.Load(), sched.stopped.Load(), onStart.Load())
	}
}
