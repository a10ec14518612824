package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/conference-schedule/backend/internal/logging"
)

type countingService struct {
	runs atomic.Int32
}

func (s *countingService) Serve(ctx context.Context) error {
	s.runs.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestNewTreeAppliesDefaults(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), TreeConfig{FailureBackoff: time.Second})
	cfg := tree.Config()
	if cfg.FailureBackoff != time.Second {
		t.Errorf("FailureBackoff = %s", cfg.FailureBackoff)
	}
	if cfg.FailureThreshold != 5 || cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestTreeRunsServicesInEveryLayer(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), TreeConfig{ShutdownTimeout: time.Second})
	svcs := []*countingService{{}, {}, {}}
	tree.AddSyncService(svcs[0])
	tree.AddMessagingService(svcs[1])
	tree.AddAPIService(svcs[2])

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svcs[0].runs.Load() > 0 && svcs[1].runs.Load() > 0 && svcs[2].runs.Load() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-errCh

	for i, s := range svcs {
		if s.runs.Load() != 1 {
			t.Errorf("service %d runs = %d, want 1", i, s.runs.Load())
		}
	}
}
