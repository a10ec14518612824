package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSyncPass(t *testing.T) {
	counter := SyncPasses.WithLabelValues("news", "success")
	before := testutil.ToFloat64(counter)

	ObserveSyncPass("news", "success", time.Now().Add(-time.Second))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("sync pass counter delta = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(SyncPassDuration, "confsched_sync_pass_duration_seconds"); n == 0 {
		t.Error("no duration series collected")
	}
}

func TestPendingStarGauge(t *testing.T) {
	PendingStarOperations.Set(3)
	if got := testutil.ToFloat64(PendingStarOperations); got != 3 {
		t.Errorf("pending gauge = %v, want 3", got)
	}
}
