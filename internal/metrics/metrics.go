// Package metrics defines the Prometheus collectors for the sync subsystem.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncPasses counts sync passes per kind and outcome (success, partial, error, skipped).
	SyncPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confsched_sync_passes_total",
			Help: "Total number of sync passes by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	SyncPassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "confsched_sync_pass_duration_seconds",
			Help:    "Duration of sync passes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// FeedFetches counts per-resource fetch outcomes (applied, transport_error,
	// parse_error, reconcile_error).
	FeedFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confsched_feed_fetches_total",
			Help: "Total number of feed fetch attempts by resource and result",
		},
		[]string{"resource", "result"},
	)

	// FingerprintProbes counts probe outcomes (changed, unchanged, unavailable, error).
	FingerprintProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confsched_fingerprint_probes_total",
			Help: "Total number of fingerprint probes by result",
		},
		[]string{"result"},
	)

	MutationsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confsched_mutations_applied_total",
			Help: "Total number of mutation ops applied to the local store by bucket",
		},
		[]string{"bucket"},
	)

	// StarSyncs counts star sync attempts (success, error, skipped).
	StarSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confsched_star_syncs_total",
			Help: "Total number of star sync attempts by result",
		},
		[]string{"result"},
	)

	PendingStarOperations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "confsched_pending_star_operations",
			Help: "Sessions whose star state has not been confirmed by the remote service",
		},
	)

	PushMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confsched_push_messages_total",
			Help: "Total number of push messages by kind and result",
		},
		[]string{"kind", "result"},
	)

	RegistrationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confsched_registration_transitions_total",
			Help: "Device registration status transitions",
		},
		[]string{"status"},
	)

	// Circuit breaker metrics for outbound calls.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "confsched_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confsched_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confsched_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// ObserveSyncPass records the outcome and duration of a sync pass.
func ObserveSyncPass(kind, outcome string, started time.Time) {
	SyncPasses.WithLabelValues(kind, outcome).Inc()
	SyncPassDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}
