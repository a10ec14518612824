package feedsync

import (
	"context"
	"errors"

	"github.com/conference-schedule/backend/internal/logging"
	"github.com/conference-schedule/backend/internal/metrics"
	"github.com/conference-schedule/backend/internal/remote"
)

// Prober returns the server's current fingerprint for a resource URL.
type Prober interface {
	Probe(ctx context.Context, resourceURL string) (string, error)
}

// FingerprintStore is the durable URL to fingerprint cache.
type FingerprintStore interface {
	Get(url string) (string, bool, error)
	Put(url, fp string) error
	Delete(url string) error
}

// WifiPreference reports the user's Wi-Fi-only sync preference.
type WifiPreference interface {
	WifiOnly(ctx context.Context) bool
}

// Detector decides whether a remote fetch is allowed and warranted.
type Detector struct {
	conn   Connectivity
	prefs  WifiPreference
	prober Prober
	store  FingerprintStore
}

// NewDetector creates a change detector.
func NewDetector(conn Connectivity, prefs WifiPreference, prober Prober, store FingerprintStore) *Detector {
	return &Detector{conn: conn, prefs: prefs, prober: prober, store: store}
}

// ShouldFetchRemote applies the network policy: the device must be connected,
// and the sync must be forced, or the network unmetered, or the Wi-Fi-only
// preference off.
func (d *Detector) ShouldFetchRemote(ctx context.Context, force bool) bool {
	if !d.conn.Connected() {
		return false
	}
	return force || d.conn.Unmetered() || !d.prefs.WifiOnly(ctx)
}

// Changes is the outcome of probing a set of resources.
type Changes struct {
	Changed []Resource
}

// Any reports whether at least one resource changed.
func (c Changes) Any() bool {
	return len(c.Changed) > 0
}

// HasRemoteChanged probes every resource and compares against the cache.
// A failed probe or an unavailable fingerprint counts as unchanged, so the
// expensive fetch is skipped for that resource.
func (d *Detector) HasRemoteChanged(ctx context.Context, resources []Resource) (Changes, error) {
	var changes Changes

	for _, r := range resources {
		if err := ctx.Err(); err != nil {
			return Changes{}, err
		}

		remoteFP, err := d.prober.Probe(ctx, r.URL)
		if errors.Is(err, remote.ErrUnavailable) {
			metrics.FingerprintProbes.WithLabelValues("unavailable").Inc()
			logging.Debug().Str("resource", r.Name).Msg("Fingerprint unavailable, treating as unchanged")
			continue
		}
		if err != nil {
			metrics.FingerprintProbes.WithLabelValues("error").Inc()
			logging.Warn().Err(err).Str("resource", r.Name).Msg("Fingerprint probe failed, treating as unchanged")
			continue
		}

		localFP, ok, err := d.store.Get(r.URL)
		if err != nil {
			logging.Warn().Err(err).Str("resource", r.Name).Msg("Failed to read cached fingerprint")
			ok = false
		}
		if ok && localFP == remoteFP {
			metrics.FingerprintProbes.WithLabelValues("unchanged").Inc()
			continue
		}

		metrics.FingerprintProbes.WithLabelValues("changed").Inc()
		changes.Changed = append(changes.Changed, r)
	}

	return changes, nil
}
