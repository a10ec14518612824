package feedsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/conference-schedule/backend/internal/feed"
	"github.com/conference-schedule/backend/internal/fingerprint"
	"github.com/conference-schedule/backend/internal/logging"
	"github.com/conference-schedule/backend/internal/metrics"
	"github.com/conference-schedule/backend/internal/remote"
	"github.com/conference-schedule/backend/internal/storage"
)

// ErrBatchShape means a parsed batch does not match the resource's listing
// mode. It is a wiring fault, never a payload problem.
var ErrBatchShape = errors.New("batch shape does not match resource")

// FeedClient fetches raw feed bodies.
type FeedClient interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Applier commits a mutation batch to a bucket atomically.
type Applier interface {
	Apply(ctx context.Context, bucket string, ops []feed.MutationOp) (storage.ApplyStats, error)
}

// RemoteFetcher downloads a resource, parses it and applies the batch.
type RemoteFetcher struct {
	client  FeedClient
	applier Applier
}

// NewRemoteFetcher creates a fetcher.
func NewRemoteFetcher(client FeedClient, applier Applier) *RemoteFetcher {
	return &RemoteFetcher{client: client, applier: applier}
}

// FetchAndApply fetches r and applies it. It returns the fingerprint of the
// fetched bytes, which the caller persists only because the apply succeeded.
// Errors are *remote.TransportError, *feed.ParseError or
// *storage.ReconciliationError.
func (f *RemoteFetcher) FetchAndApply(ctx context.Context, r Resource) (string, storage.ApplyStats, error) {
	body, err := f.client.Fetch(ctx, r.URL)
	if err != nil {
		metrics.FeedFetches.WithLabelValues(r.Name, "transport_error").Inc()
		return "", storage.ApplyStats{}, err
	}

	stats, err := applyPayload(ctx, f.applier, r, body)
	if err != nil {
		var perr *feed.ParseError
		if errors.As(err, &perr) {
			metrics.FeedFetches.WithLabelValues(r.Name, "parse_error").Inc()
		} else {
			metrics.FeedFetches.WithLabelValues(r.Name, "reconcile_error").Inc()
		}
		return "", storage.ApplyStats{}, err
	}

	metrics.FeedFetches.WithLabelValues(r.Name, "applied").Inc()
	logging.Info().
		Str("resource", r.Name).
		Int("bytes", len(body)).
		Int64("upserted", stats.Upserted).
		Int64("updated", stats.Updated).
		Int64("swept", stats.Swept).
		Msg("Feed applied")

	return fingerprint.Compute(body), stats, nil
}

func applyPayload(ctx context.Context, applier Applier, r Resource, body []byte) (storage.ApplyStats, error) {
	parser, err := feed.ParserFor(r.Kind)
	if err != nil {
		return storage.ApplyStats{}, err
	}
	ops, err := parser.Parse(body)
	if err != nil {
		return storage.ApplyStats{}, err
	}
	if err := checkShape(r, ops); err != nil {
		return storage.ApplyStats{}, err
	}
	return applier.Apply(ctx, r.Bucket, ops)
}

// checkShape requires full listings to be wrapped in mark and sweep and
// partial ones to carry no sweep at all.
func checkShape(r Resource, ops []feed.MutationOp) error {
	if r.Full {
		n := len(ops)
		if n < 2 || ops[0].Type != feed.OpMarkAllDeleted || ops[n-1].Type != feed.OpDeleteWhereMarked {
			return fmt.Errorf("%w: %s is a full listing but the batch is not swept", ErrBatchShape, r.Name)
		}
		return nil
	}
	for _, op := range ops {
		if op.Type == feed.OpMarkAllDeleted || op.Type == feed.OpDeleteWhereMarked {
			return fmt.Errorf("%w: %s is partial but the batch sweeps", ErrBatchShape, r.Name)
		}
	}
	return nil
}

func describe(err error) string {
	var (
		terr *remote.TransportError
		perr *feed.ParseError
		rerr *storage.ReconciliationError
	)
	switch {
	case errors.As(err, &terr):
		return fmt.Sprintf("transport: %v", err)
	case errors.As(err, &perr):
		return fmt.Sprintf("parse: %v", err)
	case errors.As(err, &rerr):
		return fmt.Sprintf("reconcile: %v", err)
	default:
		return err.Error()
	}
}
