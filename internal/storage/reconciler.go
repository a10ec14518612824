package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/conference-schedule/backend/internal/feed"
	"github.com/conference-schedule/backend/internal/logging"
	"github.com/conference-schedule/backend/internal/metrics"
)

// ReconciliationError reports a failed batch apply. The batch was rolled back.
type ReconciliationError struct {
	Bucket string
	Op     string
	Err    error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciling %s (%s): %v", e.Bucket, e.Op, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// ApplyStats counts what a batch did.
type ApplyStats struct {
	Marked   int64 `json:"marked"`
	Upserted int64 `json:"upserted"`
	Updated  int64 `json:"updated"`
	Skipped  int64 `json:"skipped"`
	Swept    int64 `json:"swept"`
}

// Total is the number of rows the batch changed.
func (s ApplyStats) Total() int64 {
	return s.Upserted + s.Updated + s.Swept
}

// Reconciler applies parsed mutation batches to a bucket.
type Reconciler struct {
	BaseRepository
}

// NewReconciler creates a reconciler over db.
func NewReconciler(db *DB) *Reconciler {
	return &Reconciler{BaseRepository: NewBaseRepository(db)}
}

// Apply runs ops against bucket in a single transaction. Either every op
// takes effect or none does; on failure a *ReconciliationError is returned.
//
// A full refresh is MarkAllDeleted, one Insert per entry (each clearing the
// marker on its row), then DeleteWhereMarked, so applying the same batch
// twice leaves the bucket as one application would.
func (r *Reconciler) Apply(ctx context.Context, bucket string, ops []feed.MutationOp) (ApplyStats, error) {
	var stats ApplyStats

	b, ok := LookupBucket(bucket)
	if !ok {
		return stats, &ReconciliationError{Bucket: bucket, Op: "lookup", Err: fmt.Errorf("unknown bucket")}
	}

	now := r.NowMillis()
	err := r.Transaction(ctx, func(tx *sql.Tx) error {
		for i, op := range ops {
			if err := applyOp(ctx, tx, b, op, now, &stats); err != nil {
				return &ReconciliationError{
					Bucket: bucket,
					Op:     fmt.Sprintf("%s #%d", op.Type, i),
					Err:    err,
				}
			}
		}
		return nil
	})
	if err != nil {
		logging.Error().Err(err).Str("bucket", bucket).Int("ops", len(ops)).Msg("Batch rolled back")
		var rerr *ReconciliationError
		if errors.As(err, &rerr) {
			return ApplyStats{}, rerr
		}
		return ApplyStats{}, &ReconciliationError{Bucket: bucket, Op: "commit", Err: err}
	}

	metrics.MutationsApplied.WithLabelValues(bucket).Add(float64(stats.Total()))
	logging.Debug().
		Str("bucket", bucket).
		Int64("upserted", stats.Upserted).
		Int64("updated", stats.Updated).
		Int64("swept", stats.Swept).
		Msg("Batch applied")

	return stats, nil
}

func applyOp(ctx context.Context, q Queryable, b Bucket, op feed.MutationOp, now int64, stats *ApplyStats) error {
	switch op.Type {
	case feed.OpMarkAllDeleted:
		res, err := q.ExecContext(ctx, "UPDATE "+b.Name+" SET deleted = 1")
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		stats.Marked += n

	case feed.OpDeleteWhereMarked:
		res, err := q.ExecContext(ctx, "DELETE FROM "+b.Name+" WHERE deleted = 1")
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		stats.Swept += n

	case feed.OpInsert:
		key, ok := op.Fields[b.Key].(string)
		if !ok || key == "" {
			return fmt.Errorf("missing key column %s", b.Key)
		}
		cols, err := sortedColumns(b, op.Fields)
		if err != nil {
			return err
		}

		args := make([]any, 0, len(cols)+1)
		sets := make([]string, 0, len(cols))
		for _, c := range cols {
			args = append(args, op.Fields[c])
			if c != b.Key {
				sets = append(sets, c+" = excluded."+c)
			}
		}
		args = append(args, now)
		sets = append(sets, "deleted = 0", "updated = excluded.updated")

		query := fmt.Sprintf(
			"INSERT INTO %s (%s, deleted, updated) VALUES (%s, 0, ?) ON CONFLICT(%s) DO UPDATE SET %s",
			b.Name,
			strings.Join(cols, ", "),
			placeholders(len(cols)),
			b.Key,
			strings.Join(sets, ", "),
		)
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		stats.Upserted++

	case feed.OpUpdate:
		if op.Key == "" {
			return fmt.Errorf("update without key")
		}
		cols, err := sortedColumns(b, op.Fields)
		if err != nil {
			return err
		}

		args := make([]any, 0, len(cols)+2)
		sets := make([]string, 0, len(cols)+1)
		for _, c := range cols {
			if c == b.Key {
				return fmt.Errorf("update may not change key column %s", c)
			}
			sets = append(sets, c+" = ?")
			args = append(args, op.Fields[c])
		}
		sets = append(sets, "updated = ?")
		args = append(args, now, op.Key)

		res, err := q.ExecContext(ctx,
			"UPDATE "+b.Name+" SET "+strings.Join(sets, ", ")+" WHERE "+b.Key+" = ?",
			args...,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			stats.Skipped++
		} else {
			stats.Updated += n
		}

	default:
		return fmt.Errorf("unsupported op %s", op.Type)
	}

	return nil
}

// sortedColumns validates field names against the bucket and returns them in
// a stable order.
func sortedColumns(b Bucket, fields map[string]any) ([]string, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields")
	}
	cols := make([]string, 0, len(fields))
	for c := range fields {
		if !b.hasColumn(c) {
			return nil, fmt.Errorf("unknown column %q", c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
