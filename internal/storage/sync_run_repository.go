package storage

import (
	"context"
	"fmt"

	"github.com/conference-schedule/backend/internal/storage/models"
)

// SyncRunRepository records the outcome of sync passes per kind.
type SyncRunRepository struct {
	BaseRepository
}

// NewSyncRunRepository creates a new sync run repository.
func NewSyncRunRepository(db *DB) *SyncRunRepository {
	return &SyncRunRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Start marks kind as syncing.
func (r *SyncRunRepository) Start(ctx context.Context, kind string) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO sync_runs (kind, status, started_at) VALUES (?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET status = excluded.status, started_at = excluded.started_at
	`, kind, models.SyncStatusSyncing, r.Now())
	if err != nil {
		return fmt.Errorf("starting sync run: %w", err)
	}
	return nil
}

// Finish records the final status of the current pass of kind.
func (r *SyncRunRepository) Finish(ctx context.Context, kind, status string, applied int64, syncErr *string) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO sync_runs (kind, status, applied, error, finished_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET
			status = excluded.status,
			applied = excluded.applied,
			error = excluded.error,
			finished_at = excluded.finished_at
	`, kind, status, applied, syncErr, r.Now())
	if err != nil {
		return fmt.Errorf("finishing sync run: %w", err)
	}
	return nil
}

// List returns the last run of every kind that has synced at least once.
func (r *SyncRunRepository) List(ctx context.Context) ([]models.SyncRun, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT kind, status, applied, error, started_at, finished_at
		FROM sync_runs ORDER BY kind
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	defer rows.Close()

	runs := []models.SyncRun{}
	for rows.Next() {
		var run models.SyncRun
		if err := rows.Scan(&run.Kind, &run.Status, &run.Applied, &run.Error, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
