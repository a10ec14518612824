package models

import (
	"time"
)

// SyncStatus constants
const (
	SyncStatusPending = "pending"
	SyncStatusSyncing = "syncing"
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusSkipped = "skipped"
	SyncStatusError   = "error"
)

// SyncRun is the outcome of the most recent sync pass of one kind.
type SyncRun struct {
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Applied    int64      `json:"applied"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
