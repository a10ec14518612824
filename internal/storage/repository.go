package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a keyed row does not exist (or is marked deleted).
var ErrNotFound = errors.New("not found")

// Queryable represents a database connection that can execute queries.
// Both *sql.DB and *sql.Tx implement this interface.
type Queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// BaseRepository provides common functionality for all repositories.
type BaseRepository struct {
	db  *DB
	now func() time.Time
}

// NewBaseRepository creates a new base repository with the given database connection.
func NewBaseRepository(db *DB) BaseRepository {
	return BaseRepository{db: db, now: time.Now}
}

// DB returns the underlying database connection.
func (r *BaseRepository) DB() *DB {
	return r.db
}

// Now returns the current time in UTC.
func (r *BaseRepository) Now() time.Time {
	return r.now().UTC()
}

// NowMillis returns the current time as unix millis, the unit of bucket
// "updated" columns.
func (r *BaseRepository) NowMillis() int64 {
	return r.now().UnixMilli()
}

// Transaction executes a function within a database transaction.
func (r *BaseRepository) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return r.db.Transaction(ctx, fn)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
