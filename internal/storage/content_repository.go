package storage

import (
	"context"
	"fmt"
	"strings"
)

// ContentRepository lists rows of the mirrored feed buckets.
type ContentRepository struct {
	BaseRepository
}

// NewContentRepository creates a new content repository.
func NewContentRepository(db *DB) *ContentRepository {
	return &ContentRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// List returns every live row of bucket as column/value maps.
func (r *ContentRepository) List(ctx context.Context, bucket string) ([]map[string]any, error) {
	b, ok := LookupBucket(bucket)
	if !ok {
		return nil, ErrNotFound
	}

	cols := append([]string{b.Key}, b.Columns...)
	cols = append(cols, "updated")

	rows, err := r.DB().QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM %s WHERE deleted = 0 ORDER BY %s",
		strings.Join(cols, ", "), b.Name, b.OrderBy,
	))
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", b.Name, err)
	}
	defer rows.Close()

	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", b.Name, err)
		}

		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if raw, ok := values[i].([]byte); ok {
				row[c] = string(raw)
			} else {
				row[c] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Count returns the number of live rows in bucket.
func (r *ContentRepository) Count(ctx context.Context, bucket string) (int, error) {
	b, ok := LookupBucket(bucket)
	if !ok {
		return 0, ErrNotFound
	}
	var n int
	if err := r.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+b.Name+" WHERE deleted = 0").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", b.Name, err)
	}
	return n, nil
}
