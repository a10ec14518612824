package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"time"

	"github.com/conference-schedule/backend/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrMigrationChanged is returned when an applied migration file no longer
// matches the checksum recorded when it ran.
var ErrMigrationChanged = errors.New("applied migration was modified")

type migration struct {
	name     string
	sql      string
	checksum string
}

// RunMigrations applies pending embedded migrations in filename order. Each
// runs in its own transaction together with its _migrations row.
func RunMigrations(db *DB) error {
	ctx := context.Background()
	start := time.Now()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			name TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := appliedChecksums(ctx, db.DB)
	if err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}

	migrations, err := loadMigrations(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading migration files: %w", err)
	}

	var count int
	for _, m := range migrations {
		if sum, ok := applied[m.name]; ok {
			if sum != m.checksum {
				return fmt.Errorf("%w: %s", ErrMigrationChanged, m.name)
			}
			continue
		}

		err := db.Transaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO _migrations (name, checksum) VALUES (?, ?)", m.name, m.checksum)
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration %s: %w", m.name, err)
		}
		count++
		logging.Debug().Str("migration", m.name).Msg("Migration applied")
	}

	logging.Info().
		Int("applied", count).
		Int("total", len(migrations)).
		Dur("duration", time.Since(start)).
		Msg("Database schema up to date")
	return nil
}

func appliedChecksums(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, checksum FROM _migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return nil, err
		}
		applied[name] = sum
	}
	return applied, rows.Err()
}

// loadMigrations reads dir/*.sql sorted by name; the numeric prefix orders them.
func loadMigrations(fsys fs.FS, dir string) ([]migration, error) {
	names, err := fs.Glob(fsys, path.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		sum := sha256.Sum256(body)
		migrations = append(migrations, migration{
			name:     path.Base(name),
			sql:      string(body),
			checksum: hex.EncodeToString(sum[:]),
		})
	}
	return migrations, nil
}
