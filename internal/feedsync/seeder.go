package feedsync

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/conference-schedule/backend/internal/logging"
)

//go:embed seed
var bundledSeed embed.FS

// SchemaVersions persists the seeded schema version per resource.
type SchemaVersions interface {
	SchemaVersion(ctx context.Context, kind string) (int, error)
	SetSchemaVersion(ctx context.Context, kind string, version int) error
}

// Seeder bootstraps the local store from bundled feed snapshots, once per
// schema version, before any network access.
type Seeder struct {
	files        fs.FS
	applier      Applier
	versions     SchemaVersions
	fingerprints FingerprintStore
	version      int
}

// NewSeeder creates a seeder. When dir is empty the snapshots bundled into
// the binary are used.
func NewSeeder(dir string, applier Applier, versions SchemaVersions, fingerprints FingerprintStore, version int) *Seeder {
	var files fs.FS
	if dir != "" {
		files = os.DirFS(dir)
	} else {
		files, _ = fs.Sub(bundledSeed, "seed")
	}
	return &Seeder{
		files:        files,
		applier:      applier,
		versions:     versions,
		fingerprints: fingerprints,
		version:      version,
	}
}

// Seed applies the snapshot of every resource whose recorded schema version
// differs from the current one. A resource without a snapshot is recorded as
// seeded. Failures leave the version unrecorded so the next pass retries.
//
// A seeded resource loses its cached fingerprint: the rows now hold snapshot
// data, so the next probe must report a change and refetch.
func (s *Seeder) Seed(ctx context.Context, resources []Resource) (int, error) {
	var (
		seeded int
		errs   []error
	)

	for _, r := range resources {
		current, err := s.versions.SchemaVersion(ctx, r.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if current == s.version {
			continue
		}

		body, err := fs.ReadFile(s.files, r.SeedFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logging.Debug().Str("resource", r.Name).Msg("No seed snapshot")
		case err != nil:
			errs = append(errs, fmt.Errorf("reading seed %s: %w", r.SeedFile, err))
			continue
		default:
			stats, err := applyPayload(ctx, s.applier, r, body)
			if err != nil {
				logging.Error().Err(err).Str("resource", r.Name).Msg("Seeding failed")
				errs = append(errs, fmt.Errorf("seeding %s: %w", r.Name, err))
				continue
			}
			if err := s.fingerprints.Delete(r.URL); err != nil {
				errs = append(errs, fmt.Errorf("resetting fingerprint for %s: %w", r.Name, err))
				continue
			}
			seeded++
			logging.Info().Str("resource", r.Name).Int64("rows", stats.Upserted+stats.Updated).Int("schema_version", s.version).Msg("Seeded from snapshot")
		}

		if err := s.versions.SetSchemaVersion(ctx, r.Name, s.version); err != nil {
			errs = append(errs, err)
		}
	}

	return seeded, errors.Join(errs...)
}
