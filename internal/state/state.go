// Package state holds the persisted sync preferences and flags that the sync
// components consult. A single SyncState is built at startup and passed to
// every component that needs it.
package state

import (
	"context"
	"fmt"
	"strconv"

	"github.com/conference-schedule/backend/internal/logging"
)

// Setting keys.
const (
	KeyWifiOnly            = "wifi_only"
	KeyBackgroundSync      = "background_sync"
	KeyStarSyncInitialized = "star_sync_initialized"

	schemaVersionPrefix = "schema_version."
)

// Settings is the key/value store backing SyncState.
type Settings interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Defaults apply until the user stores a preference.
type Defaults struct {
	WifiOnly       bool
	BackgroundSync bool
}

// Preferences is a snapshot of the user's sync preferences.
type Preferences struct {
	WifiOnly       bool `json:"wifi_only"`
	BackgroundSync bool `json:"background_sync"`
}

// SyncState reads and writes sync preferences, per-kind schema versions and
// the first star sync flag.
type SyncState struct {
	settings Settings
	defaults Defaults
}

// New creates a SyncState over settings.
func New(settings Settings, defaults Defaults) *SyncState {
	return &SyncState{settings: settings, defaults: defaults}
}

// Preferences returns the current preferences. Unreadable values fall back to
// the defaults.
func (s *SyncState) Preferences(ctx context.Context) Preferences {
	return Preferences{
		WifiOnly:       s.bool(ctx, KeyWifiOnly, s.defaults.WifiOnly),
		BackgroundSync: s.bool(ctx, KeyBackgroundSync, s.defaults.BackgroundSync),
	}
}

// WifiOnly reports whether remote fetches are limited to unmetered networks.
func (s *SyncState) WifiOnly(ctx context.Context) bool {
	return s.bool(ctx, KeyWifiOnly, s.defaults.WifiOnly)
}

// BackgroundSync reports whether periodic syncs may run.
func (s *SyncState) BackgroundSync(ctx context.Context) bool {
	return s.bool(ctx, KeyBackgroundSync, s.defaults.BackgroundSync)
}

// SetPreferences stores both preferences.
func (s *SyncState) SetPreferences(ctx context.Context, p Preferences) error {
	if err := s.settings.Set(ctx, KeyWifiOnly, strconv.FormatBool(p.WifiOnly)); err != nil {
		return err
	}
	return s.settings.Set(ctx, KeyBackgroundSync, strconv.FormatBool(p.BackgroundSync))
}

// SchemaVersion returns the last seeded schema version for kind, 0 if none.
func (s *SyncState) SchemaVersion(ctx context.Context, kind string) (int, error) {
	v, ok, err := s.settings.Get(ctx, schemaVersionPrefix+kind)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("schema version for %s: %w", kind, err)
	}
	return n, nil
}

// SetSchemaVersion records that kind has been seeded at version.
func (s *SyncState) SetSchemaVersion(ctx context.Context, kind string, version int) error {
	return s.settings.Set(ctx, schemaVersionPrefix+kind, strconv.Itoa(version))
}

// StarSyncInitialized reports whether a star sync has ever succeeded.
func (s *SyncState) StarSyncInitialized(ctx context.Context) (bool, error) {
	v, ok, err := s.settings.Get(ctx, KeyStarSyncInitialized)
	if err != nil || !ok {
		return false, err
	}
	return v == "true", nil
}

// SetStarSyncInitialized sets or resets the first star sync flag.
func (s *SyncState) SetStarSyncInitialized(ctx context.Context, initialized bool) error {
	return s.settings.Set(ctx, KeyStarSyncInitialized, strconv.FormatBool(initialized))
}

func (s *SyncState) bool(ctx context.Context, key string, def bool) bool {
	v, ok, err := s.settings.Get(ctx, key)
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Failed to read setting, using default")
		return def
	}
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logging.Warn().Str("key", key).Str("value", v).Msg("Invalid boolean setting, using default")
		return def
	}
	return b
}
