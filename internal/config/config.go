// Package config loads service configuration from defaults, an optional YAML
// file and CONFSCHED_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// maxRemoteTimeout bounds connect and socket timeouts.
const maxRemoteTimeout = 2 * time.Minute

// Config is the root configuration.
type Config struct {
	Server       ServerConfig      `koanf:"server"`
	Database     DatabaseConfig    `koanf:"database"`
	Fingerprints FingerprintConfig `koanf:"fingerprints"`
	Feeds        FeedsConfig       `koanf:"feeds"`
	Remote       RemoteConfig      `koanf:"remote"`
	Sync         SyncConfig        `koanf:"sync"`
	Network      NetworkConfig     `koanf:"network"`
	Push         PushConfig        `koanf:"push"`
	Logging      LoggingConfig     `koanf:"logging"`
	Supervisor   SupervisorConfig  `koanf:"supervisor"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	StaticDir       string        `koanf:"static_dir"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig locates the local SQLite store.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// FingerprintConfig configures the BadgerDB fingerprint cache.
type FingerprintConfig struct {
	Dir      string `koanf:"dir"`
	InMemory bool   `koanf:"in_memory"`
}

// FeedsConfig holds the remote feed endpoints.
type FeedsConfig struct {
	// BaseURL is joined with each resource's default path unless the
	// resource has an explicit override in URLs.
	BaseURL string `koanf:"base_url"`
	// URLs overrides individual resource URLs keyed by resource name.
	URLs map[string]string `koanf:"urls"`
	// ProbeURL is the cheap fingerprint endpoint; the resource URL is passed
	// as the "url" query parameter.
	ProbeURL string `koanf:"probe_url"`
	// ProbeUnavailable is the body the probe returns when it cannot hash.
	ProbeUnavailable string `koanf:"probe_unavailable"`
}

// RemoteConfig configures the star-sync and registration collaborators.
type RemoteConfig struct {
	StarSyncURL     string        `koanf:"star_sync_url"`
	RegistrationURL string        `koanf:"registration_url"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	SocketTimeout   time.Duration `koanf:"socket_timeout"`
}

// SyncConfig configures sync cadence and defaults for persisted preferences.
type SyncConfig struct {
	ScheduleInterval time.Duration `koanf:"schedule_interval"`
	NewsInterval     time.Duration `koanf:"news_interval"`
	TweetsInterval   time.Duration `koanf:"tweets_interval"`
	StarsInterval    time.Duration `koanf:"stars_interval"`
	WifiOnly         bool          `koanf:"wifi_only"`
	Background       bool          `koanf:"background"`
	SeedDir          string        `koanf:"seed_dir"`
	SchemaVersion    int           `koanf:"schema_version"`
}

// NetworkConfig is the static connectivity policy used by the change detector.
type NetworkConfig struct {
	Connected bool `koanf:"connected"`
	Unmetered bool `koanf:"unmetered"`
}

// PushConfig configures the NATS push adapter.
type PushConfig struct {
	NATSEnabled bool   `koanf:"nats_enabled"`
	NATSURL     string `koanf:"nats_url"`
	Subject     string `koanf:"subject"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig configures the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// FeedURL returns the URL for a resource, honoring overrides.
func (c *FeedsConfig) FeedURL(resource, defaultPath string) string {
	if u, ok := c.URLs[resource]; ok && u != "" {
		return u
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return c.BaseURL + defaultPath
	}
	return base.JoinPath(defaultPath).String()
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if !c.Fingerprints.InMemory && c.Fingerprints.Dir == "" {
		errs = append(errs, errors.New("fingerprints.dir is required unless fingerprints.in_memory is set"))
	}
	for name, raw := range map[string]string{
		"feeds.base_url":          c.Feeds.BaseURL,
		"feeds.probe_url":         c.Feeds.ProbeURL,
		"remote.star_sync_url":    c.Remote.StarSyncURL,
		"remote.registration_url": c.Remote.RegistrationURL,
	} {
		if err := validateURL(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	for name, d := range map[string]time.Duration{
		"remote.connect_timeout": c.Remote.ConnectTimeout,
		"remote.socket_timeout":  c.Remote.SocketTimeout,
	} {
		if d <= 0 || d > maxRemoteTimeout {
			errs = append(errs, fmt.Errorf("%s must be in (0, %s], got %s", name, maxRemoteTimeout, d))
		}
	}
	for name, d := range map[string]time.Duration{
		"sync.schedule_interval": c.Sync.ScheduleInterval,
		"sync.news_interval":     c.Sync.NewsInterval,
		"sync.tweets_interval":   c.Sync.TweetsInterval,
		"sync.stars_interval":    c.Sync.StarsInterval,
	} {
		if d < time.Minute {
			errs = append(errs, fmt.Errorf("%s must be at least 1m, got %s", name, d))
		}
	}
	if c.Sync.SchemaVersion <= 0 {
		errs = append(errs, errors.New("sync.schema_version must be positive"))
	}
	if c.Push.NATSEnabled && (c.Push.NATSURL == "" || c.Push.Subject == "") {
		errs = append(errs, errors.New("push.nats_url and push.subject are required when push.nats_enabled is set"))
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
