package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. CONFSCHED_SERVER_ADDR.
const EnvPrefix = "CONFSCHED_"

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/confsched/config.yaml",
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8099",
			StaticDir:       "./static",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "/data/confsched.db",
		},
		Fingerprints: FingerprintConfig{
			Dir: "/data/fingerprints",
		},
		Feeds: FeedsConfig{
			BaseURL:          "https://cfp.example.org/api/conference/",
			URLs:             map[string]string{},
			ProbeURL:         "https://cfp.example.org/api/md5",
			ProbeUnavailable: "NOT_AVAILABLE",
		},
		Remote: RemoteConfig{
			StarSyncURL:     "https://sync.example.org/api/stars",
			RegistrationURL: "https://sync.example.org/api/devices",
			ConnectTimeout:  20 * time.Second,
			SocketTimeout:   20 * time.Second,
		},
		Sync: SyncConfig{
			ScheduleInterval: 6 * time.Hour,
			NewsInterval:     30 * time.Minute,
			TweetsInterval:   15 * time.Minute,
			StarsInterval:    time.Hour,
			WifiOnly:         false,
			Background:       true,
			SchemaVersion:    1,
		},
		Network: NetworkConfig{
			Connected: true,
			Unmetered: true,
		},
		Push: PushConfig{
			NATSEnabled: false,
			NATSURL:     "nats://127.0.0.1:4222",
			Subject:     "confsched.push",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load builds the configuration: defaults, then the config file if one is
// found, then environment variables.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load with an explicit config file path; an empty path skips
// the file layer.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransform maps CONFSCHED_SYNC_WIFI_ONLY to sync.wifi_only: the first
// segment names the section, the rest is the key.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return key
	}
	return section + "." + rest
}
