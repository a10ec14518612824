package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
database:
  path: /tmp/test.db
sync:
  news_interval: 45m
  wifi_only: true
feeds:
  urls:
    tweets: https://search.example.org/search.atom?q=conf
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFSCHED_SERVER_ADDR", ":9999")
	t.Setenv("CONFSCHED_REMOTE_SOCKET_TIMEOUT", "5s")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.Sync.NewsInterval != 45*time.Minute {
		t.Errorf("sync.news_interval = %s", cfg.Sync.NewsInterval)
	}
	if !cfg.Sync.WifiOnly {
		t.Error("sync.wifi_only should come from the file")
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("server.addr = %q, want env override", cfg.Server.Addr)
	}
	if cfg.Remote.SocketTimeout != 5*time.Second {
		t.Errorf("remote.socket_timeout = %s", cfg.Remote.SocketTimeout)
	}
	if got := cfg.Feeds.FeedURL("tweets", "tweets"); got != "https://search.example.org/search.atom?q=conf" {
		t.Errorf("tweets override not applied: %s", got)
	}
	// Untouched defaults survive the merge.
	if cfg.Sync.ScheduleInterval != 6*time.Hour {
		t.Errorf("sync.schedule_interval = %s", cfg.Sync.ScheduleInterval)
	}
}

func TestValidateRejectsUnboundedTimeouts(t *testing.T) {
	cfg := Default()
	cfg.Remote.ConnectTimeout = 0
	cfg.Remote.SocketTimeout = 10 * time.Minute

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"remote.connect_timeout", "remote.socket_timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestValidateRequiresNATSSettings(t *testing.T) {
	cfg := Default()
	cfg.Push.NATSEnabled = true
	cfg.Push.Subject = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing subject")
	}
}

func TestFeedURLJoinsBase(t *testing.T) {
	f := FeedsConfig{BaseURL: "https://cfp.example.org/api/conference/"}
	if got := f.FeedURL("rooms", "rooms.xml"); got != "https://cfp.example.org/api/conference/rooms.xml" {
		t.Fatalf("FeedURL = %s", got)
	}
}

func TestEnvTransform(t *testing.T) {
	tests := map[string]string{
		"CONFSCHED_SYNC_WIFI_ONLY":    "sync.wifi_only",
		"CONFSCHED_DATABASE_PATH":     "database.path",
		"CONFSCHED_PUSH_NATS_ENABLED": "push.nats_enabled",
		"CONFSCHED_LOGGING":           "logging",
	}
	for in, want := range tests {
		if got := envTransform(in); got != want {
			t.Errorf("envTransform(%q) = %q, want %q", in, got, want)
		}
	}
}
