package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FocuswithJustin/psalter/core/psalter"
	"github.com/FocuswithJustin/psalter/internal/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "psalter.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.TTL() != 600*time.Second {
		t.Errorf("TTL() = %v, want 10m", cfg.TTL())
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.LookupTimeout() != 20*time.Second {
		t.Errorf("LookupTimeout() = %v, want 20s", cfg.LookupTimeout())
	}
	if cfg.EmptyPolicy() != psalter.EmptyFail {
		t.Errorf("EmptyPolicy() = %v, want fail", cfg.EmptyPolicy())
	}
	fc := cfg.FetcherConfig()
	if fc.ConnectTimeout != 10*time.Second || fc.ReadTimeout != 10*time.Second || fc.Timeout != 15*time.Second {
		t.Errorf("FetcherConfig() timeouts = %v/%v/%v", fc.ConnectTimeout, fc.ReadTimeout, fc.Timeout)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
[source]
base_url = "https://mirror.example.org"
edition = "1773"

[cache]
ttl_seconds = 0
snapshot_db = "/var/lib/psalter/snapshots.db"
empty_max_policy = "one"

[server]
port = 9090
allowed_origins = ["https://app.example.org"]
rate_limit_requests = 60

[logging]
level = "debug"
format = "text"
`)
	t.Setenv("PSALM_SOURCE_BASE", "")
	t.Setenv("CACHE_SECONDS", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Source.BaseURL != "https://mirror.example.org" {
		t.Errorf("BaseURL = %q", cfg.Source.BaseURL)
	}
	if cfg.Source.PathTemplate != "/psalmen.php?psalm={psalm}" {
		t.Errorf("PathTemplate = %q, want default kept", cfg.Source.PathTemplate)
	}
	if cfg.TTL() != 0 {
		t.Errorf("TTL() = %v, want 0", cfg.TTL())
	}
	if cfg.EmptyPolicy() != psalter.EmptyFallbackOne {
		t.Errorf("EmptyPolicy() = %v, want one", cfg.EmptyPolicy())
	}
	if cfg.Server.Port != 9090 || len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if lvl, _ := cfg.LogLevel(); lvl != logging.LevelDebug {
		t.Errorf("LogLevel() = %v, want debug", lvl)
	}
	if f, _ := cfg.LogFormat(); f != logging.FormatText {
		t.Errorf("LogFormat() = %v, want text", f)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Source.BaseURL != Default().Source.BaseURL {
		t.Errorf("BaseURL = %q, want default", cfg.Source.BaseURL)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", "[cache\nttl_seconds = 1"},
		{"unknown key", "[cache]\nttl = 5"},
		{"wrong type", "[server]\nport = \"eighty\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(env(map[string]string{
		"PSALM_SOURCE_BASE":   "http://localhost:8000",
		"PSALM_BERIJMING":     "1967",
		"CACHE_SECONDS":       "30",
		"PSALTER_SNAPSHOT_DB": "snap.db",
		"PSALTER_PORT":        "8181",
		"PSALTER_LOG_LEVEL":   "warn",
	}))
	if err != nil {
		t.Fatalf("applyEnv() error = %v", err)
	}
	if cfg.Source.BaseURL != "http://localhost:8000" || cfg.Source.Edition != "1967" {
		t.Errorf("Source = %+v", cfg.Source)
	}
	if cfg.TTL() != 30*time.Second {
		t.Errorf("TTL() = %v, want 30s", cfg.TTL())
	}
	if cfg.Cache.SnapshotDB != "snap.db" || cfg.Server.Port != 8181 || cfg.Logging.Level != "warn" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestApplyEnv_BadNumbers(t *testing.T) {
	for _, name := range []string{"CACHE_SECONDS", "PSALTER_PORT"} {
		cfg := Default()
		if err := cfg.applyEnv(env(map[string]string{name: "ten"})); err == nil {
			t.Errorf("applyEnv(%s=ten) error = nil, want error", name)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative ttl", func(c *Config) { c.Cache.TTLSeconds = -1 }},
		{"relative base url", func(c *Config) { c.Source.BaseURL = "psalmboek.nl" }},
		{"ftp base url", func(c *Config) { c.Source.BaseURL = "ftp://psalmboek.nl" }},
		{"template without psalm", func(c *Config) { c.Source.PathTemplate = "/psalmen.php" }},
		{"unknown policy", func(c *Config) { c.Cache.EmptyMaxPolicy = "zero" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"negative rate limit", func(c *Config) { c.Server.RateLimitRequests = -5 }},
		{"negative timeout", func(c *Config) { c.Source.TimeoutSeconds = -1 }},
		{"negative lookup timeout", func(c *Config) { c.Lookup.TimeoutSeconds = -1 }},
		{"snapshot path with newline", func(c *Config) { c.Cache.SnapshotDB = "snap\nshots.db" }},
		{"origin with path", func(c *Config) { c.Server.AllowedOrigins = []string{"https://kerk.example/app"} }},
		{"user agent with CRLF", func(c *Config) { c.Source.UserAgent = "psalter\r\nX-Evil: 1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() error = nil, want error")
			}
		})
	}
}
