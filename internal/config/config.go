// Package config loads psalter configuration from defaults, an optional TOML
// file and environment variables, in that order.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/FocuswithJustin/psalter/core/psalter"
	"github.com/FocuswithJustin/psalter/internal/logging"
	"github.com/FocuswithJustin/psalter/internal/source"
	"github.com/FocuswithJustin/psalter/internal/validation"
)

// Config is the complete service configuration.
type Config struct {
	Source  SourceConfig  `toml:"source"`
	Cache   CacheConfig   `toml:"cache"`
	Lookup  LookupConfig  `toml:"lookup"`
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
}

// SourceConfig describes the psalter website.
type SourceConfig struct {
	BaseURL               string `toml:"base_url"`
	PathTemplate          string `toml:"path_template"`
	Edition               string `toml:"edition"`
	UserAgent             string `toml:"user_agent"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
	ReadTimeoutSeconds    int    `toml:"read_timeout_seconds"`
	TimeoutSeconds        int    `toml:"timeout_seconds"`
}

// CacheConfig controls verse caching.
type CacheConfig struct {
	TTLSeconds     int    `toml:"ttl_seconds"`      // 0 disables caching
	SnapshotDB     string `toml:"snapshot_db"`      // empty disables the SQLite layer
	EmptyMaxPolicy string `toml:"empty_max_policy"` // "fail" or "one"
}

// LookupConfig bounds one end-to-end lookup.
type LookupConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// ServerConfig configures the REST server.
type ServerConfig struct {
	Port              int      `toml:"port"`
	AllowedOrigins    []string `toml:"allowed_origins"`     // empty = allow all
	RateLimitRequests int      `toml:"rate_limit_requests"` // per minute, 0 = disabled
	RateLimitBurst    int      `toml:"rate_limit_burst"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			BaseURL:               source.DefaultBaseURL,
			PathTemplate:          source.DefaultPathTemplate,
			Edition:               source.DefaultEdition,
			UserAgent:             source.DefaultUserAgent,
			ConnectTimeoutSeconds: int(source.DefaultConnectTimeout / time.Second),
			ReadTimeoutSeconds:    int(source.DefaultReadTimeout / time.Second),
			TimeoutSeconds:        int(source.DefaultTimeout / time.Second),
		},
		Cache: CacheConfig{
			TTLSeconds:     int(psalter.DefaultTTL / time.Second),
			EmptyMaxPolicy: psalter.EmptyFail.String(),
		},
		Lookup: LookupConfig{
			TimeoutSeconds: 20,
		},
		Server: ServerConfig{
			Port:           8080,
			RateLimitBurst: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the TOML file at path over the defaults and then applies
// environment overrides. An empty path or a missing file yields the defaults.
// Unknown keys in the file are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("parsing config: unknown keys %s", strings.Join(keys, ", "))
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies environment overrides. The first three names are the ones
// the service has always used.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PSALM_SOURCE_BASE"); ok && v != "" {
		c.Source.BaseURL = v
	}
	if v, ok := lookup("PSALM_BERIJMING"); ok && v != "" {
		c.Source.Edition = v
	}
	if v, ok := lookup("CACHE_SECONDS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CACHE_SECONDS: %w", err)
		}
		c.Cache.TTLSeconds = n
	}
	if v, ok := lookup("PSALTER_SNAPSHOT_DB"); ok {
		c.Cache.SnapshotDB = v
	}
	if v, ok := lookup("PSALTER_PORT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PSALTER_PORT: %w", err)
		}
		c.Server.Port = n
	}
	if v, ok := lookup("PSALTER_LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	base, err := url.Parse(c.Source.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return fmt.Errorf("source.base_url %q must be an absolute http(s) url", c.Source.BaseURL)
	}
	if !strings.Contains(c.Source.PathTemplate, "{psalm}") {
		return fmt.Errorf("source.path_template %q lacks a {psalm} placeholder", c.Source.PathTemplate)
	}
	if err := validation.ValidateHeaderValue(c.Source.UserAgent); err != nil {
		return fmt.Errorf("source.user_agent: %w", err)
	}
	if c.Source.ConnectTimeoutSeconds < 0 || c.Source.ReadTimeoutSeconds < 0 || c.Source.TimeoutSeconds < 0 {
		return fmt.Errorf("source timeouts must not be negative")
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("cache.ttl_seconds must not be negative, got %d", c.Cache.TTLSeconds)
	}
	if c.Cache.SnapshotDB != "" {
		if err := validation.ValidatePath(c.Cache.SnapshotDB); err != nil {
			return fmt.Errorf("cache.snapshot_db: %w", err)
		}
	}
	if _, err := psalter.ParseEmptyPolicy(c.Cache.EmptyMaxPolicy); err != nil {
		return fmt.Errorf("cache.empty_max_policy: %w", err)
	}
	if c.Lookup.TimeoutSeconds < 0 {
		return fmt.Errorf("lookup.timeout_seconds must not be negative, got %d", c.Lookup.TimeoutSeconds)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	for _, origin := range c.Server.AllowedOrigins {
		if err := validation.ValidateOrigin(origin); err != nil {
			return fmt.Errorf("server.allowed_origins: %w", err)
		}
	}
	if c.Server.RateLimitRequests < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("server rate limits must not be negative")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if _, err := c.LogFormat(); err != nil {
		return err
	}
	return nil
}

// TTL returns the cache time-to-live.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// LookupTimeout returns the bound on one end-to-end lookup.
func (c *Config) LookupTimeout() time.Duration {
	return time.Duration(c.Lookup.TimeoutSeconds) * time.Second
}

// EmptyPolicy returns the parsed empty-map policy.
func (c *Config) EmptyPolicy() psalter.EmptyPolicy {
	p, _ := psalter.ParseEmptyPolicy(c.Cache.EmptyMaxPolicy)
	return p
}

// FetcherConfig converts the source section for source.NewHTTPFetcher.
func (c *Config) FetcherConfig() source.Config {
	return source.Config{
		BaseURL:        c.Source.BaseURL,
		PathTemplate:   c.Source.PathTemplate,
		Edition:        c.Source.Edition,
		UserAgent:      c.Source.UserAgent,
		ConnectTimeout: time.Duration(c.Source.ConnectTimeoutSeconds) * time.Second,
		ReadTimeout:    time.Duration(c.Source.ReadTimeoutSeconds) * time.Second,
		Timeout:        time.Duration(c.Source.TimeoutSeconds) * time.Second,
	}
}

// LogLevel parses the logging level.
func (c *Config) LogLevel() (logging.Level, error) {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return logging.LevelDebug, nil
	case "", "info":
		return logging.LevelInfo, nil
	case "warn", "warning":
		return logging.LevelWarn, nil
	case "error":
		return logging.LevelError, nil
	default:
		return logging.LevelInfo, fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
}

// LogFormat parses the logging format.
func (c *Config) LogFormat() (logging.Format, error) {
	switch strings.ToLower(c.Logging.Format) {
	case "", "json":
		return logging.FormatJSON, nil
	case "text":
		return logging.FormatText, nil
	default:
		return logging.FormatJSON, fmt.Errorf("logging.format %q must be json or text", c.Logging.Format)
	}
}
