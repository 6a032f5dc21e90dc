package main

import (
	"fmt"
	"io"
	"time"

	"github.com/FocuswithJustin/psalter/core/psalter"
	"github.com/FocuswithJustin/psalter/core/verses"
	"github.com/FocuswithJustin/psalter/internal/api"
	"github.com/FocuswithJustin/psalter/internal/cache"
	"github.com/FocuswithJustin/psalter/internal/config"
	"github.com/FocuswithJustin/psalter/internal/logging"
	"github.com/FocuswithJustin/psalter/internal/lookup"
	"github.com/FocuswithJustin/psalter/internal/server"
	"github.com/FocuswithJustin/psalter/internal/source"
	"github.com/FocuswithJustin/psalter/internal/store"
	"github.com/FocuswithJustin/psalter/internal/telemetry"
)

// app is the wired engine shared by the lookup commands and the server.
type app struct {
	cfg       *config.Config
	metrics   *telemetry.Metrics
	snapshots *store.Snapshots
	service   *lookup.Service
}

// newApp loads configuration, initializes logging to logOut and wires the
// fetcher, caches, metrics and lookup service.
func newApp(g *Globals, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Logging.Format = g.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level, _ := cfg.LogLevel()
	format, _ := cfg.LogFormat()
	logging.InitLoggerWithWriter(logOut, level, format)

	fetcher, err := source.NewHTTPFetcher(cfg.FetcherConfig())
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, metrics: telemetry.NewMetrics()}

	memory := cache.New[int, *verses.VerseMap](cfg.TTL())
	var verseCache psalter.Cache = memory
	if cfg.Cache.SnapshotDB != "" {
		a.snapshots, err = store.Open(cfg.Cache.SnapshotDB, cfg.TTL())
		if err != nil {
			return nil, err
		}
		verseCache = cache.NewTiered[int, *verses.VerseMap](time.Now, memory, a.snapshots)
		logging.Info("snapshot store enabled",
			"path", server.AbsPath(cfg.Cache.SnapshotDB),
			"driver", store.DriverName(),
			"driver_type", store.DriverType())
	}

	client := psalter.New(fetcher,
		psalter.WithCache(verseCache),
		psalter.WithEmptyPolicy(cfg.EmptyPolicy()),
		psalter.WithObserver(a.metrics),
	)
	a.service = lookup.New(client,
		lookup.WithTimeout(cfg.LookupTimeout()),
		lookup.WithRecorder(a.metrics),
	)
	return a, nil
}

// apiConfig converts the server section for api.NewServer.
func (a *app) apiConfig() api.Config {
	return api.Config{
		Port:              a.cfg.Server.Port,
		Version:           version,
		RateLimitRequests: a.cfg.Server.RateLimitRequests,
		RateLimitBurst:    a.cfg.Server.RateLimitBurst,
		AllowedOrigins:    a.cfg.Server.AllowedOrigins,
	}
}

// Close releases the snapshot store.
func (a *app) Close() {
	if a.snapshots != nil {
		if err := a.snapshots.Close(); err != nil {
			logging.Warn("closing snapshot store", "error", err.Error())
		}
	}
}
