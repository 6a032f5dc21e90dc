// Package api provides the psalter REST API server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/FocuswithJustin/psalter/internal/logging"
	"github.com/FocuswithJustin/psalter/internal/lookup"
	"github.com/FocuswithJustin/psalter/internal/server"
)

const (
	defaultSlowRequest = 5 * time.Second
	shutdownTimeout    = 10 * time.Second
)

// Server serves psalm lookups over HTTP.
type Server struct {
	cfg     Config
	lookup  *lookup.Service
	metrics http.Handler
	limiter *RateLimiter
	started time.Time
}

// NewServer creates a server on top of svc. metrics may be nil, in which
// case /metrics is not routed.
func NewServer(cfg Config, svc *lookup.Service, metrics http.Handler) *Server {
	if cfg.SlowRequest <= 0 {
		cfg.SlowRequest = defaultSlowRequest
	}
	return &Server{
		cfg:     cfg,
		lookup:  svc,
		metrics: metrics,
		started: time.Now(),
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/psalm/healthz", s.handleHealthz)
	mux.HandleFunc("/api/psalm/lookup", s.handleLookup)
	mux.HandleFunc("/api/psalm/max", s.handleMax)
	mux.HandleFunc("/api/psalm/vers", s.handleVerse)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	return mux
}

// Handler builds the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	cspConfig := server.APICSPConfig()
	var handler http.Handler = server.SecurityHeadersWithCSP(cspConfig, s.setupRoutes())
	handler = server.SlowRequestMiddleware(s.cfg.SlowRequest, handler)

	// Apply rate limiting if configured
	if s.cfg.RateLimitRequests > 0 {
		if s.limiter == nil {
			s.limiter = NewRateLimiter(RateLimiterConfig{
				RequestsPerMinute: s.cfg.RateLimitRequests,
				BurstSize:         s.cfg.RateLimitBurst,
			})
			logging.Info("rate limiting enabled",
				"requests_per_minute", s.cfg.RateLimitRequests,
				"burst_size", s.limiter.config.BurstSize)
		}
		handler = s.limiter.Middleware(handler)
	}

	handler = server.CORSMiddlewareWithConfig(server.CORSConfig{AllowedOrigins: s.cfg.AllowedOrigins}, handler)
	if len(s.cfg.AllowedOrigins) > 0 {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "restricted",
			"allowed_origins_count", len(s.cfg.AllowedOrigins))
	} else {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "permissive",
			"note", "allowing all origins (*)")
	}

	return logging.CombinedMiddleware(handler)
}

// Close releases background resources.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
}

// ListenAndServe serves on the configured port until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", s.cfg.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.Close()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	logging.ServerStartup("rest_api", "http", s.cfg.Port, "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down", "server", "rest_api")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
