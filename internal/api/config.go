package api

import "time"

// Config holds server configuration.
type Config struct {
	Port              int
	Version           string        // Reported by /health
	RateLimitRequests int           // Requests per minute (0 = disabled)
	RateLimitBurst    int           // Burst size
	AllowedOrigins    []string      // CORS allowed origins (empty = allow all)
	SlowRequest       time.Duration // Requests slower than this are logged (0 = 5s)
}
