package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FocuswithJustin/psalter/internal/logging"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSMiddlewareAllowAll(t *testing.T) {
	handler := CORSMiddlewareWithConfig(CORSConfig{}, okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/psalm/max?psalm=1", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header to allow all origins")
	}
	if resp.Header.Get("Access-Control-Allow-Methods") != "GET, OPTIONS" {
		t.Errorf("unexpected methods header %q", resp.Header.Get("Access-Control-Allow-Methods"))
	}
	if resp.Header.Get("Access-Control-Allow-Credentials") != "" {
		t.Error("credentials must not be allowed with a wildcard origin")
	}
}

func TestCORSMiddlewareWithConfigRestrictedOrigins(t *testing.T) {
	cfg := CORSConfig{
		AllowedOrigins: []string{"https://example.com", "https://trusted.com"},
	}
	handler := CORSMiddlewareWithConfig(cfg, okHandler())

	tests := []struct {
		name              string
		method            string
		origin            string
		expectStatus      int
		expectAllowOrigin string
	}{
		{"allowed origin", http.MethodGet, "https://example.com", http.StatusOK, "https://example.com"},
		{"second allowed origin", http.MethodGet, "https://trusted.com", http.StatusOK, "https://trusted.com"},
		{"disallowed origin", http.MethodGet, "https://evil.com", http.StatusOK, ""},
		{"disallowed preflight", http.MethodOptions, "https://evil.com", http.StatusForbidden, ""},
		{"allowed preflight", http.MethodOptions, "https://example.com", http.StatusNoContent, "https://example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.expectStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.expectStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.expectAllowOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.expectAllowOrigin)
			}
			if tt.expectAllowOrigin != "" && w.Header().Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("expected credentials header for a named origin")
			}
		})
	}
}

func TestAbsPath(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if got := AbsPath("snapshots.db"); got != filepath.Join(wd, "snapshots.db") {
		t.Errorf("AbsPath() = %q", got)
	}
	if got := AbsPath("/var/lib/psalter.db"); got != "/var/lib/psalter.db" {
		t.Errorf("AbsPath() = %q, want unchanged absolute path", got)
	}
}

func TestSlowRequestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logging.InitLoggerWithWriter(&buf, logging.LevelInfo, logging.FormatJSON)
	defer logging.InitLogger(logging.LevelInfo, logging.FormatJSON)

	slow := SlowRequestMiddleware(10*time.Millisecond, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(30 * time.Millisecond)
	}))
	slow.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/psalm/lookup", nil))
	if !strings.Contains(buf.String(), "slow request") {
		t.Errorf("expected slow request warning, got %q", buf.String())
	}

	buf.Reset()
	fast := SlowRequestMiddleware(time.Second, okHandler())
	fast.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if buf.Len() != 0 {
		t.Errorf("fast request logged %q", buf.String())
	}
}
