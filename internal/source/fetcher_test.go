package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FocuswithJustin/psalter/core/errors"
)

func TestHTTPFetcher_URL(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		psalm    int
		expected string
	}{
		{
			name:     "defaults",
			cfg:      Config{},
			psalm:    118,
			expected: "https://psalmboek.nl/psalmen.php?psalm=118",
		},
		{
			name:     "edition placeholder and trailing slash",
			cfg:      Config{BaseURL: "https://example.org/", PathTemplate: "berijming/{edition}/psalm/{psalm}", Edition: "1773"},
			psalm:    23,
			expected: "https://example.org/berijming/1773/psalm/23",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewHTTPFetcher(tt.cfg)
			if err != nil {
				t.Fatalf("NewHTTPFetcher() error = %v", err)
			}
			if got := f.URL(tt.psalm); got != tt.expected {
				t.Errorf("URL(%d) = %q, want %q", tt.psalm, got, tt.expected)
			}
		})
	}
}

func TestNewHTTPFetcher_RejectsBadConfig(t *testing.T) {
	tests := []Config{
		{BaseURL: "ftp://psalmboek.nl"},
		{BaseURL: "https://"},
		{BaseURL: "://broken"},
		{PathTemplate: "/psalmen.php"},
	}
	for _, cfg := range tests {
		if _, err := NewHTTPFetcher(cfg); err == nil {
			t.Errorf("NewHTTPFetcher(%+v) error = nil, want error", cfg)
		}
	}
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<p>Vers 1<br>Laat Isrel nu verblijd</p>"))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	body, err := f.Fetch(context.Background(), 118)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.Contains(string(body), "Laat Isrel") {
		t.Errorf("Fetch() body = %q", body)
	}
	if got.URL.Query().Get("psalm") != "118" {
		t.Errorf("request query = %q, want psalm=118", got.URL.RawQuery)
	}
	if got.Header.Get("User-Agent") != DefaultUserAgent {
		t.Errorf("User-Agent = %q", got.Header.Get("User-Agent"))
	}
	if !strings.HasPrefix(got.Header.Get("Accept-Language"), "nl-NL") {
		t.Errorf("Accept-Language = %q, want nl-NL first", got.Header.Get("Accept-Language"))
	}
}

func TestHTTPFetcher_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/psalmen.php?psalm=1", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/psalmen.php", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("welzalig"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f, err := NewHTTPFetcher(Config{BaseURL: srv.URL, PathTemplate: "/old?psalm={psalm}"})
	if err != nil {
		t.Fatal(err)
	}
	body, err := f.Fetch(context.Background(), 1)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(body) != "welzalig" {
		t.Errorf("Fetch() = %q, want welzalig", body)
	}
}

func TestHTTPFetcher_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f, _ := NewHTTPFetcher(Config{BaseURL: srv.URL})
	_, err := f.Fetch(context.Background(), 151)

	var su *errors.SourceUnavailableError
	if !errors.As(err, &su) {
		t.Fatalf("Fetch() error = %v, want SourceUnavailableError", err)
	}
	if su.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", su.StatusCode)
	}
	if su.URL != f.URL(151) {
		t.Errorf("URL = %q, want %q", su.URL, f.URL(151))
	}
}

func TestHTTPFetcher_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	f, _ := NewHTTPFetcher(Config{BaseURL: base, ConnectTimeout: time.Second})
	_, err := f.Fetch(context.Background(), 1)
	if !errors.Is(err, errors.ErrSourceUnavailable) {
		t.Errorf("Fetch() error = %v, want SourceUnavailable", err)
	}
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f, _ := NewHTTPFetcher(Config{BaseURL: srv.URL, ReadTimeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := f.Fetch(context.Background(), 1)
	if !errors.Is(err, errors.ErrSourceUnavailable) {
		t.Fatalf("Fetch() error = %v, want SourceUnavailable", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Fetch() did not fail fast on a stalled response")
	}
}

func TestHTTPFetcher_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", MaxBodySize+1)))
	}))
	defer srv.Close()

	f, _ := NewHTTPFetcher(Config{BaseURL: srv.URL})
	_, err := f.Fetch(context.Background(), 1)
	if !errors.Is(err, errors.ErrSourceUnavailable) {
		t.Errorf("Fetch() error = %v, want SourceUnavailable for oversized body", err)
	}
}

func TestHTTPFetcher_TruncatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.Write([]byte("<html><bo"))
	}))
	defer srv.Close()

	f, _ := NewHTTPFetcher(Config{BaseURL: srv.URL})
	_, err := f.Fetch(context.Background(), 1)
	if !errors.Is(err, errors.ErrSourceUnavailable) {
		t.Fatalf("Fetch() error = %v, want SourceUnavailable", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) || !strings.Contains(err.Error(), "reading body: ") {
		t.Errorf("Fetch() error = %q, want wrapped reading body cause", err)
	}
}
