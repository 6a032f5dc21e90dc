// Package source fetches psalm overview documents over HTTP.
package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/psalter/core/errors"
)

// Defaults for the psalmboek.nl overview pages.
const (
	DefaultBaseURL        = "https://psalmboek.nl"
	DefaultPathTemplate   = "/psalmen.php?psalm={psalm}"
	DefaultEdition        = "1773"
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 10 * time.Second
	DefaultTimeout        = 15 * time.Second
	DefaultUserAgent      = "Mozilla/5.0 (compatible; Psalter/1.0)"

	// MaxBodySize caps a fetched document.
	MaxBodySize = 4 << 20
)

// Config describes where and how documents are fetched.
type Config struct {
	BaseURL        string
	PathTemplate   string
	Edition        string
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Timeout        time.Duration
}

// DefaultConfig returns the configuration for psalmboek.nl.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		PathTemplate:   DefaultPathTemplate,
		Edition:        DefaultEdition,
		UserAgent:      DefaultUserAgent,
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		Timeout:        DefaultTimeout,
	}
}

// HTTPFetcher fetches one overview document per psalm.
type HTTPFetcher struct {
	cfg    Config
	client *http.Client
}

// NewHTTPFetcher validates cfg and builds a fetcher. Zero fields take their
// defaults.
func NewHTTPFetcher(cfg Config) (*HTTPFetcher, error) {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.PathTemplate == "" {
		cfg.PathTemplate = def.PathTemplate
	}
	if cfg.Edition == "" {
		cfg.Edition = def.Edition
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: missing host", cfg.BaseURL)
	}
	if !strings.Contains(cfg.PathTemplate, "{psalm}") {
		return nil, fmt.Errorf("path template %q lacks a {psalm} placeholder", cfg.PathTemplate)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	return &HTTPFetcher{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}, nil
}

// URL returns the overview document location for psalm.
func (f *HTTPFetcher) URL(psalm int) string {
	path := strings.NewReplacer(
		"{psalm}", strconv.Itoa(psalm),
		"{edition}", url.QueryEscape(f.cfg.Edition),
	).Replace(f.cfg.PathTemplate)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return f.cfg.BaseURL + path
}

// Fetch retrieves the document for psalm. Transport errors and non-2xx
// responses are returned as SourceUnavailableError.
func (f *HTTPFetcher) Fetch(ctx context.Context, psalm int) ([]byte, error) {
	target := f.URL(psalm)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.NewSourceUnavailable(psalm, target, 0, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "nl-NL,nl;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.NewSourceUnavailable(psalm, target, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain a little so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, errors.NewSourceUnavailable(psalm, target, resp.StatusCode, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, errors.NewSourceUnavailable(psalm, target, 0, errors.Wrap(err, "reading body"))
	}
	if len(body) > MaxBodySize {
		return nil, errors.NewSourceUnavailable(psalm, target, 0, fmt.Errorf("document exceeds %d bytes", MaxBodySize))
	}
	return body, nil
}
