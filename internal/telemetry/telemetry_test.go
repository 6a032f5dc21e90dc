package telemetry

import (
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/FocuswithJustin/psalter/core/envelope"
	"github.com/FocuswithJustin/psalter/core/errors"
)

func TestMetrics_FetchCompleted(t *testing.T) {
	m := NewMetrics()

	m.FetchCompleted(1, 200*time.Millisecond, nil)
	m.FetchCompleted(2, time.Second, errors.NewSourceUnavailable(2, "u", 503, nil))
	m.FetchCompleted(3, time.Second, fmt.Errorf("dial tcp: refused"))

	tests := map[string]float64{"ok": 1, "status_error": 1, "transport_error": 1}
	for outcome, want := range tests {
		if got := testutil.ToFloat64(m.SourceFetches.WithLabelValues(outcome)); got != want {
			t.Errorf("fetches{outcome=%q} = %v, want %v", outcome, got, want)
		}
	}
	if n := testutil.CollectAndCount(m.SourceFetchDuration); n != 1 {
		t.Errorf("duration histogram series = %d, want 1", n)
	}
}

func TestMetrics_CacheAndLookups(t *testing.T) {
	m := NewMetrics()

	m.CacheLookup(1, true)
	m.CacheLookup(1, true)
	m.CacheLookup(2, false)
	m.RecordLookup(envelope.StatusOK)
	m.RecordLookup(envelope.StatusNotFound)
	m.RecordLookup(envelope.StatusOK)
	m.VersesDiscovered(118, 5)

	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")); got != 2 {
		t.Errorf("cache hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")); got != 1 {
		t.Errorf("cache misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Lookups.WithLabelValues("ok")); got != 2 {
		t.Errorf("lookups{status=ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.VerseCounts.WithLabelValues("118")); got != 5 {
		t.Errorf("verses discovered = %v, want 5", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordLookup(envelope.StatusInvalidRequest)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `psalter_lookups_total{status="invalid_request"} 1`) {
		t.Errorf("metrics output missing lookup counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output missing runtime collector")
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.CacheLookup(1, true)
	if got := testutil.ToFloat64(b.CacheLookups.WithLabelValues("hit")); got != 0 {
		t.Errorf("second registry saw %v hits, want 0", got)
	}
}
