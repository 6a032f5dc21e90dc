// Package telemetry provides Prometheus metrics for verse resolution.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FocuswithJustin/psalter/core/envelope"
	"github.com/FocuswithJustin/psalter/core/errors"
)

// Metrics holds all Prometheus metrics for the psalter service.
type Metrics struct {
	registry *prometheus.Registry

	// Source metrics
	SourceFetches       *prometheus.CounterVec
	SourceFetchDuration prometheus.Histogram

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// Lookup metrics
	Lookups     *prometheus.CounterVec
	VerseCounts *prometheus.GaugeVec
}

// NewMetrics creates metrics on a private registry that also carries the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		SourceFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psalter_source_fetches_total",
				Help: "Source document fetches by outcome",
			},
			[]string{"outcome"},
		),

		SourceFetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "psalter_source_fetch_duration_seconds",
				Help:    "Source document fetch latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psalter_cache_lookups_total",
				Help: "Verse cache lookups by result",
			},
			[]string{"result"},
		),

		Lookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psalter_lookups_total",
				Help: "Reference lookups by envelope status",
			},
			[]string{"status"},
		),

		VerseCounts: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "psalter_verses_discovered",
				Help: "Number of verses found in the last fetched document of each psalm",
			},
			[]string{"psalm"},
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FetchCompleted records one source fetch.
func (m *Metrics) FetchCompleted(_ int, duration time.Duration, err error) {
	m.SourceFetchDuration.Observe(duration.Seconds())
	m.SourceFetches.WithLabelValues(fetchOutcome(err)).Inc()
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(_ int, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// VersesDiscovered records how many verses a fetched document held.
func (m *Metrics) VersesDiscovered(psalm, count int) {
	m.VerseCounts.WithLabelValues(strconv.Itoa(psalm)).Set(float64(count))
}

// RecordLookup counts a finished lookup by its envelope status.
func (m *Metrics) RecordLookup(status envelope.Status) {
	m.Lookups.WithLabelValues(string(status)).Inc()
}

func fetchOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var su *errors.SourceUnavailableError
	if errors.As(err, &su) && su.StatusCode != 0 {
		return "status_error"
	}
	return "transport_error"
}
