// Package telemetry holds the Prometheus collectors of the badgewatch service.
// All collectors use the "badgewatch" namespace and register on the registry
// passed to New, so tests can use an isolated one.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "badgewatch"

// Refresh outcomes.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Roster cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics service collectors
type Metrics struct {
	registry *prometheus.Registry

	// RefreshRuns counts month refreshes by trigger and status.
	// trigger: startup | polling | events | manual
	RefreshRuns *prometheus.CounterVec

	// RefreshDuration end-to-end latency of one month refresh.
	RefreshDuration prometheus.Histogram

	// RosterCache counts roster cache lookups by result.
	RosterCache *prometheus.CounterVec

	// DatasetEvents number of synthetic events loaded.
	DatasetEvents prometheus.Gauge

	// ExportedRows summary rows written to the Postgres sink.
	ExportedRows prometheus.Counter
}

// New creates the collectors on a fresh registry that also carries the Go
// and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RefreshRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_runs_total",
				Help:      "Total number of monthly roster refreshes by trigger and status.",
			},
			[]string{"trigger", "status"},
		),
		RefreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Duration of one monthly roster refresh in seconds.",
				// 1ms → 2ms → ... → 4s
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
			},
		),
		RosterCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "roster_cache_total",
				Help:      "Roster cache lookups by result.",
			},
			[]string{"result"},
		),
		DatasetEvents: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dataset_events",
				Help:      "Number of badge events in the loaded dataset.",
			},
		),
		ExportedRows: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exported_rows_total",
				Help:      "Monthly summary rows written to the Postgres sink.",
			},
		),
	}
}

// ObserveRefresh records one month refresh
func (m *Metrics) ObserveRefresh(trigger string, started time.Time, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailed
	}
	m.RefreshRuns.WithLabelValues(trigger, status).Inc()
	m.RefreshDuration.Observe(time.Since(started).Seconds())
}

// ObserveCache records one roster cache lookup
func (m *Metrics) ObserveCache(result string) {
	m.RosterCache.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
