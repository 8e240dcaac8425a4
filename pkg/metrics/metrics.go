// Package metrics exposes prometheus instrumentation for the extraction pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's prometheus collectors. A nil *Metrics is a
// no-op so tests and tools can skip instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	yearsExtracted prometheus.Counter
	runDuration    prometheus.Histogram
}

// New creates and registers the pipeline collectors
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extraction_runs_total",
			Help: "Extraction pipeline runs by outcome.",
		}, []string{"outcome"}),
		yearsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extraction_years_extracted_total",
			Help: "Fiscal-year records persisted by the pipeline.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "extraction_run_duration_seconds",
			Help:    "End-to-end duration of one pipeline run.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}

	registry.MustRegister(m.runsTotal, m.yearsExtracted, m.runDuration)
	return m
}

// ObserveRun records one completed pipeline run
func (m *Metrics) ObserveRun(outcome string, yearsSaved int, duration time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.yearsExtracted.Add(float64(yearsSaved))
	m.runDuration.Observe(duration.Seconds())
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
