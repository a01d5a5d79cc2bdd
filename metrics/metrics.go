// Package metrics exposes Prometheus collectors for the verification
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	ValidatorFallbacks prometheus.Counter
	LookupItems        prometheus.Counter
	LookupEmpty        prometheus.Counter
}

// New registers the pipeline collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "platewise_pipeline_runs_total",
			Help: "Completed pipeline runs by artifact kind and outcome.",
		}, []string{"kind", "outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "platewise_pipeline_stage_duration_seconds",
			Help:    "Elapsed time per pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"stage"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "platewise_cache_hits_total",
			Help: "Verification cache hits.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "platewise_cache_misses_total",
			Help: "Verification cache misses.",
		}),
		ValidatorFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "platewise_validator_fallbacks_total",
			Help: "Runs that fell back to the unvalidated draft.",
		}),
		LookupItems: factory.NewCounter(prometheus.CounterOpts{
			Name: "platewise_price_lookup_items_total",
			Help: "Items submitted to the price lookup fan-out.",
		}),
		LookupEmpty: factory.NewCounter(prometheus.CounterOpts{
			Name: "platewise_price_lookup_empty_total",
			Help: "Fan-out items that degraded to an empty result.",
		}),
	}
}

// ObserveStage records one stage duration. Nil-safe so instrumentation can
// be disabled in tests.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// CountRun records one finished run. Nil-safe.
func (m *Metrics) CountRun(kind, outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(kind, outcome).Inc()
}
