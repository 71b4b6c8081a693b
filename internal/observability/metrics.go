// Package observability defines Prometheus metrics for the grading pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Call outcomes recorded per AI invocation.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeError    = "error"
)

// Metrics aggregates the pipeline's Prometheus collectors. A nil *Metrics is
// valid and turns every observation into a no-op, so leaf components never
// need to care whether metrics are enabled.
type Metrics struct {
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	aiCalls     *prometheus.CounterVec
	aiRetries   prometheus.Counter
	aiLatency   *prometheus.HistogramVec
}

// New creates and registers the pipeline metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_cache_hits_total",
			Help: "Cache hits by category.",
		}, []string{"category"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_cache_misses_total",
			Help: "Cache misses by category.",
		}, []string{"category"}),
		aiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_ai_calls_total",
			Help: "AI invocations by category and outcome.",
		}, []string{"category", "outcome"}),
		aiRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gradeflow_ai_retries_total",
			Help: "Retried AI attempts.",
		}),
		aiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gradeflow_ai_call_duration_seconds",
			Help:    "Wall-clock duration of AI invocations (cache misses only).",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"category"}),
	}

	reg.MustRegister(m.cacheHits, m.cacheMisses, m.aiCalls, m.aiRetries, m.aiLatency)
	return m
}

// CacheHit records a cache hit for a category.
func (m *Metrics) CacheHit(category string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(category).Inc()
}

// CacheMiss records a cache miss for a category.
func (m *Metrics) CacheMiss(category string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(category).Inc()
}

// Call records one completed AI invocation.
func (m *Metrics) Call(category, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.aiCalls.WithLabelValues(category, outcome).Inc()
	m.aiLatency.WithLabelValues(category).Observe(elapsed.Seconds())
}

// Retry records one retried attempt.
func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.aiRetries.Inc()
}
