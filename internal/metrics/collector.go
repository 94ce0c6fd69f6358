// Package metrics provides internal prometheus metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector aggregates the module's prometheus metrics. All methods are
// nil-safe so components can take an optional *Collector and skip the
// plumbing when metrics are disabled.
type Collector struct {
	analyzeTotal     *prometheus.CounterVec
	cacheHits        prometheus.Counter
	providerFailures *prometheus.CounterVec
	sessionsTotal    *prometheus.CounterVec
	sessionDuration  prometheus.Histogram
	auditConflicts   prometheus.Counter
}

// NewCollector registers the module's metrics on reg.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	c := &Collector{
		analyzeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyze_requests_total",
			Help:      "Analysis requests by outcome status",
		}, []string{"status"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyze_cache_hits_total",
			Help:      "Idempotent replays served without provider calls",
		}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "External provider failures by provider",
		}, []string{"provider"}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Multi-agent sessions by final state",
		}, []string{"state"}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time of multi-agent sessions",
			Buckets:   prometheus.DefBuckets,
		}),
		auditConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_conflicts_total",
			Help:      "Conflicts flagged by the consistency auditor",
		}),
	}
	reg.MustRegister(c.analyzeTotal, c.cacheHits, c.providerFailures,
		c.sessionsTotal, c.sessionDuration, c.auditConflicts)
	return c
}

// IncAnalyze counts one analysis request by outcome status.
func (c *Collector) IncAnalyze(status string) {
	if c == nil {
		return
	}
	c.analyzeTotal.WithLabelValues(status).Inc()
}

// IncCacheHit counts one idempotent replay.
func (c *Collector) IncCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

// IncProviderFailure counts one provider failure.
func (c *Collector) IncProviderFailure(p string) {
	if c == nil {
		return
	}
	c.providerFailures.WithLabelValues(p).Inc()
}

// ObserveSession records one finished session.
func (c *Collector) ObserveSession(state string, d time.Duration) {
	if c == nil {
		return
	}
	c.sessionsTotal.WithLabelValues(state).Inc()
	c.sessionDuration.Observe(d.Seconds())
}

// AddAuditConflicts counts conflicts found in one audit pass.
func (c *Collector) AddAuditConflicts(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.auditConflicts.Add(float64(n))
}
