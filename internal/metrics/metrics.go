// Package metrics provides Prometheus observability for Kestrel.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every instrument the engine and its services record to.
// A nil *Metrics is valid and records nothing, which keeps tests quiet.
type Metrics struct {
	// Full document evaluation latency
	EvaluateLatency prometheus.Histogram

	// Reconciled document verdicts by status
	DocumentStatus *prometheus.CounterVec

	// Violations by severity
	Violations *prometheus.CounterVec

	// Ruleset cache lookups by result: "hit", "miss", "stale"
	RulesetCache *prometheus.CounterVec

	// Origin fetch latency
	OriginLatency prometheus.Histogram

	// Origin fetch failures
	OriginErrors prometheus.Counter
}

// New creates a Metrics instance with all instruments registered on the
// default registry. Call it once per process.
func New() *Metrics {
	return &Metrics{
		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kestrel_evaluate_duration_seconds",
			Help:    "Duration of full document evaluation including report persistence",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		DocumentStatus: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_documents_total",
			Help: "Total evaluated documents by reconciled status",
		}, []string{"status"}), // status: "COMPLIANT", "DISCREPANT", "REVIEW"

		Violations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_violations_total",
			Help: "Total rule violations by severity",
		}, []string{"severity"}),

		RulesetCache: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_ruleset_cache_total",
			Help: "Ruleset cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss", "stale"

		OriginLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kestrel_ruleset_origin_duration_seconds",
			Help:    "Duration of active ruleset fetches from the origin",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		OriginErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kestrel_ruleset_origin_errors_total",
			Help: "Total failed active ruleset fetches from the origin",
		}),
	}
}

// ObserveEvaluateLatency records a full evaluation duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

// IncrementDocumentStatus records a reconciled document verdict.
func (m *Metrics) IncrementDocumentStatus(status string) {
	if m != nil {
		m.DocumentStatus.WithLabelValues(status).Inc()
	}
}

// IncrementViolation records one violation of the given severity.
func (m *Metrics) IncrementViolation(severity string) {
	if m != nil {
		m.Violations.WithLabelValues(severity).Inc()
	}
}

// IncrementRulesetCache records a cache lookup result.
func (m *Metrics) IncrementRulesetCache(result string) {
	if m != nil {
		m.RulesetCache.WithLabelValues(result).Inc()
	}
}

// ObserveOriginLatency records an origin fetch duration.
func (m *Metrics) ObserveOriginLatency(d time.Duration) {
	if m != nil {
		m.OriginLatency.Observe(d.Seconds())
	}
}

// IncrementOriginError records a failed origin fetch.
func (m *Metrics) IncrementOriginError() {
	if m != nil {
		m.OriginErrors.Inc()
	}
}
