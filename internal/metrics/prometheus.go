package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements Metrics using Prometheus with a private registry
type PrometheusMetrics struct {
	decisionsTotal     *prometheus.CounterVec
	decisionDuration   prometheus.Histogram
	emergencyOverrides prometheus.Counter
	evaluationFailures prometheus.Counter
	activeRequests     prometheus.Gauge

	tokenEvents *prometheus.CounterVec

	auditFailures *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	decisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total number of access decisions by resource type and outcome",
		},
		[]string{"resource_type", "outcome"},
	)

	// Decision latency: 1µs to 10ms, evaluation is in-process
	decisionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_microseconds",
			Help:      "Access decision latency in microseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 10000},
		},
	)

	emergencyOverrides := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emergency_overrides_total",
			Help:      "Total number of decisions where the emergency override applied",
		},
	)

	evaluationFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_failures_total",
			Help:      "Total number of requests denied because evaluation failed",
		},
	)

	activeRequests := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of in-flight access decisions",
		},
	)

	tokenEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emergency_token",
			Name:      "events_total",
			Help:      "Total number of emergency token lifecycle events",
		},
		[]string{"event"},
	)

	auditFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "failures_total",
			Help:      "Total number of audit entries that could not be written",
		},
		[]string{"action"},
	)

	registry.MustRegister(
		decisionsTotal,
		decisionDuration,
		emergencyOverrides,
		evaluationFailures,
		activeRequests,
		tokenEvents,
		auditFailures,
	)

	return &PrometheusMetrics{
		decisionsTotal:     decisionsTotal,
		decisionDuration:   decisionDuration,
		emergencyOverrides: emergencyOverrides,
		evaluationFailures: evaluationFailures,
		activeRequests:     activeRequests,
		tokenEvents:        tokenEvents,
		auditFailures:      auditFailures,
		registry:           registry,
	}
}

// RecordDecision records an access decision
func (p *PrometheusMetrics) RecordDecision(resourceType string, granted bool, duration time.Duration) {
	outcome := "denied"
	if granted {
		outcome = "granted"
	}
	p.decisionsTotal.WithLabelValues(resourceType, outcome).Inc()
	p.decisionDuration.Observe(float64(duration.Microseconds()))
}

// RecordEmergencyOverride records an applied emergency override
func (p *PrometheusMetrics) RecordEmergencyOverride() {
	p.emergencyOverrides.Inc()
}

// RecordEvaluationFailure records a request denied because evaluation failed
func (p *PrometheusMetrics) RecordEvaluationFailure() {
	p.evaluationFailures.Inc()
}

// IncActiveRequests increments active requests
func (p *PrometheusMetrics) IncActiveRequests() {
	p.activeRequests.Inc()
}

// DecActiveRequests decrements active requests
func (p *PrometheusMetrics) DecActiveRequests() {
	p.activeRequests.Dec()
}

// RecordTokenEvent records an emergency token lifecycle event
func (p *PrometheusMetrics) RecordTokenEvent(event string) {
	p.tokenEvents.WithLabelValues(event).Inc()
}

// RecordAuditFailure records an audit entry that could not be written
func (p *PrometheusMetrics) RecordAuditFailure(action string) {
	p.auditFailures.WithLabelValues(action).Inc()
}

// HTTPHandler returns the Prometheus HTTP handler for /metrics endpoint
func (p *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
