// Package metrics provides observability for the decision engine
package metrics

import (
	"net/http"
	"time"
)

// Token lifecycle events recorded by RecordTokenEvent
const (
	TokenEventIssued  = "issued"
	TokenEventReused  = "reused"
	TokenEventUsed    = "used"
	TokenEventExpired = "expired"
	TokenEventRevoked = "revoked"
)

// Metrics provides observability for the decision engine
type Metrics interface {
	// Decision metrics
	RecordDecision(resourceType string, granted bool, duration time.Duration)
	RecordEmergencyOverride()
	RecordEvaluationFailure()
	IncActiveRequests()
	DecActiveRequests()

	// Emergency token metrics
	RecordTokenEvent(event string)

	// Audit metrics
	RecordAuditFailure(action string)

	// HTTP handler for Prometheus scraping
	HTTPHandler() http.Handler
}

// NoOpMetrics provides a no-op implementation for testing/disabled monitoring
type NoOpMetrics struct{}

// NewNoOpMetrics creates a new no-op metrics instance
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (n *NoOpMetrics) RecordDecision(resourceType string, granted bool, duration time.Duration) {}
func (n *NoOpMetrics) RecordEmergencyOverride()                                                 {}
func (n *NoOpMetrics) RecordEvaluationFailure()                                                 {}
func (n *NoOpMetrics) IncActiveRequests()                                                       {}
func (n *NoOpMetrics) DecActiveRequests()                                                       {}
func (n *NoOpMetrics) RecordTokenEvent(event string)                                            {}
func (n *NoOpMetrics) RecordAuditFailure(action string)                                         {}

// HTTPHandler returns a no-op handler
func (n *NoOpMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("# NoOp metrics - monitoring disabled\n"))
	})
}
