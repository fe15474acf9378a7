package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aso_insight"

// Metrics holds the authorization counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	AccessDecisions        *prometheus.CounterVec
	PermissionCache        *prometheus.CounterVec
	AuditWriteFailures     *prometheus.CounterVec
	PolicyEvaluationErrors prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AccessDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_decisions_total",
				Help:      "Organization access decisions by the path that granted or denied them",
			},
			[]string{"path"},
		),
		PermissionCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "permission_cache_requests_total",
				Help:      "Permission projection lookups by cache result",
			},
			[]string{"result"},
		),
		AuditWriteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_write_failures_total",
				Help:      "Audit events that could not be persisted",
			},
			[]string{"action"},
		),
		PolicyEvaluationErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_evaluation_errors_total",
				Help:      "Statements rejected with insufficient_privilege while evaluating row-level policies",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.AccessDecisions, m.PermissionCache, m.AuditWriteFailures, m.PolicyEvaluationErrors)
	}

	return m
}

// ObserveAccess counts one access decision.
func (m *Metrics) ObserveAccess(path string) {
	if m == nil {
		return
	}
	m.AccessDecisions.WithLabelValues(path).Inc()
}

// ObserveCache counts one projection cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.PermissionCache.WithLabelValues(result).Inc()
}

// ObserveAuditFailure counts an audit event that was dropped.
func (m *Metrics) ObserveAuditFailure(action string) {
	if m == nil {
		return
	}
	m.AuditWriteFailures.WithLabelValues(action).Inc()
}

// ObservePolicyError counts a statement that failed during policy evaluation.
func (m *Metrics) ObservePolicyError() {
	if m == nil {
		return
	}
	m.PolicyEvaluationErrors.Inc()
}

// Handler exposes the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
