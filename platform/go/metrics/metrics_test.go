package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveAccess("direct")
	m.ObserveAccess("direct")
	m.ObserveAccess("denied")
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveAuditFailure("role.assign")
	m.ObservePolicyError()

	require.Equal(t, 2.0, testutil.ToFloat64(m.AccessDecisions.WithLabelValues("direct")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.AccessDecisions.WithLabelValues("denied")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PermissionCache.WithLabelValues("hit")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PermissionCache.WithLabelValues("miss")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.AuditWriteFailures.WithLabelValues("role.assign")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PolicyEvaluationErrors))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveAccess("direct")
		m.ObserveCache(true)
		m.ObserveAuditFailure("x")
		m.ObservePolicyError()
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveAccess("agency")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `aso_insight_access_decisions_total{path="agency"} 1`)
}
