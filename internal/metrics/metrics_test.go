package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("get_report", "ok", 5*time.Millisecond)
	m.ObserveOperation("get_report", "ok", time.Millisecond)
	m.ObserveOperation("get_report", "not_found", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationCounter("get_report", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationCounter("get_report", "not_found")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("list_reports", "ok", time.Second)
		m.ObserveRequest("/api/reports", http.MethodGet, http.StatusOK, time.Second)
	})
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.ObserveRequest("/api/reports/:id", http.MethodGet, http.StatusNotFound, time.Millisecond)
	m.ObserveRequest("", http.MethodGet, http.StatusNotFound, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `outbreak_http_requests_total{code="404",method="GET",route="/api/reports/:id"} 1`)
	assert.Contains(t, body, `route="unmatched"`)
}
