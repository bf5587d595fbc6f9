package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.RegistrationSucceeded()
	m.RegistrationSucceeded()
	m.VerificationAttempt(ResultExpired)
	m.LoginAttempt(ResultSuccess)
	m.PostInteraction("like")
	m.PostInteraction("like")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Registrations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues(ResultExpired)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Logins.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PostInteractions.WithLabelValues("like")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RegistrationSucceeded()
		m.LoginAttempt(ResultFailure)
		m.ObserveRequest("GET", "/api/posts", 200, time.Millisecond)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "/api/posts", 200, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `research_gate_http_request_duration_seconds_count{method="GET",route="/api/posts",status="200"} 1`)
}
