package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/research-gate/internal/metrics"
)

func TestLogger_RecordsRouteAndStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(chimw.RequestID, Logger(logger))
	r.Delete("/api/posts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("nope"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/posts/abc", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	out := buf.String()
	assert.Contains(t, out, "status=403")
	assert.Contains(t, out, "route=/api/posts/{id}")
	assert.Contains(t, out, "path=/api/posts/abc")
	assert.Contains(t, out, "bytes=4")
	assert.Contains(t, out, "request_id=")
}

func TestMetrics_ObservesByPattern(t *testing.T) {
	m := metrics.New()

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Post("/api/posts/{id}/like", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/posts/"+id+"/like", nil))
	}

	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))
}

func TestResponseWriter_DefaultsToOK(t *testing.T) {
	rw := wrap(httptest.NewRecorder())
	_, _ = rw.Write([]byte("hi"))
	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.Same(t, rw, wrap(rw))
}
