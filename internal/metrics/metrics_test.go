package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveAttempt(t *testing.T) {
	t.Parallel()

	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveAttempt("success", "", 2*time.Second)
	m.ObserveAttempt("failure", "submit", time.Second)
	m.ObserveAttempt("failure", "submit", 0)

	require.InDelta(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("success")), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("failure")), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(m.stageFailures.WithLabelValues("submit")), 1e-9)
	require.Equal(t, 2, testutil.CollectAndCount(m.attemptDuration, "enricher_attempt_duration_seconds"))
}

func TestSessionGauge(t *testing.T) {
	t.Parallel()

	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.SessionFailed()
	require.InDelta(t, 1.0, testutil.ToFloat64(m.activeSessions), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(m.sessionFailures), 1e-9)
}

func TestDoubleRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })

	for _, path := range []string{"/ok", "/missing", "/ok"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.InDelta(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "200")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "404")), 1e-9)
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	m.ObserveRun("success")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `enricher_runs_total{result="success"} 1`)
}
