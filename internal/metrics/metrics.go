// Package metrics owns the Prometheus collectors of an enrichment run and
// the HTTP instrumentation of the status server.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered for one process.
type Metrics struct {
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	stageFailures   *prometheus.CounterVec
	persistFailures prometheus.Counter
	activeSessions  prometheus.Gauge
	sessionFailures prometheus.Counter
	runs            *prometheus.CounterVec
	backlogPending  prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_attempts_total",
			Help: "Finished record attempts partitioned by outcome.",
		}, []string{"outcome"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enricher_attempt_duration_seconds",
			Help:    "Wall time per record attempt partitioned by outcome.",
			Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 90, 120, 180},
		}, []string{"outcome"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_stage_failures_total",
			Help: "Technical failures partitioned by interaction stage.",
		}, []string{"stage"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enricher_persist_failures_total",
			Help: "Definitive outcomes that could not be written back.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "enricher_active_sessions",
			Help: "Browser sessions currently open.",
		}),
		sessionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enricher_session_failures_total",
			Help: "Browser sessions that failed to start.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_runs_total",
			Help: "Completed runs partitioned by result.",
		}, []string{"result"}),
		backlogPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "enricher_backlog_pending",
			Help: "Records of the current run not yet attempted.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Status server requests partitioned by method and code.",
		}, []string{"method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Status server latency partitioned by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "route"}),
	}
	for _, c := range []prometheus.Collector{
		m.attempts, m.attemptDuration, m.stageFailures, m.persistFailures,
		m.activeSessions, m.sessionFailures, m.runs, m.backlogPending,
		m.httpRequests, m.httpDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// NewRegistry returns a registry preloaded with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveAttempt records a finished attempt.
func (m *Metrics) ObserveAttempt(outcome, failedStage string, d time.Duration) {
	m.attempts.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.attemptDuration.WithLabelValues(outcome).Observe(d.Seconds())
	}
	if failedStage != "" {
		m.stageFailures.WithLabelValues(failedStage).Inc()
	}
}

// ObservePersistFailure counts a failed write-back.
func (m *Metrics) ObservePersistFailure() {
	m.persistFailures.Inc()
}

// SessionOpened increments the open-session gauge.
func (m *Metrics) SessionOpened() {
	m.activeSessions.Inc()
}

// SessionClosed decrements the open-session gauge.
func (m *Metrics) SessionClosed() {
	m.activeSessions.Dec()
}

// SessionFailed counts a session that could not start.
func (m *Metrics) SessionFailed() {
	m.sessionFailures.Inc()
}

// SetPending sets the pending-record gauge.
func (m *Metrics) SetPending(n int64) {
	m.backlogPending.Set(float64(n))
}

// ObserveRun counts a finished run.
func (m *Metrics) ObserveRun(result string) {
	m.runs.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest records one status server request.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
