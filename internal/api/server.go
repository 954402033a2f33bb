package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/voter-enrichment/internal/metrics"
	"github.com/JakeFAU/voter-enrichment/internal/progress"
	"github.com/JakeFAU/voter-enrichment/internal/store"
)

const (
	requestTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// SnapshotSource exposes the live counters. progress.Tracker satisfies it.
type SnapshotSource interface {
	Snapshot() progress.Snapshot
}

// Deps wires the server to the current run.
type Deps struct {
	RunID    uuid.UUID
	Batch    string
	Progress SnapshotSource
	// Runs is optional; without it /runs answers 503.
	Runs     store.RunRepository
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// Server wires HTTP handlers to the run state.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}
	r.Get("/progress", s.progress)
	r.Get("/runs/{run_id}", s.getRun)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown status server: %w", err)
		}
		return nil
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Progress == nil {
		writeError(w, http.StatusServiceUnavailable, "run not started")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type progressDTO struct {
	RunID     string  `json:"run_id"`
	Batch     string  `json:"batch"`
	Total     int64   `json:"total"`
	Processed int64   `json:"processed"`
	Success   int64   `json:"success"`
	NotFound  int64   `json:"not_found"`
	Failure   int64   `json:"failure"`
	Pending   int64   `json:"pending"`
	Percent   float64 `json:"percent_done"`
}

func (s *Server) progress(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Progress == nil {
		writeError(w, http.StatusServiceUnavailable, "progress unavailable")
		return
	}
	snap := s.deps.Progress.Snapshot()
	dto := progressDTO{
		RunID:     s.deps.RunID.String(),
		Batch:     s.deps.Batch,
		Total:     snap.Total,
		Processed: snap.Processed(),
		Success:   snap.Success,
		NotFound:  snap.NotFound,
		Failure:   snap.Failure,
		Pending:   snap.Pending(),
	}
	if snap.Total > 0 {
		dto.Percent = float64(dto.Processed) / float64(snap.Total) * 100
	}
	writeJSON(w, http.StatusOK, dto)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
