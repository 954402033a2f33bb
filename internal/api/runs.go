package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	idgen "github.com/JakeFAU/voter-enrichment/internal/id/uuid"
	"github.com/JakeFAU/voter-enrichment/internal/store"
)

const runLookupTimeout = 3 * time.Second

type runDTO struct {
	ID         string     `json:"id"`
	BatchID    string     `json:"batch_id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Total      int64      `json:"total"`
	Success    int64      `json:"success"`
	NotFound   int64      `json:"not_found"`
	Failure    int64      `json:"failure"`
	Error      *string    `json:"error,omitempty"`
}

// getRun handles GET /runs/{run_id}. It returns 400 for malformed IDs, 404
// when the ledger has no row, 503 without a repository, or 500 otherwise.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run ledger unavailable")
		return
	}
	runID, err := idgen.Parse(chi.URLParam(r, "run_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), runLookupTimeout)
	defer cancel()

	run, err := s.deps.Runs.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.String("run_id", runID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)})
}

func toRunDTO(run store.Run) runDTO {
	return runDTO{
		ID:         run.ID.String(),
		BatchID:    run.BatchID,
		Status:     string(run.Status),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Total:      run.Counts.Total,
		Success:    run.Counts.Success,
		NotFound:   run.Counts.NotFound,
		Failure:    run.Counts.Failure,
		Error:      run.ErrorMessage,
	}
}
