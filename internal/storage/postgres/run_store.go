package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/voter-enrichment/internal/store"
)

// RunStore implements store.RunRepository on the enrichment_runs table.
type RunStore struct {
	db DB
}

// NewRunStore wraps db.
func NewRunStore(db DB) *RunStore {
	return &RunStore{db: db}
}

// StartRun inserts a running row for runID.
func (s *RunStore) StartRun(ctx context.Context, runID uuid.UUID, batchID string, startedAt time.Time, total int64) error {
	const query = `
INSERT INTO enrichment_runs (id, batch_id, started_at, status, total)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`
	if _, err := s.db.Exec(ctx, query, runID, batchID, startedAt, store.RunRunning, total); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// CompleteRun records the final status and counters of runID.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	counts store.RunCounts,
	errMsg *string,
) error {
	const query = `
UPDATE enrichment_runs
SET finished_at = $1, status = $2, success_count = $3, not_found_count = $4,
    failure_count = $5, error_message = $6
WHERE id = $7`
	if _, err := s.db.Exec(ctx, query,
		finishedAt, status, counts.Success, counts.NotFound, counts.Failure, errMsg, runID,
	); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// GetRun loads runID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	const query = `
SELECT id, batch_id, started_at, finished_at, status, total,
       success_count, not_found_count, failure_count, error_message
FROM enrichment_runs
WHERE id = $1`
	var (
		run    store.Run
		status string
	)
	err := s.db.QueryRow(ctx, query, runID).Scan(
		&run.ID, &run.BatchID, &run.StartedAt, &run.FinishedAt, &status, &run.Counts.Total,
		&run.Counts.Success, &run.Counts.NotFound, &run.Counts.Failure, &run.ErrorMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Run{}, store.ErrNotFound
	}
	if err != nil {
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	run.Status = store.RunStatus(status)
	return run, nil
}
