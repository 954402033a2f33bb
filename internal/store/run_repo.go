package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the enrichment_runs status column.
type RunStatus string

// Run statuses persisted in enrichment_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// RunCounts are the final counters of a run.
type RunCounts struct {
	Total    int64
	Success  int64
	NotFound int64
	Failure  int64
}

// Run models one row of enrichment_runs.
type Run struct {
	ID         uuid.UUID
	BatchID    string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	Counts     RunCounts
	// ErrorMessage holds the run-level failure reason, if any.
	ErrorMessage *string
}

// RunRepository persists the lifecycle of enrichment runs.
type RunRepository interface {
	StartRun(ctx context.Context, runID uuid.UUID, batchID string, startedAt time.Time, total int64) error
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, counts RunCounts, errMsg *string) error
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
}
