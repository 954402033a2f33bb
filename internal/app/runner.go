// Package app wires the enrichment pipeline together: it loads the backlog,
// fills the queue, runs the worker pool, and records the run.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/voter-enrichment/internal/clock/system"
	"github.com/JakeFAU/voter-enrichment/internal/dispatcher"
	"github.com/JakeFAU/voter-enrichment/internal/enrich"
	idgen "github.com/JakeFAU/voter-enrichment/internal/id/uuid"
	"github.com/JakeFAU/voter-enrichment/internal/normalize"
	"github.com/JakeFAU/voter-enrichment/internal/progress"
	queueMemory "github.com/JakeFAU/voter-enrichment/internal/queue/memory"
	"github.com/JakeFAU/voter-enrichment/internal/worker"
)

// RunIDGenerator issues run identifiers.
type RunIDGenerator interface {
	NewRunID() (uuid.UUID, error)
}

// RunConfig holds the per-run parameters.
type RunConfig struct {
	BatchID     string
	Concurrency int
	DryRun      bool
	// PersistTimeout and MaxPageFailures are passed to every worker.
	PersistTimeout   time.Duration
	MaxPageFailures  int
	ScreenshotPrefix string
}

// Deps are the collaborators of a Runner. Probe, Pacer, Blobs, Emitter, and
// Reporter are optional.
type Deps struct {
	Backlog    enrich.BacklogReader
	Store      enrich.ResultStore
	Opener     enrich.SessionOpener
	Identities enrich.IdentitySource
	Interactor enrich.Interactor
	Pacer      enrich.Pacer
	Blobs      enrich.BlobStore
	Clock      enrich.Clock
	IDs        RunIDGenerator
	Emitter    progress.Emitter
	Reporter   progress.Reporter
	// Probe runs before the backlog is read; an error aborts the run.
	Probe func(ctx context.Context) error
}

// Summary describes a finished run.
type Summary struct {
	RunID     uuid.UUID
	Batch     string
	Counts    progress.Snapshot
	Malformed int
	Dispatch  dispatcher.Result
	DryRun    bool
	Duration  time.Duration
}

// Runner executes one enrichment run.
type Runner struct {
	deps    Deps
	cfg     RunConfig
	logger  *zap.Logger
	runID   uuid.UUID
	tracker atomic.Pointer[progress.Tracker]
}

// NewRunner creates a Runner and assigns its run ID.
func NewRunner(deps Deps, cfg RunConfig, logger *zap.Logger) (*Runner, error) {
	if deps.Backlog == nil {
		return nil, errors.New("backlog reader is required")
	}
	if cfg.BatchID == "" {
		return nil, errors.New("batch id is required")
	}
	if !cfg.DryRun {
		if deps.Store == nil || deps.Opener == nil || deps.Identities == nil || deps.Interactor == nil {
			return nil, errors.New("store, session opener, identities, and interactor are required")
		}
		if cfg.Concurrency <= 0 {
			return nil, fmt.Errorf("concurrency must be > 0, got %d", cfg.Concurrency)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = idgen.New()
	}
	runID, err := deps.IDs.NewRunID()
	if err != nil {
		return nil, err
	}
	return &Runner{
		deps:   deps,
		cfg:    cfg,
		runID:  runID,
		logger: logger.With(zap.String("run_id", runID.String()), zap.String("batch", cfg.BatchID)),
	}, nil
}

// RunID returns the identifier of this run.
func (r *Runner) RunID() uuid.UUID {
	return r.runID
}

// Snapshot returns the live counters, or zeros before the backlog is loaded.
func (r *Runner) Snapshot() progress.Snapshot {
	if t := r.tracker.Load(); t != nil {
		return t.Snapshot()
	}
	return progress.Snapshot{}
}

// Run performs preflight, loads and normalizes the backlog, and drives the
// worker pool until the queue drains. Per-record failures never fail the
// run; a run-level error is returned only when the run could not start, was
// canceled, or left records undispatched.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := r.deps.Clock.Now()
	sum := Summary{RunID: r.runID, Batch: r.cfg.BatchID, DryRun: r.cfg.DryRun}

	if r.deps.Probe != nil {
		if err := r.deps.Probe(ctx); err != nil {
			return sum, fmt.Errorf("preflight: %w", err)
		}
	}

	records, err := r.deps.Backlog.PendingRecords(ctx, r.cfg.BatchID)
	if err != nil {
		return sum, fmt.Errorf("load backlog: %w", err)
	}

	tracker := progress.NewTracker(len(records))
	r.tracker.Store(tracker)
	items := make([]enrich.QueueItem, 0, len(records))
	for i, rec := range records {
		norm, nerr := normalize.Record(rec)
		if nerr != nil {
			sum.Malformed++
			tracker.Record(enrich.OutcomeFailure)
			r.logger.Warn("skipping malformed record",
				zap.Int("seq", i), zap.String("record", progress.MaskID(rec.ID)), zap.Error(nerr))
			continue
		}
		items = append(items, enrich.QueueItem{Seq: i, SourceID: rec.ID, Record: norm})
	}
	r.logger.Info("backlog loaded",
		zap.Int("records", len(records)), zap.Int("queued", len(items)), zap.Int("malformed", sum.Malformed))

	if r.cfg.DryRun {
		sum.Counts = tracker.Snapshot()
		sum.Duration = r.deps.Clock.Now().Sub(start)
		return sum, nil
	}

	r.emit(progress.Event{Stage: progress.StageRunStart, Counts: tracker.Snapshot()})

	if len(items) > 0 {
		sum.Dispatch, err = r.dispatch(ctx, items, tracker)
	}
	sum.Counts = tracker.Snapshot()
	sum.Duration = r.deps.Clock.Now().Sub(start)

	if err != nil {
		r.emit(progress.Event{Stage: progress.StageRunError, Counts: sum.Counts, Dur: sum.Duration, Note: err.Error()})
		return sum, err
	}
	r.emit(progress.Event{Stage: progress.StageRunDone, Counts: sum.Counts, Dur: sum.Duration})
	r.logger.Info("run complete",
		zap.Int64("success", sum.Counts.Success),
		zap.Int64("not_found", sum.Counts.NotFound),
		zap.Int64("failure", sum.Counts.Failure),
		zap.Duration("dur", sum.Duration))
	return sum, nil
}

func (r *Runner) dispatch(ctx context.Context, items []enrich.QueueItem, tracker *progress.Tracker) (dispatcher.Result, error) {
	q := queueMemory.NewQueue(items)
	runners := make([]dispatcher.Runner, r.cfg.Concurrency)
	for i := range runners {
		runners[i] = worker.New(worker.Deps{
			Queue:      q,
			Opener:     r.deps.Opener,
			Identities: r.deps.Identities,
			Interactor: r.deps.Interactor,
			Store:      r.deps.Store,
			Tracker:    tracker,
			Clock:      r.deps.Clock,
			Blobs:      r.deps.Blobs,
			Pacer:      r.deps.Pacer,
			Reporter:   r.deps.Reporter,
			Emitter:    r.deps.Emitter,
		}, worker.Config{
			Index:            i,
			RunID:            r.runID,
			Batch:            r.cfg.BatchID,
			PersistTimeout:   r.cfg.PersistTimeout,
			ScreenshotPrefix: r.cfg.ScreenshotPrefix,
			MaxPageFailures:  r.cfg.MaxPageFailures,
		}, r.logger)
	}
	res, err := dispatcher.New(q, runners, r.logger).Run(ctx)
	if err != nil {
		return res, fmt.Errorf("run %s: %w", r.runID, err)
	}
	return res, nil
}

func (r *Runner) emit(evt progress.Event) {
	if r.deps.Emitter == nil {
		return
	}
	evt.RunID = r.runID
	evt.TS = r.deps.Clock.Now()
	evt.Batch = r.cfg.BatchID
	evt.Worker = -1
	r.deps.Emitter.Emit(evt)
}
