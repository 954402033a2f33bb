// Package worker implements the per-session enrichment loop.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
	"github.com/JakeFAU/voter-enrichment/internal/normalize"
	"github.com/JakeFAU/voter-enrichment/internal/progress"
)

// ErrSessionLost is returned when a session repeatedly fails to open pages.
var ErrSessionLost = errors.New("browser session lost")

// Config controls Worker behavior.
type Config struct {
	Index int
	RunID [16]byte
	Batch string
	// PersistTimeout bounds each write-back.
	PersistTimeout time.Duration
	// ScreenshotPrefix enables failure screenshots when a blob store is set.
	ScreenshotPrefix string
	// MaxPageFailures ends the worker after this many consecutive page
	// open failures. Zero means 3.
	MaxPageFailures int
}

// Deps are the collaborators of a Worker. Blobs, Pacer, Reporter, and
// Emitter are optional.
type Deps struct {
	Queue      enrich.Queue
	Opener     enrich.SessionOpener
	Identities enrich.IdentitySource
	Interactor enrich.Interactor
	Store      enrich.ResultStore
	Tracker    *progress.Tracker
	Clock      enrich.Clock
	Blobs      enrich.BlobStore
	Pacer      enrich.Pacer
	Reporter   progress.Reporter
	Emitter    progress.Emitter
}

// Worker owns one browser session and drains the shared queue through it.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 15 * time.Second
	}
	if cfg.MaxPageFailures <= 0 {
		cfg.MaxPageFailures = 3
	}
	return &Worker{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("worker").With(zap.Int("index", cfg.Index)),
	}
}

// Run opens the session and processes records until the queue is empty or
// ctx ends. It returns an error only for worker-level failures; per-record
// failures are counted and logged.
func (w *Worker) Run(ctx context.Context) error {
	identity := w.deps.Identities.Next()
	session, err := w.deps.Opener.Open(ctx, identity)
	if err != nil {
		w.emit(progress.Event{Stage: progress.StageSessionError, Note: err.Error()})
		w.logger.Error("session open failed", zap.Error(err))
		return fmt.Errorf("worker %d: %w", w.cfg.Index, err)
	}
	w.emit(progress.Event{Stage: progress.StageSessionOpen, Note: identity.Geolocation.Label})
	w.logger.Info("session opened",
		zap.String("platform", identity.Platform),
		zap.String("geo", identity.Geolocation.Label))
	defer func() {
		if cerr := session.Close(); cerr != nil {
			w.logger.Warn("session close failed", zap.Error(cerr))
		}
		w.emit(progress.Event{Stage: progress.StageSessionClose})
	}()

	pageFailures := 0
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("worker %d stopped: %w", w.cfg.Index, err)
		}
		if n > 0 && w.deps.Pacer != nil && w.deps.Queue.Len() > 0 {
			if _, err := w.deps.Pacer.Wait(ctx); err != nil {
				return fmt.Errorf("worker %d pacing: %w", w.cfg.Index, err)
			}
		}
		item, ok := w.deps.Queue.PopOrEmpty()
		if !ok {
			w.logger.Info("queue drained", zap.Int("processed", n))
			return nil
		}
		pageOK := w.process(ctx, session, item)
		if pageOK {
			pageFailures = 0
			continue
		}
		pageFailures++
		if pageFailures >= w.cfg.MaxPageFailures {
			w.logger.Error("giving up on session", zap.Int("consecutive_page_failures", pageFailures))
			return fmt.Errorf("worker %d: %w after %d page failures", w.cfg.Index, ErrSessionLost, pageFailures)
		}
	}
}

// process runs one attempt and reports whether a page could be opened.
func (w *Worker) process(ctx context.Context, session enrich.Session, item enrich.QueueItem) bool {
	start := w.deps.Clock.Now()
	log := w.logger.With(zap.Int("seq", item.Seq), zap.String("record", progress.MaskID(item.Record.ID)))

	pageOK := true
	var outcome enrich.Outcome
	if err := validate(item.Record); err != nil {
		outcome = enrich.TechnicalFailure("normalize", err)
	} else {
		page, err := session.NewPage(ctx)
		if err != nil {
			pageOK = false
			outcome = enrich.TechnicalFailure("new-page", err)
		} else {
			outcome = w.deps.Interactor.Attempt(ctx, page, item.Record)
			if outcome.Kind == enrich.OutcomeFailure {
				w.captureFailure(ctx, page, item, outcome, log)
			}
			if cerr := page.Close(); cerr != nil {
				log.Warn("page close failed", zap.Error(cerr))
			}
		}
	}

	persistFailed := false
	if outcome.Persistable() {
		if err := w.persist(ctx, item, outcome); err != nil {
			persistFailed = true
			log.Error("persist outcome failed", zap.String("outcome", string(outcome.Kind)), zap.Error(err))
		}
	}

	snap := w.deps.Tracker.Record(outcome.Kind)
	dur := w.deps.Clock.Now().Sub(start)
	if dur < 0 {
		dur = 0
	}
	switch outcome.Kind {
	case enrich.OutcomeFailure:
		log.Warn("attempt failed", zap.String("stage", outcome.Stage), zap.Error(outcome.Err), zap.Duration("dur", dur))
	case enrich.OutcomeNotFound:
		log.Info("record not found", zap.String("message", outcome.Message), zap.Duration("dur", dur))
	default:
		log.Info("record enriched", zap.Duration("dur", dur))
	}
	if w.deps.Reporter != nil {
		w.deps.Reporter.Report(snap)
	}
	w.emit(progress.Event{
		Stage:         progress.StageAttemptDone,
		Record:        progress.MaskID(item.Record.ID),
		Outcome:       outcome.Kind,
		FailedStage:   outcome.Stage,
		PersistFailed: persistFailed,
		Dur:           dur,
		Counts:        snap,
	})
	return pageOK
}

// persist writes a definitive outcome back. It runs on a context detached
// from run cancellation so an answer already obtained is not lost.
func (w *Worker) persist(ctx context.Context, item enrich.QueueItem, outcome enrich.Outcome) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.PersistTimeout)
	defer cancel()
	key := item.SourceID
	if key == "" {
		key = item.Record.ID
	}
	if err := w.deps.Store.Upsert(pctx, key, outcome.Result); err != nil {
		if errors.Is(err, enrich.ErrPersistence) {
			return err
		}
		return fmt.Errorf("%w: %w", enrich.ErrPersistence, err)
	}
	return nil
}

func (w *Worker) captureFailure(ctx context.Context, page enrich.Page, item enrich.QueueItem, outcome enrich.Outcome, log *zap.Logger) {
	if w.deps.Blobs == nil || w.cfg.ScreenshotPrefix == "" || ctx.Err() != nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	png, err := page.Screenshot(sctx)
	if err != nil {
		log.Debug("failure screenshot unavailable", zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%x/%06d-%s.png", w.cfg.ScreenshotPrefix, w.cfg.RunID, item.Seq, outcome.Stage)
	uri, err := w.deps.Blobs.PutObject(sctx, path, "image/png", bytes.NewReader(png))
	if err != nil {
		log.Warn("store failure screenshot", zap.Error(err))
		return
	}
	log.Info("failure screenshot stored", zap.String("uri", uri))
}

func (w *Worker) emit(evt progress.Event) {
	if w.deps.Emitter == nil {
		return
	}
	evt.RunID = w.cfg.RunID
	evt.TS = w.deps.Clock.Now()
	evt.Worker = w.cfg.Index
	evt.Batch = w.cfg.Batch
	w.deps.Emitter.Emit(evt)
}

// validate re-checks a queued record; normalization is idempotent so a valid
// record survives unchanged.
func validate(rec enrich.NormalizedRecord) error {
	again, err := normalize.Record(enrich.BacklogRecord{ID: rec.ID, BirthDate: rec.BirthDate, MotherName: rec.MotherName})
	if err != nil {
		return err
	}
	if again != rec {
		return fmt.Errorf("%w: record %s is not normalized", enrich.ErrMalformedInput, progress.MaskID(rec.ID))
	}
	return nil
}
