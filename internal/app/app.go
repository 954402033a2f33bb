package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/voter-enrichment/internal/api"
	"github.com/JakeFAU/voter-enrichment/internal/browser"
	"github.com/JakeFAU/voter-enrichment/internal/clock/system"
	"github.com/JakeFAU/voter-enrichment/internal/config"
	"github.com/JakeFAU/voter-enrichment/internal/enrich"
	"github.com/JakeFAU/voter-enrichment/internal/extract"
	idgen "github.com/JakeFAU/voter-enrichment/internal/id/uuid"
	"github.com/JakeFAU/voter-enrichment/internal/interaction"
	"github.com/JakeFAU/voter-enrichment/internal/metrics"
	"github.com/JakeFAU/voter-enrichment/internal/pacing"
	"github.com/JakeFAU/voter-enrichment/internal/preflight"
	"github.com/JakeFAU/voter-enrichment/internal/progress"
	"github.com/JakeFAU/voter-enrichment/internal/progress/sinks"
	publisherMemory "github.com/JakeFAU/voter-enrichment/internal/publisher/memory"
	"github.com/JakeFAU/voter-enrichment/internal/publisher/pubsub"
	"github.com/JakeFAU/voter-enrichment/internal/random"
	"github.com/JakeFAU/voter-enrichment/internal/storage/gcs"
	"github.com/JakeFAU/voter-enrichment/internal/storage/local"
	"github.com/JakeFAU/voter-enrichment/internal/storage/postgres"
)

// App holds the long-lived services of one enrichment run.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	pool    *pgxpool.Pool
	runner  *Runner
	hub     *progress.Hub
	server  *api.Server
	line    *progress.LineReporter
	metrics *metrics.Metrics
	reg     *prometheus.Registry
	runs    *postgres.RunStore
	closers []func() error
}

// New connects to the database and builds every collaborator named by cfg.
// The caller must Close the App.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	a.pool, err = postgres.Connect(ctx, cfg.Pool())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.pool.Close(); return nil })
	if cfg.Database.EnsureSchema && !cfg.Run.DryRun {
		if err = postgres.EnsureSchema(ctx, a.pool, cfg.Backlog.Table); err != nil {
			return nil, err
		}
	}
	backlog, err := postgres.NewBacklogStore(a.pool, cfg.Backlog.Table)
	if err != nil {
		return nil, err
	}
	a.runs = postgres.NewRunStore(a.pool)

	rnd := random.NewFromTime()
	if cfg.Run.Seed != 0 {
		rnd = random.New(cfg.Run.Seed)
	}
	picker := browser.NewIdentityPicker(cfg.Identity(), rnd)

	deps := Deps{
		Backlog:    backlog,
		Store:      backlog,
		Identities: picker,
		Clock:      system.New(),
		IDs:        idgen.New(),
	}
	if cfg.Preflight.Enabled {
		probeCfg := preflight.Config{
			URL:       cfg.Form.EntryURL,
			UserAgent: picker.Next().UserAgent,
			Timeout:   time.Duration(cfg.Preflight.TimeoutSeconds) * time.Second,
			Marker:    cfg.Preflight.Marker,
		}
		deps.Probe = func(ctx context.Context) error {
			report, perr := preflight.Check(ctx, probeCfg)
			if perr != nil {
				return perr
			}
			logger.Info("entry page reachable",
				zap.Int("status", report.StatusCode), zap.Duration("dur", report.Duration))
			return nil
		}
	}

	if !cfg.Run.DryRun {
		if err = a.buildPipeline(ctx, &deps, rnd); err != nil {
			return nil, err
		}
	}

	a.runner, err = NewRunner(deps, RunConfig{
		BatchID:          cfg.Backlog.BatchID,
		Concurrency:      cfg.Run.Concurrency,
		DryRun:           cfg.Run.DryRun,
		PersistTimeout:   time.Duration(cfg.Run.PersistTimeoutSeconds) * time.Second,
		MaxPageFailures:  cfg.Run.MaxPageFailures,
		ScreenshotPrefix: screenshotPrefix(cfg),
	}, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Server.Enabled {
		srvDeps := api.Deps{
			RunID:    a.runner.RunID(),
			Batch:    cfg.Backlog.BatchID,
			Progress: a.runner,
			Runs:     a.runs,
			Metrics:  a.metrics,
		}
		if a.reg != nil {
			srvDeps.Gatherer = a.reg
		}
		a.server = api.NewServer(srvDeps, logger)
	}
	return a, nil
}

func (a *App) buildPipeline(ctx context.Context, deps *Deps, rnd random.Source) error {
	cfg := a.cfg
	a.reg = metrics.NewRegistry()
	m, err := metrics.New(a.reg)
	if err != nil {
		return err
	}
	a.metrics = m

	hubSinks := []progress.Sink{
		sinks.NewLogSink(a.logger),
		sinks.NewPrometheusSink(m),
		sinks.NewLedgerSink(a.runs),
	}
	pub, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	if pub != nil {
		hubSinks = append(hubSinks, sinks.NewPublisherSink(pub, cfg.Publisher.Topic))
	}
	hubCfg := cfg.Hub()
	hubCfg.Logger = a.logger
	a.hub = progress.NewHub(hubCfg, hubSinks...)
	deps.Emitter = a.hub

	blobs, closeBlobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	if closeBlobs != nil {
		a.closers = append(a.closers, closeBlobs)
	}
	deps.Blobs = blobs

	typist := interaction.NewTypist(cfg.Typist(), rnd, pacing.Sleep)
	deps.Interactor = interaction.New(cfg.Engine(), extract.New(cfg.Extractor()), typist, pacing.Sleep, a.logger)
	deps.Opener = browser.NewLauncher(cfg.Launcher(), a.logger)
	deps.Pacer = pacing.New(cfg.Pacer(), rnd)

	if cfg.Run.ProgressLine {
		a.line = progress.NewLineReporter(os.Stderr)
		deps.Reporter = a.line
	}
	return nil
}

// Run executes the run and, when enabled, serves the status endpoints
// until it finishes.
func (a *App) Run(ctx context.Context) (Summary, error) {
	if a.server != nil {
		srvCtx, stop := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := a.server.Serve(srvCtx, ":"+strconv.Itoa(a.cfg.Server.Port)); err != nil {
				a.logger.Error("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			stop()
			<-done
		}()
	}
	sum, err := a.runner.Run(ctx)
	if a.line != nil {
		a.line.Finish()
	}
	return sum, err
}

// RunID returns the identifier of the run.
func (a *App) RunID() string {
	return a.runner.RunID().String()
}

// Close flushes progress sinks and releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if dropped := a.hub.Dropped(); dropped > 0 {
			a.logger.Warn("progress events dropped", zap.Int64("count", dropped))
		}
	}
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newPublisher(ctx context.Context, cfg config.Config) (enrich.Publisher, error) {
	switch cfg.Publisher.Backend {
	case config.PublisherPubSub:
		pub, err := pubsub.New(ctx, cfg.Publisher.ProjectID, map[string]string{"batch": cfg.Backlog.BatchID})
		if err != nil {
			return nil, err
		}
		return pub, nil
	case config.PublisherMemory:
		return publisherMemory.New(), nil
	default:
		return nil, nil
	}
}

func newBlobStore(ctx context.Context, cfg config.Config) (enrich.BlobStore, func() error, error) {
	switch cfg.Artifacts.Backend {
	case config.ArtifactsLocal:
		store, err := local.New(cfg.Artifacts.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case config.ArtifactsGCS:
		store, err := gcs.New(ctx, cfg.Artifacts.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, nil
	}
}

func screenshotPrefix(cfg config.Config) string {
	if cfg.Artifacts.Backend == config.ArtifactsNone {
		return ""
	}
	if cfg.Artifacts.Prefix == "" {
		return "screenshots"
	}
	return cfg.Artifacts.Prefix
}

// PrintSummary writes the end-of-run totals in the operator-facing format.
func PrintSummary(w io.Writer, sum Summary) {
	c := sum.Counts
	fmt.Fprintf(w, "run %s (batch %s)\n", sum.RunID, sum.Batch)
	if sum.DryRun {
		fmt.Fprintf(w, "dry run: %d records, %d queued, %d malformed\n", c.Total, c.Total-int64(sum.Malformed), sum.Malformed)
		return
	}
	fmt.Fprintf(w, "total processed: %d\n", c.Processed())
	fmt.Fprintf(w, "success: %d\n", c.Success)
	fmt.Fprintf(w, "not found: %d\n", c.NotFound)
	fmt.Fprintf(w, "failure: %d\n", c.Failure)
	fmt.Fprintf(w, "pending: %d\n", c.Pending())
}
