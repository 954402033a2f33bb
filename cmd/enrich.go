package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/voter-enrichment/internal/app"
	"github.com/JakeFAU/voter-enrichment/internal/config"
)

// runner is what the enrich command drives. *app.App satisfies it.
type runner interface {
	Run(ctx context.Context) (app.Summary, error)
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace
// it with a fake.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (runner, error) {
	return app.New(ctx, cfg, logger)
}

func newEnrichCmd() *cobra.Command {
	var (
		batch       string
		concurrency int
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Runs one enrichment pass over a batch",
		Long: `Loads the unprocessed records of a batch, runs the worker pool until the
queue drains, and prints the final counters. Records that fail technically
stay unprocessed and are picked up by the next run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := envFrom(cmd.Context())
			if err != nil {
				return err
			}
			cfg := e.cfg
			if cmd.Flags().Changed("batch") {
				cfg.Backlog.BatchID = batch
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Run.Concurrency = concurrency
			}
			if cmd.Flags().Changed("dry-run") {
				cfg.Run.DryRun = dryRun
			}
			return runEnrich(cmd, cfg, e.logger)
		},
	}
	cmd.Flags().StringVar(&batch, "batch", "", "batch (contract) identifier to enrich")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of parallel browser sessions")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "load and normalize the backlog without starting browsers")
	return cmd
}

func runEnrich(cmd *cobra.Command, cfg config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		grace := time.Duration(cfg.Run.ShutdownGraceSeconds) * time.Second
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer cancel()
		if cerr := a.Close(closeCtx); cerr != nil {
			logger.Warn("shutdown incomplete", zap.Error(cerr))
		}
	}()

	sum, err := a.Run(ctx)
	app.PrintSummary(cmd.OutOrStdout(), sum)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("run interrupted", zap.Error(err))
		}
		return err
	}
	return nil
}
