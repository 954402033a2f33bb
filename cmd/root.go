// Package cmd defines the CLI commands for the voter-enricher executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/voter-enrichment/internal/config"
	"github.com/JakeFAU/voter-enrichment/internal/logging"
)

type envKeyType struct{}

// env carries the loaded configuration and logger to subcommands.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

func envFrom(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKeyType{}).(*env)
	if !ok || e == nil {
		return nil, errors.New("configuration not initialized")
	}
	return e, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "voter-enricher",
		Short: "Enriches supporter records with their polling place.",
		Long: `voter-enricher reads unprocessed supporter records for a batch, looks each
one up on the TRE-CE "onde votar" form through a pool of browser sessions,
and writes the polling place back to the database.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKeyType{}, &env{cfg: cfg, logger: logger}))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, err := envFrom(cmd.Context()); err == nil {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json, or toml)")
	cmd.AddCommand(newEnrichCmd(), newPreflightCmd())
	return cmd
}

// Execute runs the CLI and returns the process exit code. SIGINT and SIGTERM
// cancel the running command.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
