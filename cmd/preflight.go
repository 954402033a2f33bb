package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/voter-enrichment/internal/preflight"
)

func newPreflightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Checks that the entry page of the form is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := envFrom(cmd.Context())
			if err != nil {
				return err
			}
			report, err := preflight.Check(cmd.Context(), preflight.Config{
				URL:     e.cfg.Form.EntryURL,
				Timeout: time.Duration(e.cfg.Preflight.TimeoutSeconds) * time.Second,
				Marker:  e.cfg.Preflight.Marker,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s reachable: status %d, %d bytes in %s\n",
				report.URL, report.StatusCode, report.Bytes, report.Duration.Round(time.Millisecond))
			return nil
		},
	}
}
