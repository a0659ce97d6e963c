package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/corpus-crawler/internal/report"
)

func newFetchCmd() *cobra.Command {
	var skipRoot bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download every pending page into the blob store",
		Long: `Fetches the root page, then repeats passes over the pending frontier until
a pass finishes without transient failures or retry.max_passes is reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			progress := report.NewProgress(appInstance.Output())
			orch, err := appInstance.Orchestrator(progress, skipRoot)
			if err != nil {
				return err
			}
			appInstance.StartMetrics(cmd.Context())

			summary, runErr := orch.Run(cmd.Context())
			appInstance.Logger().Info("fetch run finished",
				zap.Int("passes", summary.Passes),
				zap.Int("saved", summary.Tally.Saved),
				zap.Int("transport_errors", summary.Tally.TransportErrors),
				zap.Duration("elapsed", summary.Elapsed))

			unique, err := appInstance.Store().CountAll(context.WithoutCancel(cmd.Context()))
			if err != nil {
				return fmt.Errorf("count records: %w", err)
			}
			if err := report.WriteFetchSummary(appInstance.Output(), report.FetchSummary{
				Tally:         summary.Tally,
				Passes:        summary.Passes,
				Exhausted:     summary.Exhausted,
				Elapsed:       summary.Elapsed,
				UniqueRecords: unique,
			}); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&skipRoot, "skip-root", false, "do not fetch the root page before the passes")
	return cmd
}
