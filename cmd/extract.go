package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/corpus-crawler/internal/report"
)

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Scan fetched pages for new links",
		Long: `Reads every fetched blob that has not been scanned yet, inserts the links
matching site.link_prefix into the frontier and marks the blob extracted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			progress := report.NewProgress(appInstance.Output())
			stage, err := appInstance.ExtractStage(progress)
			if err != nil {
				return err
			}
			appInstance.StartMetrics(cmd.Context())

			start := time.Now()
			tally, runErr := stage.Run(cmd.Context())
			elapsed := time.Since(start)
			appInstance.Logger().Info("extract run finished",
				zap.Int("pages", tally.Pages),
				zap.Int("links_added", tally.LinksAdded),
				zap.Duration("elapsed", elapsed))

			unique, err := appInstance.Store().CountAll(context.WithoutCancel(cmd.Context()))
			if err != nil {
				return fmt.Errorf("count records: %w", err)
			}
			if err := report.WriteExtractSummary(appInstance.Output(), report.ExtractSummary{
				Tally:         tally,
				Elapsed:       elapsed,
				UniqueRecords: unique,
			}); err != nil {
				return err
			}
			return runErr
		},
	}
}
