package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/corpus-crawler/internal/crawler"
)

func newStatsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print frontier counts by phase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := appInstance.Store().Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("frontier stats: %w", err)
			}
			return writeStats(appInstance.Output(), format, appInstance.Config().Site.ID, stats)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or markdown")
	return cmd
}

type statsRow struct {
	label string
	n     int
}

func statsRows(stats crawler.FrontierStats) []statsRow {
	return []statsRow{
		{"total records", stats.Total},
		{"pending fetch", stats.PendingFetch},
		{"fetched", stats.Fetched},
		{"pending extraction", stats.PendingExtract},
		{"extracted", stats.Extracted},
		{"failed", stats.Failed},
		{"root rows", stats.RootRows},
	}
}

func writeStats(w io.Writer, format, site string, stats crawler.FrontierStats) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	case "markdown", "md":
		rows := make([][]string, 0, 7)
		for _, r := range statsRows(stats) {
			rows = append(rows, []string{r.label, strconv.Itoa(r.n)})
		}
		md := markdown.NewMarkdown(w)
		md.H2("Frontier: " + site)
		md.PlainText("")
		md.Table(markdown.TableSet{
			Header: []string{"Phase", "Records"},
			Rows:   rows,
		})
		return md.Build()
	case "text", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, r := range statsRows(stats) {
			fmt.Fprintf(tw, "%s\t%d\n", r.label, r.n)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown stats format %q", format)
	}
}
