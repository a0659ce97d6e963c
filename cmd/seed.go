package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/corpus-crawler/internal/crawler"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <url>...",
		Short: "Insert urls into the frontier",
		Long:  `Adds each url to the frontier unless it is already present. Site-relative paths are resolved against site.base_url.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			base := appInstance.Config().Site.BaseURL
			now := time.Now().UTC()

			var added, ignored int
			for _, arg := range args {
				link, err := crawler.NormalizeLink(base, arg)
				if err != nil {
					return fmt.Errorf("seed %q: %w", arg, err)
				}
				outcome, err := appInstance.Store().InsertIfAbsent(cmd.Context(), link, now)
				if err != nil {
					return fmt.Errorf("seed %q: %w", link, err)
				}
				if outcome == crawler.Inserted {
					added++
				} else {
					ignored++
				}
			}
			_, err = fmt.Fprintf(appInstance.Output(), "%d urls added, %d already present.\n", added, ignored)
			return err
		},
	}
}
