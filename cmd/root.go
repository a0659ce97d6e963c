// Package cmd defines and implements the CLI commands for the corpus-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/corpus-crawler/internal/app"
	"github.com/JakeFAU/corpus-crawler/internal/config"
	"github.com/JakeFAU/corpus-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It's a variable so tests can swap in
// in-memory services.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer) (*app.App, error) {
	return app.New(ctx, cfg, logger, app.WithOutput(out))
}

type rootOptions struct {
	cfgFile  string
	logLevel string
	// current is closed once the command returns, even when RunE fails.
	current *app.App
}

// newRootCmd creates and configures the root command.
func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus-crawler",
		Short: "Crawl a single site into a content-addressed page corpus.",
		Long: `corpus-crawler keeps a durable frontier of every url discovered on one site.
The fetch command downloads pending pages into compressed blobs; the extract
command scans fetched blobs for new links. Both can be interrupted and re-run
at any time without losing or repeating work.`,
		SilenceUsage: true,

		// Runs before every subcommand: load config, build the logger, then
		// the application services.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.cfgFile == "" {
				opts.cfgFile = config.DiscoverPath()
			}
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			appInstance, err := newApp(cmd.Context(), cfg, logger, cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			opts.current = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/corpus-crawler/config.yaml when present)")
	cmd.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "l", "",
		"log level: debug, info, warn, error or critical (default from config, warn)")

	cmd.AddCommand(newFetchCmd(), newExtractCmd(), newSeedCmd(), newStatsCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// execute runs the CLI with args and shuts the application services down afterwards.
func execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	opts := &rootOptions{}
	root := newRootCmd(opts)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if opts.current != nil {
		_ = opts.current.Logger().Sync()
		if cerr := opts.current.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close services: %w", cerr)
		}
	}
	return err
}

// Execute is the main entry point. SIGINT and SIGTERM stop the run between urls.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
