// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/corpus-crawler/internal/clock/system"
	bzip2codec "github.com/JakeFAU/corpus-crawler/internal/compress/bzip2"
	"github.com/JakeFAU/corpus-crawler/internal/config"
	"github.com/JakeFAU/corpus-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/corpus-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/corpus-crawler/internal/hash"
	"github.com/JakeFAU/corpus-crawler/internal/id/uuid"
	"github.com/JakeFAU/corpus-crawler/internal/metrics"
	goqueryparser "github.com/JakeFAU/corpus-crawler/internal/parser/goquery"
	"github.com/JakeFAU/corpus-crawler/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/corpus-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/corpus-crawler/internal/report"
	"github.com/JakeFAU/corpus-crawler/internal/storage/gcs"
	"github.com/JakeFAU/corpus-crawler/internal/storage/local"
	"github.com/JakeFAU/corpus-crawler/internal/storage/memory"
	"github.com/JakeFAU/corpus-crawler/internal/storage/postgres"
	"github.com/JakeFAU/corpus-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/corpus-crawler/internal/worker"
)

// App holds the shared, long-lived services for one command invocation.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	out            io.Writer
	store          crawler.FrontierStore
	blobs          crawler.BlobStore
	publisher      crawler.Publisher
	hasher         *hash.Hasher
	codec          crawler.Codec
	clock          *system.Clock
	fetcherFactory func() crawler.Fetcher
	runID          string
	closers        []func() error
}

// Option customizes App construction.
type Option func(*App)

// WithOutput sends progress marks and summaries to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithFetcher replaces the Colly fetcher.
func WithFetcher(fn func() crawler.Fetcher) Option {
	return func(a *App) { a.fetcherFactory = fn }
}

// New creates and initializes an App from cfg. It fails fast when the store,
// blob provider, or publisher cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, out: os.Stdout, clock: system.New()}
	for _, opt := range opts {
		opt(a)
	}

	runID, err := uuid.New().NewID()
	if err != nil {
		return nil, err
	}
	a.runID = runID
	a.logger = a.logger.With(zap.String("run_id", runID), zap.String("site", cfg.Site.ID))

	if a.hasher, err = hash.New(cfg.Hash.Algorithm); err != nil {
		return nil, err
	}
	if a.codec, err = bzip2codec.New(cfg.Blobs.Level); err != nil {
		return nil, err
	}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.openBlobs(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.openPublisher(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.logger.Debug("application services initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("blobs", cfg.Blobs.Provider),
		zap.String("hash", a.hasher.Name()))
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case config.DriverSQLite:
		opts := sqlite.DefaultOptions()
		if a.cfg.Store.Table != "" {
			opts.Table = a.cfg.Store.Table
		}
		store, err := sqlite.Open(a.cfg.Store.Path, opts)
		if err != nil {
			return fmt.Errorf("open frontier store: %w", err)
		}
		a.logger.Debug("sqlite frontier opened", zap.String("path", store.Path()))
		a.store = store
	case config.DriverPostgres:
		store, err := postgres.NewFrontierStore(ctx, postgres.Config{
			DSN:      a.cfg.Store.DSN,
			Table:    a.cfg.Store.Table,
			MaxConns: a.cfg.Store.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("open frontier store: %w", err)
		}
		a.store = store
	case config.DriverMemory:
		a.store = memory.NewFrontierStore()
	default:
		return fmt.Errorf("unknown store driver: %s", a.cfg.Store.Driver)
	}
	a.closers = append(a.closers, a.store.Close)
	return nil
}

func (a *App) openBlobs(ctx context.Context) error {
	switch a.cfg.Blobs.Provider {
	case config.BlobsLocal:
		blobs, err := local.New(local.Config{BaseDir: a.cfg.Blobs.Dir})
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		a.blobs = blobs
	case config.BlobsGCS:
		blobs, closeFn, err := gcs.Dial(ctx, gcs.Config{Bucket: a.cfg.Blobs.GCSBucket, Prefix: a.cfg.Blobs.Prefix})
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		a.blobs = blobs
		a.closers = append(a.closers, closeFn)
	case config.BlobsMemory:
		a.blobs = memory.NewBlobStore()
	default:
		return fmt.Errorf("unknown blob provider: %s", a.cfg.Blobs.Provider)
	}
	return nil
}

func (a *App) openPublisher(ctx context.Context) error {
	if a.cfg.PubSub.Topic == "" {
		return nil
	}
	pub, err := pubsubpublisher.Dial(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("open publisher: %w", err)
	}
	a.publisher = pub
	a.closers = append(a.closers, pub.Close)
	return nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the frontier store.
func (a *App) Store() crawler.FrontierStore { return a.store }

// Blobs returns the blob store.
func (a *App) Blobs() crawler.BlobStore { return a.blobs }

// Output returns the writer for progress marks and summaries.
func (a *App) Output() io.Writer { return a.out }

// RunID returns the UUIDv7 assigned to this invocation.
func (a *App) RunID() string { return a.runID }

// Fetcher builds the HTTP fetcher from the http config section.
func (a *App) Fetcher() crawler.Fetcher {
	if a.fetcherFactory != nil {
		return a.fetcherFactory()
	}
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.HTTP.UserAgent,
		RespectRobots: a.cfg.HTTP.RespectRobots,
		Timeout:       a.cfg.FetchTimeout(),
	})
}

// FetchStage wires the fetch stage.
func (a *App) FetchStage(progress *report.Progress) (*worker.FetchStage, error) {
	deps := worker.FetchDeps{
		Store:     a.store,
		Fetcher:   a.Fetcher(),
		Limiter:   ratelimit.New(ratelimit.Config{RPS: a.cfg.HTTP.RequestsPerSecond, Burst: a.cfg.HTTP.Burst}),
		Hasher:    a.hasher,
		Codec:     a.codec,
		Blobs:     a.blobs,
		Publisher: a.publisher,
		Clock:     a.clock,
	}
	return worker.NewFetchStage(deps, worker.FetchConfig{
		SiteID:            a.cfg.Site.ID,
		RunID:             a.runID,
		Topic:             a.cfg.PubSub.Topic,
		ClassifyPermanent: a.cfg.Retry.ClassifyPermanent,
	}, progress, a.logger)
}

// Orchestrator wires the fetch pass loop around a new fetch stage.
func (a *App) Orchestrator(progress *report.Progress, skipRoot bool) (*worker.Orchestrator, error) {
	stage, err := a.FetchStage(progress)
	if err != nil {
		return nil, err
	}
	policy := crawler.PassPolicy{
		MaxPasses: a.cfg.Retry.MaxPasses,
		BaseDelay: a.cfg.Retry.BackoffInitial,
		MaxDelay:  a.cfg.Retry.BackoffMax,
		Jitter:    a.cfg.Retry.Jitter,
	}
	return worker.NewOrchestrator(stage, a.store, policy, a.clock, worker.OrchestratorConfig{
		RootURL:  a.cfg.Site.RootURL,
		SkipRoot: skipRoot,
	}, progress, a.logger)
}

// ExtractStage wires the link extraction stage.
func (a *App) ExtractStage(progress *report.Progress) (*worker.ExtractStage, error) {
	return worker.NewExtractStage(worker.ExtractDeps{
		Store:  a.store,
		Blobs:  a.blobs,
		Codec:  a.codec,
		Parser: goqueryparser.New(),
		Clock:  a.clock,
	}, worker.ExtractConfig{
		SiteID:      a.cfg.Site.ID,
		BaseURL:     a.cfg.Site.BaseURL,
		LinkPrefix:  a.cfg.Site.LinkPrefix,
		MaxAttempts: a.cfg.Extract.MaxAttempts,
	}, progress, a.logger)
}

// StartMetrics serves /metrics and /healthz until ctx is done when metrics.addr is set.
func (a *App) StartMetrics(ctx context.Context) {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	metrics.Init()
	go func() {
		if err := metrics.Serve(ctx, a.cfg.Metrics.Addr, a.logger); err != nil {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// Close shuts down every service in reverse order of construction.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing application services", zap.Error(err))
		return err
	}
	return nil
}
