package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/corpus-crawler/internal/crawler"
	"github.com/JakeFAU/corpus-crawler/internal/metrics"
	"github.com/JakeFAU/corpus-crawler/internal/report"
)

// OrchestratorConfig controls a fetch run.
type OrchestratorConfig struct {
	RootURL string
	// SkipRoot disables the seed fetch at the start of the run.
	SkipRoot bool
}

// RunSummary describes a completed fetch run.
type RunSummary struct {
	Passes  int
	Tally   report.FetchTally
	Elapsed time.Duration
	// Exhausted is set when the pass limit stopped a run that still had
	// transient failures.
	Exhausted bool
}

// Orchestrator repeats fetch passes over the pending frontier until a pass
// finishes without transient failures or the policy gives up.
type Orchestrator struct {
	fetch    *FetchStage
	store    crawler.FrontierStore
	policy   crawler.PassPolicy
	sleeper  crawler.Sleeper
	cfg      OrchestratorConfig
	progress *report.Progress
	logger   *zap.Logger
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(
	fetch *FetchStage,
	store crawler.FrontierStore,
	policy crawler.PassPolicy,
	sleeper crawler.Sleeper,
	cfg OrchestratorConfig,
	progress *report.Progress,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if fetch == nil || store == nil || sleeper == nil {
		return nil, errors.New("orchestrator: fetch stage, store and sleeper are required")
	}
	if !cfg.SkipRoot && cfg.RootURL == "" {
		return nil, errors.New("orchestrator: root url is required unless the root fetch is skipped")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		fetch:    fetch,
		store:    store,
		policy:   policy,
		sleeper:  sleeper,
		cfg:      cfg,
		progress: progress,
		logger:   logger.Named("orchestrator"),
	}, nil
}

// Run executes the fetch run. The returned summary is valid even when an
// error is returned.
func (o *Orchestrator) Run(ctx context.Context) (RunSummary, error) {
	start := time.Now()
	var summary RunSummary

	if !o.cfg.SkipRoot {
		o.progress.Section("Downloading base page %s:", o.cfg.RootURL)
		// Root failures are counted but never drive the pass loop.
		_ = o.fetch.FetchRoot(ctx, o.cfg.RootURL, &summary.Tally)
		if err := ctx.Err(); err != nil {
			summary.Elapsed = time.Since(start)
			return summary, fmt.Errorf("fetch run interrupted: %w", err)
		}
	}

	for {
		pending, err := o.store.SelectPendingFetch(ctx)
		if err != nil {
			summary.Elapsed = time.Since(start)
			return summary, fmt.Errorf("select pending fetch: %w", err)
		}
		if len(pending) == 0 {
			o.logger.Info("no pending urls", zap.Int("passes", summary.Passes))
			break
		}

		summary.Passes++
		metrics.SetFetchPass(summary.Passes)
		o.progress.Section("Prospective pages to download number %d:", len(pending))
		o.logger.Info("starting fetch pass", zap.Int("pass", summary.Passes), zap.Int("pending", len(pending)))

		passTally, err := o.fetch.RunPass(ctx, pending)
		summary.Tally.Add(passTally)
		if err != nil {
			summary.Elapsed = time.Since(start)
			return summary, err
		}

		if !o.policy.ShouldContinue(summary.Passes, passTally.TransportErrors) {
			summary.Exhausted = passTally.TransportErrors > 0
			if summary.Exhausted {
				o.logger.Warn("pass limit reached with transient failures",
					zap.Int("passes", summary.Passes),
					zap.Int("transport_errors", passTally.TransportErrors))
			}
			break
		}

		delay := o.policy.Backoff(summary.Passes)
		o.logger.Info("retrying failed urls",
			zap.Int("transport_errors", passTally.TransportErrors),
			zap.Duration("delay", delay))
		if err := o.sleeper.Sleep(ctx, delay); err != nil {
			summary.Elapsed = time.Since(start)
			return summary, fmt.Errorf("fetch run interrupted: %w", err)
		}
	}
	summary.Elapsed = time.Since(start)
	return summary, nil
}
