// Package worker implements the fetch and link extraction stages and the
// orchestrator that drives repeated fetch passes.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/corpus-crawler/internal/crawler"
	"github.com/JakeFAU/corpus-crawler/internal/metrics"
	"github.com/JakeFAU/corpus-crawler/internal/report"
)

// FetchConfig controls FetchStage behavior.
type FetchConfig struct {
	SiteID string
	RunID  string
	// Topic receives a page_fetched event per saved page; empty disables publishing.
	Topic string
	// ClassifyPermanent moves urls with permanent failures into the failed state.
	ClassifyPermanent bool
	Headers           http.Header
}

// FetchDeps are the collaborators of FetchStage. Limiter and Publisher are optional.
type FetchDeps struct {
	Store     crawler.FrontierStore
	Fetcher   crawler.Fetcher
	Limiter   crawler.Limiter
	Hasher    crawler.Hasher
	Codec     crawler.Codec
	Blobs     crawler.BlobStore
	Publisher crawler.Publisher
	Clock     crawler.Clock
}

// FetchStage downloads one url at a time, stores its compressed blob, then
// records the result in the frontier.
type FetchStage struct {
	deps     FetchDeps
	cfg      FetchConfig
	progress *report.Progress
	logger   *zap.Logger
}

// NewFetchStage validates deps and constructs a FetchStage.
func NewFetchStage(deps FetchDeps, cfg FetchConfig, progress *report.Progress, logger *zap.Logger) (*FetchStage, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("fetch stage: store is required")
	case deps.Fetcher == nil:
		return nil, errors.New("fetch stage: fetcher is required")
	case deps.Hasher == nil:
		return nil, errors.New("fetch stage: hasher is required")
	case deps.Codec == nil:
		return nil, errors.New("fetch stage: codec is required")
	case deps.Blobs == nil:
		return nil, errors.New("fetch stage: blob store is required")
	case deps.Clock == nil:
		return nil, errors.New("fetch stage: clock is required")
	}
	if cfg.SiteID == "" {
		return nil, errors.New("fetch stage: site id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FetchStage{
		deps:     deps,
		cfg:      cfg,
		progress: progress,
		logger:   logger.Named("fetch"),
	}, nil
}

// RunPass fetches every url in order. Per-url failures are tallied; only
// context cancellation stops the pass early.
func (s *FetchStage) RunPass(ctx context.Context, urls []string) (report.FetchTally, error) {
	var tally report.FetchTally
	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return tally, fmt.Errorf("fetch pass interrupted: %w", err)
		}
		if err := s.FetchURL(ctx, url, false, &tally); err != nil && ctx.Err() != nil {
			return tally, fmt.Errorf("fetch pass interrupted: %w", ctx.Err())
		}
	}
	return tally, nil
}

// FetchRoot fetches the seed page, which is always stored as a new root row.
func (s *FetchStage) FetchRoot(ctx context.Context, url string, tally *report.FetchTally) error {
	return s.FetchURL(ctx, url, true, tally)
}

// FetchURL processes one url and folds the outcome into tally. The returned
// error describes the failure, if any; it has already been counted.
func (s *FetchStage) FetchURL(ctx context.Context, url string, root bool, tally *report.FetchTally) error {
	tally.Attempted++
	logger := s.logger.With(zap.String("url", url), zap.Bool("root", root))

	err := s.fetchURL(ctx, url, root, tally, logger)
	outcome := classify(err)
	if outcome == metrics.OutcomePermanent && !root && !s.cfg.ClassifyPermanent {
		// The record stays pending, so it must keep the retry loop alive.
		outcome = metrics.OutcomeTransport
	}
	switch outcome {
	case metrics.OutcomeSaved:
		tally.Saved++
	case metrics.OutcomeTransport:
		tally.TransportErrors++
	case metrics.OutcomePermanent:
		tally.PermanentFailures++
	case metrics.OutcomeStore:
		tally.StoreErrors++
	default:
		tally.Discarded++
	}
	s.progress.Mark(err == nil)
	if err != nil && ctx.Err() == nil {
		logger.Warn("fetch failed", zap.String("outcome", outcome), zap.Error(err))
	}
	return err
}

func (s *FetchStage) fetchURL(ctx context.Context, url string, root bool, tally *report.FetchTally, logger *zap.Logger) error {
	if s.deps.Limiter != nil {
		if err := s.deps.Limiter.Wait(ctx, url); err != nil {
			return crawler.NewFetchError(url, 0, err)
		}
	}

	start := time.Now()
	resp, err := s.deps.Fetcher.Fetch(ctx, crawler.FetchRequest{URL: url, Headers: s.cfg.Headers})
	elapsed := time.Since(start)
	tally.RequestTime += elapsed
	if err != nil {
		if !errors.Is(err, crawler.ErrTransport) {
			err = crawler.NewFetchError(url, 0, err)
		}
		metrics.ObserveFetch(s.cfg.SiteID, classify(err), 0, elapsed)
		return s.handleFetchError(ctx, url, root, err)
	}

	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		metrics.ObserveFetch(s.cfg.SiteID, metrics.OutcomeDiscarded, 0, elapsed)
		return fmt.Errorf("fetch %s: %w", url, crawler.ErrEmptyContent)
	}

	contentHash, err := s.deps.Hasher.Hash(body)
	if err != nil {
		metrics.ObserveFetch(s.cfg.SiteID, metrics.OutcomeDiscarded, len(body), elapsed)
		return errors.Join(crawler.ErrEncoding, fmt.Errorf("hash %s: %w", url, err))
	}
	packed, err := s.deps.Codec.Encode(body)
	if err != nil {
		metrics.ObserveFetch(s.cfg.SiteID, metrics.OutcomeDiscarded, len(body), elapsed)
		return errors.Join(crawler.ErrEncoding, fmt.Errorf("compress %s: %w", url, err))
	}

	// The blob is written before the record so a record never points at a
	// missing blob; a crash in between only leaves an orphan blob.
	name := crawler.BlobName(s.cfg.SiteID, contentHash, root)
	saveStart := time.Now()
	uri, err := s.deps.Blobs.Put(ctx, name, packed)
	tally.SaveTime += time.Since(saveStart)
	if err != nil {
		metrics.ObserveFetch(s.cfg.SiteID, metrics.OutcomeDiscarded, len(body), elapsed)
		return errors.Join(crawler.ErrStorageWrite, fmt.Errorf("put %s: %w", name, err))
	}

	fetchedAt := s.deps.Clock.Now()
	if err := s.deps.Store.RecordFetchResult(ctx, crawler.FetchResult{
		URL:         url,
		ContentHash: contentHash,
		FetchedAt:   fetchedAt,
		Root:        root,
	}); err != nil {
		metrics.ObserveFetch(s.cfg.SiteID, metrics.OutcomeStore, len(body), elapsed)
		return &storeError{err: fmt.Errorf("record fetch %s: %w", url, err)}
	}
	metrics.ObserveFetch(s.cfg.SiteID, metrics.OutcomeSaved, len(body), elapsed)
	logger.Debug("page stored", zap.String("hash", contentHash), zap.String("blob", name))

	s.publish(ctx, crawler.PageFetchedEvent{
		RunID:       s.cfg.RunID,
		SiteID:      s.cfg.SiteID,
		URL:         url,
		ContentHash: contentHash,
		BlobName:    name,
		BlobURI:     uri,
		Root:        root,
		FetchedAt:   fetchedAt,
		Bytes:       len(body),
	}, logger)
	return nil
}

func (s *FetchStage) handleFetchError(ctx context.Context, url string, root bool, err error) error {
	if ctx.Err() != nil {
		return err
	}
	if !crawler.IsPermanent(err) {
		return err
	}
	// Root pages have no frontier row to fail; a permanent root failure is
	// only counted.
	if root || !s.cfg.ClassifyPermanent {
		return err
	}
	if recErr := s.deps.Store.RecordFetchFailure(ctx, url, err.Error(), s.deps.Clock.Now()); recErr != nil {
		return &storeError{err: fmt.Errorf("record failure %s: %w (fetch: %v)", url, recErr, err)}
	}
	return err
}

func (s *FetchStage) publish(ctx context.Context, event crawler.PageFetchedEvent, logger *zap.Logger) {
	if s.deps.Publisher == nil || s.cfg.Topic == "" {
		return
	}
	if _, err := s.deps.Publisher.Publish(ctx, s.cfg.Topic, event); err != nil {
		logger.Warn("publish page_fetched failed", zap.String("topic", s.cfg.Topic), zap.Error(err))
	}
}

// storeError marks a failure to update the frontier after the fetch itself succeeded.
type storeError struct {
	err error
}

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

func classify(err error) string {
	var se *storeError
	switch {
	case err == nil:
		return metrics.OutcomeSaved
	case errors.As(err, &se):
		return metrics.OutcomeStore
	case errors.Is(err, crawler.ErrPermanent):
		return metrics.OutcomePermanent
	case errors.Is(err, crawler.ErrTransport):
		return metrics.OutcomeTransport
	default:
		return metrics.OutcomeDiscarded
	}
}
