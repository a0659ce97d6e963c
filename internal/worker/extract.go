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

// DefaultMaxExtractAttempts is how many unreadable-blob failures a hash may
// accumulate before it is marked extracted with no links.
const DefaultMaxExtractAttempts = 3

// ExtractConfig controls ExtractStage behavior.
type ExtractConfig struct {
	SiteID string
	// BaseURL is prepended to site-relative hrefs.
	BaseURL    string
	LinkPrefix string
	// MaxAttempts caps read/parse failures per hash; 1 gives up on the first failure.
	MaxAttempts int
}

// ExtractDeps are the collaborators of ExtractStage.
type ExtractDeps struct {
	Store  crawler.FrontierStore
	Blobs  crawler.BlobStore
	Codec  crawler.Codec
	Parser crawler.Parser
	Clock  crawler.Clock
}

// ExtractStage reads fetched blobs, inserts the links they contain into the
// frontier and marks each blob extracted.
type ExtractStage struct {
	deps     ExtractDeps
	cfg      ExtractConfig
	progress *report.Progress
	logger   *zap.Logger
}

// NewExtractStage validates deps and constructs an ExtractStage.
func NewExtractStage(deps ExtractDeps, cfg ExtractConfig, progress *report.Progress, logger *zap.Logger) (*ExtractStage, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("extract stage: store is required")
	case deps.Blobs == nil:
		return nil, errors.New("extract stage: blob store is required")
	case deps.Codec == nil:
		return nil, errors.New("extract stage: codec is required")
	case deps.Parser == nil:
		return nil, errors.New("extract stage: parser is required")
	case deps.Clock == nil:
		return nil, errors.New("extract stage: clock is required")
	}
	if cfg.SiteID == "" || cfg.BaseURL == "" {
		return nil, errors.New("extract stage: site id and base url are required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxExtractAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtractStage{
		deps:     deps,
		cfg:      cfg,
		progress: progress,
		logger:   logger.Named("extract"),
	}, nil
}

// Run extracts every pending blob once. Only a failure to list pending work
// or context cancellation is returned as an error.
func (s *ExtractStage) Run(ctx context.Context) (report.ExtractTally, error) {
	var tally report.ExtractTally
	pending, err := s.deps.Store.SelectPendingExtraction(ctx)
	if err != nil {
		return tally, fmt.Errorf("select pending extraction: %w", err)
	}
	if len(pending) == 0 {
		s.progress.Section("There are no links to be added.")
		return tally, nil
	}
	s.progress.Section("Prospective uncrawled files number %d:", len(pending))
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return tally, fmt.Errorf("extraction interrupted: %w", err)
		}
		if err := s.ExtractOne(ctx, p, &tally); err != nil && ctx.Err() != nil {
			return tally, fmt.Errorf("extraction interrupted: %w", ctx.Err())
		}
	}
	return tally, nil
}

// ExtractOne processes a single blob and folds the outcome into tally.
func (s *ExtractStage) ExtractOne(ctx context.Context, p crawler.PendingExtraction, tally *report.ExtractTally) error {
	tally.Pages++
	logger := s.logger.With(zap.String("hash", p.ContentHash))

	doc, err := s.load(ctx, p)
	if err != nil {
		tally.ParseErrors++
		s.progress.Mark(false)
		logger.Warn("blob unreadable", zap.Error(err))
		return s.handleParseFailure(ctx, p, tally, logger, err)
	}

	hrefs := doc.SelectAnchors(s.cfg.LinkPrefix)
	if len(hrefs) == 0 {
		tally.NoLinks++
		metrics.ObserveExtract(s.cfg.SiteID, metrics.OutcomeNoLinks)
	} else {
		tally.Crawled++
		metrics.ObserveExtract(s.cfg.SiteID, metrics.OutcomeCrawled)
	}

	now := s.deps.Clock.Now()
	for _, href := range hrefs {
		if err := s.insertLink(ctx, href, now, tally, logger); err != nil && ctx.Err() != nil {
			return err
		}
	}
	return s.markExtracted(ctx, p, tally, logger)
}

func (s *ExtractStage) load(ctx context.Context, p crawler.PendingExtraction) (crawler.Document, error) {
	name := crawler.BlobName(s.cfg.SiteID, p.ContentHash, !p.WantsContent)
	packed, err := s.deps.Blobs.Get(ctx, name)
	if err != nil {
		return nil, errors.Join(crawler.ErrParse, fmt.Errorf("read %s: %w", name, err))
	}
	raw, err := s.deps.Codec.Decode(packed)
	if err != nil {
		return nil, errors.Join(crawler.ErrParse, fmt.Errorf("decompress %s: %w", name, err))
	}
	doc, err := s.deps.Parser.Parse(raw)
	if err != nil {
		return nil, errors.Join(crawler.ErrParse, fmt.Errorf("parse %s: %w", name, err))
	}
	return doc, nil
}

// handleParseFailure keeps the hash pending until it has failed MaxAttempts
// times, then marks it extracted as a page with no links.
func (s *ExtractStage) handleParseFailure(
	ctx context.Context,
	p crawler.PendingExtraction,
	tally *report.ExtractTally,
	logger *zap.Logger,
	cause error,
) error {
	metrics.ObserveExtract(s.cfg.SiteID, metrics.OutcomeParse)
	attempts, err := s.deps.Store.RecordExtractionFailure(ctx, p.ContentHash)
	if err != nil {
		tally.StoreErrors++
		logger.Error("record extraction failure", zap.Error(err))
		return errors.Join(cause, err)
	}
	if attempts < s.cfg.MaxAttempts {
		logger.Info("extraction will be retried", zap.Int("attempts", attempts))
		return cause
	}
	tally.NoLinks++
	metrics.ObserveExtract(s.cfg.SiteID, metrics.OutcomeNoLinks)
	logger.Warn("giving up on unreadable blob", zap.Int("attempts", attempts))
	if err := s.markExtracted(ctx, p, tally, logger); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (s *ExtractStage) insertLink(
	ctx context.Context,
	href string,
	now time.Time,
	tally *report.ExtractTally,
	logger *zap.Logger,
) error {
	link, err := crawler.NormalizeLink(s.cfg.BaseURL, href)
	if err != nil {
		tally.Discarded++
		s.progress.Mark(false)
		logger.Debug("link discarded", zap.String("href", href), zap.Error(err))
		return nil
	}
	outcome, err := s.deps.Store.InsertIfAbsent(ctx, link, now)
	if err != nil {
		tally.StoreErrors++
		s.progress.Mark(false)
		logger.Error("insert link", zap.String("url", link), zap.Error(err))
		return err
	}
	metrics.ObserveLink(s.cfg.SiteID, outcome.String())
	switch outcome {
	case crawler.Inserted:
		tally.LinksAdded++
		s.progress.Mark(true)
	default:
		tally.Duplicates++
		s.progress.Mark(false)
	}
	return nil
}

func (s *ExtractStage) markExtracted(ctx context.Context, p crawler.PendingExtraction, tally *report.ExtractTally, logger *zap.Logger) error {
	err := s.deps.Store.RecordExtractionResult(ctx, p.ContentHash, s.deps.Clock.Now())
	if errors.Is(err, crawler.ErrNotFound) {
		// A root and a content row sharing this hash were both stamped
		// by the earlier entry.
		logger.Debug("hash already marked extracted")
		return nil
	}
	if err != nil {
		tally.StoreErrors++
		logger.Error("mark extracted", zap.Error(err))
		return fmt.Errorf("mark extracted %s: %w", p.ContentHash, err)
	}
	return nil
}
