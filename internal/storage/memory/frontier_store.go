package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/corpus-crawler/internal/crawler"
)

// FrontierStore keeps the URL frontier in a slice guarded by a mutex.
type FrontierStore struct {
	mu      sync.RWMutex
	records []crawler.URLRecord
	byURL   map[string]int
}

var _ crawler.FrontierStore = (*FrontierStore)(nil)

// NewFrontierStore constructs an empty FrontierStore.
func NewFrontierStore() *FrontierStore {
	return &FrontierStore{byURL: make(map[string]int)}
}

// InsertIfAbsent adds url unless it is already present.
func (s *FrontierStore) InsertIfAbsent(_ context.Context, url string, discoveredAt time.Time) (crawler.InsertOutcome, error) {
	if url == "" {
		return 0, fmt.Errorf("insert url: %w", crawler.ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byURL[url]; ok {
		return crawler.Duplicate, nil
	}
	s.byURL[url] = len(s.records)
	s.records = append(s.records, crawler.URLRecord{
		URL:          url,
		DiscoveredAt: pointerTime(discoveredAt),
	})
	return crawler.Inserted, nil
}

// SelectPendingFetch lists unfetched, non-failed urls by discovery time.
func (s *FrontierStore) SelectPendingFetch(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []crawler.URLRecord
	for _, rec := range s.records {
		if rec.URL != "" && rec.FetchedAt == nil && rec.FailedAt == nil {
			pending = append(pending, rec)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if !a.DiscoveredAt.Equal(*b.DiscoveredAt) {
			return a.DiscoveredAt.Before(*b.DiscoveredAt)
		}
		return a.URL < b.URL
	})
	urls := make([]string, 0, len(pending))
	for _, rec := range pending {
		urls = append(urls, rec.URL)
	}
	return urls, nil
}

// SelectPendingExtraction lists distinct fetched hashes awaiting extraction.
func (s *FrontierStore) SelectPendingExtraction(_ context.Context) ([]crawler.PendingExtraction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[crawler.PendingExtraction]struct{})
	var out []crawler.PendingExtraction
	for _, rec := range s.records {
		if rec.FetchedAt == nil || rec.LinksExtractedAt != nil || rec.ContentHash == "" {
			continue
		}
		p := crawler.PendingExtraction{ContentHash: rec.ContentHash, WantsContent: rec.WantsContent}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ContentHash < out[j].ContentHash
	})
	return out, nil
}

// RecordFetchResult stamps a pending record or appends a root row.
func (s *FrontierStore) RecordFetchResult(_ context.Context, result crawler.FetchResult) error {
	if result.ContentHash == "" {
		return fmt.Errorf("record fetch: %w", crawler.ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if result.Root {
		s.records = append(s.records, crawler.URLRecord{
			ContentHash:  result.ContentHash,
			DiscoveredAt: pointerTime(result.FetchedAt),
			FetchedAt:    pointerTime(result.FetchedAt),
		})
		return nil
	}
	idx, ok := s.byURL[result.URL]
	if !ok || s.records[idx].FetchedAt != nil {
		return fmt.Errorf("update %s: %w", result.URL, crawler.ErrNotFound)
	}
	rec := &s.records[idx]
	rec.ContentHash = result.ContentHash
	rec.FetchedAt = pointerTime(result.FetchedAt)
	rec.WantsContent = true
	return nil
}

// RecordExtractionResult stamps every pending row for contentHash.
func (s *FrontierStore) RecordExtractionResult(_ context.Context, contentHash string, extractedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for i := range s.records {
		rec := &s.records[i]
		if rec.ContentHash == contentHash && rec.FetchedAt != nil && rec.LinksExtractedAt == nil {
			rec.LinksExtractedAt = pointerTime(extractedAt)
			updated++
		}
	}
	if updated == 0 {
		return fmt.Errorf("update %s: %w", contentHash, crawler.ErrNotFound)
	}
	return nil
}

// RecordFetchFailure marks a pending url as failed.
func (s *FrontierStore) RecordFetchFailure(_ context.Context, url, reason string, failedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byURL[url]
	if !ok || s.records[idx].FetchedAt != nil || s.records[idx].FailedAt != nil {
		return fmt.Errorf("update %s: %w", url, crawler.ErrNotFound)
	}
	s.records[idx].FailedAt = pointerTime(failedAt)
	s.records[idx].FailureReason = reason
	return nil
}

// RecordExtractionFailure bumps the attempt counter for contentHash.
func (s *FrontierStore) RecordExtractionFailure(_ context.Context, contentHash string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempts := 0
	for i := range s.records {
		rec := &s.records[i]
		if rec.ContentHash == contentHash && rec.LinksExtractedAt == nil {
			rec.ExtractAttempts++
			attempts = max(attempts, rec.ExtractAttempts)
		}
	}
	if attempts == 0 {
		return 0, fmt.Errorf("update %s: %w", contentHash, crawler.ErrNotFound)
	}
	return attempts, nil
}

// CountAll returns the number of rows.
func (s *FrontierStore) CountAll(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Stats summarizes the frontier by phase.
func (s *FrontierStore) Stats(_ context.Context) (crawler.FrontierStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := crawler.FrontierStats{Total: len(s.records)}
	for _, rec := range s.records {
		switch {
		case rec.Root():
			st.RootRows++
		case rec.FetchedAt == nil && rec.FailedAt == nil:
			st.PendingFetch++
		}
		if rec.FetchedAt != nil {
			st.Fetched++
			if rec.LinksExtractedAt == nil {
				st.PendingExtract++
			}
		}
		if rec.LinksExtractedAt != nil {
			st.Extracted++
		}
		if rec.FailedAt != nil {
			st.Failed++
		}
	}
	return st, nil
}

// Records returns a copy of every row in insertion order.
func (s *FrontierStore) Records() []crawler.URLRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.URLRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Close is a no-op.
func (s *FrontierStore) Close() error {
	return nil
}

func pointerTime(t time.Time) *time.Time {
	v := t
	return &v
}
