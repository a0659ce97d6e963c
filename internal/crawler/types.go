// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"time"
)

// InsertOutcome is the result of adding a URL to the frontier.
type InsertOutcome int

// Insert outcomes returned by FrontierStore.InsertIfAbsent.
const (
	Inserted InsertOutcome = iota + 1
	Duplicate
)

// String returns a lowercase label suitable for logs and metrics.
func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// URLRecord is one row of the frontier. Nil timestamps mark the phase as pending.
type URLRecord struct {
	// URL is empty for root rows, which are not uniquely constrained.
	URL              string
	ContentHash      string
	DiscoveredAt     *time.Time
	FetchedAt        *time.Time
	LinksExtractedAt *time.Time
	WantsContent     bool
	FailedAt         *time.Time
	FailureReason    string
	ExtractAttempts  int
}

// Root reports whether the record belongs to the seed page.
func (r URLRecord) Root() bool {
	return r.URL == "" && r.FetchedAt != nil && !r.WantsContent
}

// PendingExtraction identifies a fetched blob that still needs link extraction.
type PendingExtraction struct {
	ContentHash  string
	WantsContent bool
}

// FetchResult is written to the frontier once a blob is safely on disk.
type FetchResult struct {
	URL         string
	ContentHash string
	FetchedAt   time.Time
	// Root rows are inserted fresh on every run instead of updated in place.
	Root bool
}

// FrontierStats summarizes the frontier by phase.
type FrontierStats struct {
	Total          int `json:"total"`
	PendingFetch   int `json:"pending_fetch"`
	Fetched        int `json:"fetched"`
	PendingExtract int `json:"pending_extract"`
	Extracted      int `json:"extracted"`
	Failed         int `json:"failed"`
	RootRows       int `json:"root_rows"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// PageFetchedEvent is published after a page is stored and recorded.
type PageFetchedEvent struct {
	RunID       string    `json:"run_id"`
	SiteID      string    `json:"site_id"`
	URL         string    `json:"url"`
	ContentHash string    `json:"hash"`
	BlobName    string    `json:"blob_name"`
	BlobURI     string    `json:"blob_uri"`
	Root        bool      `json:"root"`
	FetchedAt   time.Time `json:"fetched_at"`
	Bytes       int       `json:"bytes"`
}
