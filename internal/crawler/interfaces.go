package crawler

import (
	"context"
	"time"
)

// FrontierStore is the durable record of every discovered URL. Every update is
// scoped to records whose phase timestamp is still unset.
type FrontierStore interface {
	InsertIfAbsent(ctx context.Context, url string, discoveredAt time.Time) (InsertOutcome, error)
	SelectPendingFetch(ctx context.Context) ([]string, error)
	SelectPendingExtraction(ctx context.Context) ([]PendingExtraction, error)
	RecordFetchResult(ctx context.Context, result FetchResult) error
	RecordExtractionResult(ctx context.Context, contentHash string, extractedAt time.Time) error
	// RecordFetchFailure moves a record into the terminal failed state.
	RecordFetchFailure(ctx context.Context, url string, reason string, failedAt time.Time) error
	// RecordExtractionFailure bumps and returns the extraction attempt count for a hash.
	RecordExtractionFailure(ctx context.Context, contentHash string) (int, error)
	CountAll(ctx context.Context) (int, error)
	Stats(ctx context.Context) (FrontierStats, error)
	Close() error
}

// BlobStore writes and reads content-addressed artifacts.
type BlobStore interface {
	// Put stores data under name and returns a URI describing its location.
	Put(ctx context.Context, name string, data []byte) (string, error)
	Get(ctx context.Context, name string) ([]byte, error)
}

// Codec compresses blobs before they are persisted.
type Codec interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Document is a parsed HTML page.
type Document interface {
	// SelectAnchors returns the href of every anchor whose href starts with prefix.
	SelectAnchors(prefix string) []string
}

// Parser turns raw bytes into a queryable Document.
type Parser interface {
	Parse(data []byte) (Document, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Limiter paces outgoing requests.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes digests for content addressing.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper waits between orchestrator passes.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
