package worker

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	bzip2codec "github.com/JakeFAU/corpus-crawler/internal/compress/bzip2"
	"github.com/JakeFAU/corpus-crawler/internal/crawler"
	"github.com/JakeFAU/corpus-crawler/internal/hash"
	goqueryparser "github.com/JakeFAU/corpus-crawler/internal/parser/goquery"
	"github.com/JakeFAU/corpus-crawler/internal/report"
	"github.com/JakeFAU/corpus-crawler/internal/storage/memory"
)

const (
	testSite = "example"
	testBase = "http://example.com"
)

// scriptedFetcher replays a queue of results per url; the last entry repeats.
type scriptedFetcher struct {
	mu      sync.Mutex
	scripts map[string][]fetchStep
	calls   map[string]int
}

type fetchStep struct {
	body string
	err  error
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{scripts: make(map[string][]fetchStep), calls: make(map[string]int)}
}

func (f *scriptedFetcher) page(url, body string) *scriptedFetcher {
	f.scripts[url] = append(f.scripts[url], fetchStep{body: body})
	return f
}

func (f *scriptedFetcher) fail(url string, err error) *scriptedFetcher {
	f.scripts[url] = append(f.scripts[url], fetchStep{err: err})
	return f
}

func (f *scriptedFetcher) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	if err := ctx.Err(); err != nil {
		return crawler.FetchResponse{}, crawler.NewFetchError(req.URL, 0, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls[req.URL]
	f.calls[req.URL]++
	steps, ok := f.scripts[req.URL]
	if !ok {
		return crawler.FetchResponse{}, crawler.NewFetchError(req.URL, 404, errors.New("Not Found"))
	}
	step := steps[min(n, len(steps)-1)]
	if step.err != nil {
		return crawler.FetchResponse{}, step.err
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(step.body)}, nil
}

func (f *scriptedFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type recordingSleeper struct {
	delays []time.Duration
	err    error
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return s.err
}

type failingBlobs struct {
	crawler.BlobStore
	err error
}

func (f failingBlobs) Put(context.Context, string, []byte) (string, error) {
	return "", f.err
}

type testEnv struct {
	store    *memory.FrontierStore
	blobs    *memory.BlobStore
	fetcher  *scriptedFetcher
	codec    *bzip2codec.Codec
	clock    *fixedClock
	out      *bytes.Buffer
	progress *report.Progress
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	codec, err := bzip2codec.New(0)
	require.NoError(t, err)
	out := &bytes.Buffer{}
	return &testEnv{
		store:    memory.NewFrontierStore(),
		blobs:    memory.NewBlobStore(),
		fetcher:  newScriptedFetcher(),
		codec:    codec,
		clock:    &fixedClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		out:      out,
		progress: report.NewProgress(out),
	}
}

func (e *testEnv) fetchDeps(t *testing.T) FetchDeps {
	t.Helper()
	hasher, err := hash.New("md5")
	require.NoError(t, err)
	return FetchDeps{
		Store:   e.store,
		Fetcher: e.fetcher,
		Hasher:  hasher,
		Codec:   e.codec,
		Blobs:   e.blobs,
		Clock:   e.clock,
	}
}

func (e *testEnv) fetchStage(t *testing.T, cfg FetchConfig) *FetchStage {
	t.Helper()
	if cfg.SiteID == "" {
		cfg.SiteID = testSite
	}
	stage, err := NewFetchStage(e.fetchDeps(t), cfg, e.progress, nil)
	require.NoError(t, err)
	return stage
}

func (e *testEnv) extractStage(t *testing.T, cfg ExtractConfig) *ExtractStage {
	t.Helper()
	if cfg.SiteID == "" {
		cfg.SiteID = testSite
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = testBase
	}
	stage, err := NewExtractStage(ExtractDeps{
		Store:  e.store,
		Blobs:  e.blobs,
		Codec:  e.codec,
		Parser: goqueryparser.New(),
		Clock:  e.clock,
	}, cfg, e.progress, nil)
	require.NoError(t, err)
	return stage
}

func (e *testEnv) seed(t *testing.T, urls ...string) {
	t.Helper()
	for _, u := range urls {
		_, err := e.store.InsertIfAbsent(context.Background(), u, e.clock.Now())
		require.NoError(t, err)
	}
}

func md5Hex(t *testing.T, body string) string {
	t.Helper()
	hasher, err := hash.New("md5")
	require.NoError(t, err)
	sum, err := hasher.Hash([]byte(body))
	require.NoError(t, err)
	return sum
}

func transient(url string) error {
	return crawler.NewFetchError(url, 503, errors.New("Service Unavailable"))
}
