package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/corpus-crawler/internal/crawler"
	goqueryparser "github.com/JakeFAU/corpus-crawler/internal/parser/goquery"
	"github.com/JakeFAU/corpus-crawler/internal/report"
)

const rootPage = `<html><body>
<a href="/view/1">one</a>
<a href="/view/2?ref=home">two</a>
<a href="/about">about</a>
<a href="/view/1#top">one again</a>
</body></html>`

func TestExtractStageAddsLinksFromRoot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.fetcher.page(testBase, rootPage)

	var fetchTally report.FetchTally
	require.NoError(t, env.fetchStage(t, FetchConfig{}).FetchRoot(ctx, testBase, &fetchTally))

	stage := env.extractStage(t, ExtractConfig{LinkPrefix: "/view/"})
	tally, err := stage.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.ExtractTally{
		Pages:      1,
		Crawled:    1,
		LinksAdded: 2,
		Duplicates: 1,
	}, tally)

	pending, err := env.store.SelectPendingFetch(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{testBase + "/view/1", testBase + "/view/2"}, pending)

	extract, err := env.store.SelectPendingExtraction(ctx)
	require.NoError(t, err)
	assert.Empty(t, extract)
}

func TestExtractStageFullCrawl(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.fetcher.
		page(testBase, rootPage).
		page(testBase+"/view/1", `<a href="/view/2">2</a><a href="/view/3">3</a>`).
		page(testBase+"/view/2", `<p>no links here</p>`).
		page(testBase+"/view/3", `<a href="/view/1">back</a>`)

	fetch := env.fetchStage(t, FetchConfig{})
	extract := env.extractStage(t, ExtractConfig{LinkPrefix: "/view/"})

	var tally report.FetchTally
	require.NoError(t, fetch.FetchRoot(ctx, testBase, &tally))
	for round := 0; round < 4; round++ {
		_, err := extract.Run(ctx)
		require.NoError(t, err)
		pending, err := env.store.SelectPendingFetch(ctx)
		require.NoError(t, err)
		if len(pending) == 0 {
			break
		}
		_, err = fetch.RunPass(ctx, pending)
		require.NoError(t, err)
	}

	stats, err := env.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, crawler.FrontierStats{
		Total:     4,
		Fetched:   4,
		Extracted: 4,
		RootRows:  1,
	}, stats)
	for _, u := range []string{"/view/1", "/view/2", "/view/3"} {
		assert.Equal(t, 1, env.fetcher.callCount(testBase+u), u)
	}
}

func TestExtractStageSharedRootAndContentHash(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.fetcher.page(testBase, rootPage).page(testBase+"/view/1", rootPage)

	fetch := env.fetchStage(t, FetchConfig{})
	var fetchTally report.FetchTally
	require.NoError(t, fetch.FetchRoot(ctx, testBase, &fetchTally))
	env.seed(t, testBase+"/view/1")
	_, err := fetch.RunPass(ctx, []string{testBase + "/view/1"})
	require.NoError(t, err)

	pending, err := env.store.SelectPendingExtraction(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	tally, err := env.extractStage(t, ExtractConfig{LinkPrefix: "/view/"}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.ExtractTally{
		Pages:      2,
		Crawled:    2,
		LinksAdded: 1,
		Duplicates: 5,
	}, tally)

	stats, err := env.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Extracted)
	assert.Zero(t, stats.PendingExtract)
}

func TestExtractStageRetriesUnreadableBlob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	url := testBase + "/view/1"
	env.seed(t, url)
	require.NoError(t, env.store.RecordFetchResult(ctx, crawler.FetchResult{
		URL: url, ContentHash: "deadbeef", FetchedAt: env.clock.Now(),
	}))
	// Not bzip2, so decoding fails every time.
	_, err := env.blobs.Put(ctx, crawler.BlobName(testSite, "deadbeef", false), []byte("garbage"))
	require.NoError(t, err)

	stage := env.extractStage(t, ExtractConfig{MaxAttempts: 2})

	tally, err := stage.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.ParseErrors)
	assert.Zero(t, tally.NoLinks)
	pending, err := env.store.SelectPendingExtraction(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	tally, err = stage.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.ParseErrors)
	assert.Equal(t, 1, tally.NoLinks)
	pending, err = env.store.SelectPendingExtraction(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, 2, env.store.Records()[0].ExtractAttempts)
}

func TestExtractStageMissingBlob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	url := testBase + "/view/1"
	env.seed(t, url)
	require.NoError(t, env.store.RecordFetchResult(ctx, crawler.FetchResult{
		URL: url, ContentHash: "missing", FetchedAt: env.clock.Now(),
	}))

	stage := env.extractStage(t, ExtractConfig{MaxAttempts: 1})
	var tally report.ExtractTally
	err := stage.ExtractOne(ctx, crawler.PendingExtraction{ContentHash: "missing", WantsContent: true}, &tally)
	require.ErrorIs(t, err, crawler.ErrParse)
	require.ErrorIs(t, err, crawler.ErrNotFound)
	assert.Equal(t, 1, tally.NoLinks)
}

type failingInserts struct {
	crawler.FrontierStore
}

func (failingInserts) InsertIfAbsent(context.Context, string, time.Time) (crawler.InsertOutcome, error) {
	return 0, errors.New("database is locked")
}

func TestExtractStageCountsStoreErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.fetcher.page(testBase, rootPage)
	var fetchTally report.FetchTally
	require.NoError(t, env.fetchStage(t, FetchConfig{}).FetchRoot(ctx, testBase, &fetchTally))

	stage, err := NewExtractStage(ExtractDeps{
		Store:  failingInserts{FrontierStore: env.store},
		Blobs:  env.blobs,
		Codec:  env.codec,
		Parser: goqueryparser.New(),
		Clock:  env.clock,
	}, ExtractConfig{SiteID: testSite, BaseURL: testBase, LinkPrefix: "/view/"}, nil, nil)
	require.NoError(t, err)

	tally, err := stage.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, tally.StoreErrors)
	assert.Zero(t, tally.LinksAdded)
}

func TestExtractStageNoPendingWork(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	tally, err := env.extractStage(t, ExtractConfig{}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, tally.Pages)
	assert.Contains(t, env.out.String(), "There are no links to be added.")
}
