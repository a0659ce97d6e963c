package sqlstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidTable(t *testing.T) {
	t.Parallel()

	_, err := New("urls; DROP TABLE urls", SQLite)
	require.Error(t, err)

	q, err := New("", SQLite)
	require.NoError(t, err)
	require.Equal(t, DefaultTable, q.Table())
}

func TestSelectPendingFetchIsPhaseScoped(t *testing.T) {
	t.Parallel()

	q, err := New("urls", SQLite)
	require.NoError(t, err)

	query, args, err := q.SelectPendingFetch()
	require.NoError(t, err)
	require.Empty(t, args)
	require.Contains(t, query, "SELECT url FROM urls")
	require.Contains(t, query, "date_downloaded IS NULL")
	require.Contains(t, query, "date_failed IS NULL")
	require.Contains(t, query, "url IS NOT NULL")
}

func TestSelectPendingExtractionIsPhaseScoped(t *testing.T) {
	t.Parallel()

	q, err := New("urls", SQLite)
	require.NoError(t, err)

	query, _, err := q.SelectPendingExtraction()
	require.NoError(t, err)
	require.Contains(t, query, "SELECT DISTINCT hash, to_be_crawled_for_content")
	require.Contains(t, query, "date_downloaded IS NOT NULL")
	require.Contains(t, query, "date_crawled_for_links IS NULL")
}

func TestRecordFetchResultGuardsMonotonicity(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	q, err := New("urls", Postgres)
	require.NoError(t, err)
	query, args, err := q.RecordFetchResult("https://example.com/view/1", "abc", at)
	require.NoError(t, err)
	require.Contains(t, query, "UPDATE urls SET hash = $1, date_downloaded = $2, to_be_crawled_for_content = $3")
	require.Contains(t, query, "date_downloaded IS NULL")
	require.Equal(t, []any{"abc", at, true, "https://example.com/view/1"}, args)

	lite, err := New("urls", SQLite)
	require.NoError(t, err)
	_, args, err = lite.RecordFetchResult("https://example.com/view/1", "abc", at)
	require.NoError(t, err)
	require.Equal(t, []any{"abc", "2024-03-01 12:00:00.000000", 1, "https://example.com/view/1"}, args)
}

func TestInsertIfAbsentUsesConflictClause(t *testing.T) {
	t.Parallel()

	q, err := New("urls", SQLite)
	require.NoError(t, err)
	query, args, err := q.InsertIfAbsent("https://example.com/view/1", time.Unix(0, 0))
	require.NoError(t, err)
	require.Contains(t, query, "INSERT INTO urls (url,date_url_added) VALUES (?,?)")
	require.Contains(t, query, "ON CONFLICT (url) DO NOTHING")
	require.Len(t, args, 2)
}

func TestInsertRootLeavesURLUnset(t *testing.T) {
	t.Parallel()

	q, err := New("urls", SQLite)
	require.NoError(t, err)
	query, args, err := q.InsertRoot("abc", time.Unix(0, 0))
	require.NoError(t, err)
	require.NotContains(t, query, "(url")
	require.Equal(t, 0, args[3])
}

func TestBumpExtractAttempts(t *testing.T) {
	t.Parallel()

	q, err := New("urls", SQLite)
	require.NoError(t, err)
	query, args, err := q.BumpExtractAttempts("abc")
	require.NoError(t, err)
	require.Contains(t, query, "extract_attempts = extract_attempts + 1")
	require.Equal(t, []any{"abc"}, args)
}
