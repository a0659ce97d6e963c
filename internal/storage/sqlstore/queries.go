// Package sqlstore builds the frontier queries shared by the SQL-backed stores.
package sqlstore

import (
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// DefaultTable is the frontier table name.
const DefaultTable = "urls"

// TimestampLayout is the on-disk text format for timestamps in stores without a
// native timestamp type.
const TimestampLayout = "2006-01-02 15:04:05.000000"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Dialect adapts placeholders and value encoding to one database.
type Dialect struct {
	Placeholder sq.PlaceholderFormat
	// Bool encodes the to_be_crawled_for_content flag.
	Bool func(bool) any
	// Time encodes timestamp columns.
	Time func(time.Time) any
}

// SQLite uses ? placeholders with integer flags and text timestamps.
var SQLite = Dialect{
	Placeholder: sq.Question,
	Bool: func(b bool) any {
		if b {
			return 1
		}
		return 0
	},
	Time: func(t time.Time) any { return t.UTC().Format(TimestampLayout) },
}

// Postgres uses $n placeholders with native booleans and timestamps.
var Postgres = Dialect{
	Placeholder: sq.Dollar,
	Bool:        func(b bool) any { return b },
	Time:        func(t time.Time) any { return t.UTC() },
}

// Queries renders every frontier statement for one table and dialect.
type Queries struct {
	table   string
	dialect Dialect
	b       sq.StatementBuilderType
}

// New validates the table name and returns a query set.
func New(table string, dialect Dialect) (*Queries, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Queries{
		table:   table,
		dialect: dialect,
		b:       sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
	}, nil
}

// Table returns the frontier table name.
func (q *Queries) Table() string {
	return q.table
}

// InsertIfAbsent adds a discovered URL, doing nothing when it already exists.
func (q *Queries) InsertIfAbsent(url string, discoveredAt time.Time) (string, []any, error) {
	return q.b.Insert(q.table).
		Columns("url", "date_url_added").
		Values(url, q.dialect.Time(discoveredAt)).
		Suffix("ON CONFLICT (url) DO NOTHING").
		ToSql()
}

// InsertRoot adds a fresh root row; root rows carry no url.
func (q *Queries) InsertRoot(contentHash string, fetchedAt time.Time) (string, []any, error) {
	at := q.dialect.Time(fetchedAt)
	return q.b.Insert(q.table).
		Columns("hash", "date_url_added", "date_downloaded", "to_be_crawled_for_content").
		Values(contentHash, at, at, q.dialect.Bool(false)).
		ToSql()
}

// SelectPendingFetch lists urls that were never fetched and are not failed.
func (q *Queries) SelectPendingFetch() (string, []any, error) {
	return q.b.Select("url").
		From(q.table).
		Where(sq.Eq{"date_downloaded": nil, "date_failed": nil}).
		Where(sq.NotEq{"url": nil}).
		OrderBy("date_url_added", "url").
		ToSql()
}

// SelectPendingExtraction lists fetched blobs not yet crawled for links.
func (q *Queries) SelectPendingExtraction() (string, []any, error) {
	return q.b.Select("hash", "to_be_crawled_for_content").
		Distinct().
		From(q.table).
		Where(sq.NotEq{"date_downloaded": nil, "hash": nil}).
		Where(sq.Eq{"date_crawled_for_links": nil}).
		OrderBy("hash").
		ToSql()
}

// RecordFetchResult stamps a pending record with its content hash.
func (q *Queries) RecordFetchResult(url, contentHash string, fetchedAt time.Time) (string, []any, error) {
	return q.b.Update(q.table).
		Set("hash", contentHash).
		Set("date_downloaded", q.dialect.Time(fetchedAt)).
		Set("to_be_crawled_for_content", q.dialect.Bool(true)).
		Where(sq.Eq{"url": url, "date_downloaded": nil}).
		ToSql()
}

// RecordExtractionResult stamps every pending row sharing a content hash.
func (q *Queries) RecordExtractionResult(contentHash string, extractedAt time.Time) (string, []any, error) {
	return q.b.Update(q.table).
		Set("date_crawled_for_links", q.dialect.Time(extractedAt)).
		Where(sq.Eq{"hash": contentHash, "date_crawled_for_links": nil}).
		Where(sq.NotEq{"date_downloaded": nil}).
		ToSql()
}

// RecordFetchFailure moves a pending record into the failed state.
func (q *Queries) RecordFetchFailure(url, reason string, failedAt time.Time) (string, []any, error) {
	return q.b.Update(q.table).
		Set("date_failed", q.dialect.Time(failedAt)).
		Set("failure_reason", reason).
		Where(sq.Eq{"url": url, "date_downloaded": nil, "date_failed": nil}).
		ToSql()
}

// BumpExtractAttempts increments the attempt counter of pending rows for a hash.
func (q *Queries) BumpExtractAttempts(contentHash string) (string, []any, error) {
	return q.b.Update(q.table).
		Set("extract_attempts", sq.Expr("extract_attempts + 1")).
		Where(sq.Eq{"hash": contentHash, "date_crawled_for_links": nil}).
		ToSql()
}

// ExtractAttempts reads the highest attempt count among pending rows for a hash.
func (q *Queries) ExtractAttempts(contentHash string) (string, []any, error) {
	return q.b.Select("COALESCE(MAX(extract_attempts), 0)").
		From(q.table).
		Where(sq.Eq{"hash": contentHash, "date_crawled_for_links": nil}).
		ToSql()
}

// CountAll counts every row, root rows included.
func (q *Queries) CountAll() (string, []any, error) {
	return q.b.Select("COUNT(*)").From(q.table).ToSql()
}

// Stats aggregates the frontier by phase in one scan.
func (q *Queries) Stats() (string, []any, error) {
	return q.b.Select(
		"COUNT(*)",
		"COUNT(CASE WHEN url IS NOT NULL AND date_downloaded IS NULL AND date_failed IS NULL THEN 1 END)",
		"COUNT(date_downloaded)",
		"COUNT(CASE WHEN date_downloaded IS NOT NULL AND date_crawled_for_links IS NULL THEN 1 END)",
		"COUNT(date_crawled_for_links)",
		"COUNT(date_failed)",
		"COUNT(CASE WHEN url IS NULL THEN 1 END)",
	).From(q.table).ToSql()
}

// SelectRecords lists every row in insertion order.
func (q *Queries) SelectRecords() (string, []any, error) {
	return q.b.Select(
		"url",
		"hash",
		"date_url_added",
		"date_downloaded",
		"date_crawled_for_links",
		"to_be_crawled_for_content",
		"date_failed",
		"failure_reason",
		"extract_attempts",
	).From(q.table).OrderBy("id").ToSql()
}
