// Package sqlite provides the default SQLite-backed frontier store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/corpus-crawler/internal/crawler"
	"github.com/JakeFAU/corpus-crawler/internal/storage/sqlstore"
)

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so readers do not block the writer.
	EnableWAL bool

	// Table overrides the frontier table name.
	Table string
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
		Table:             sqlstore.DefaultTable,
	}
}

// Store implements crawler.FrontierStore on a single SQLite file.
type Store struct {
	db   *sql.DB
	q    *sqlstore.Queries
	path string
}

var _ crawler.FrontierStore = (*Store)(nil)

// Open opens or creates the frontier database at path and ensures the schema.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	q, err := sqlstore.New(opts.Table, sqlstore.SQLite)
	if err != nil {
		return nil, err
	}

	var dsn string
	if opts.CreateIfNotExists {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = path + "?mode=rwc"
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("database not found at %s: %w", path, err)
		}
		dsn = path + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: the frontier has exactly one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, q: q, path: path}

	ctx := context.Background()
	if opts.EnableWAL {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := s.addMissingColumns(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate table: %w", err)
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

func (s *Store) createTables(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT UNIQUE,
		hash TEXT,
		date_url_added TEXT,
		date_downloaded TEXT,
		date_crawled_for_links TEXT,
		to_be_crawled_for_content INTEGER,
		date_failed TEXT,
		failure_reason TEXT,
		extract_attempts INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_%[1]s_hash ON %[1]s(hash);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_downloaded ON %[1]s(date_downloaded);
	`, s.q.Table())

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// addMissingColumns upgrades tables created before failure tracking existed.
func (s *Store) addMissingColumns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", s.q.Table()))
	if err != nil {
		return err
	}
	have := map[string]bool{}
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			_ = rows.Close()
			return err
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	if err := rows.Close(); err != nil {
		return err
	}

	columns := []struct{ name, ddl string }{
		{"date_failed", "date_failed TEXT"},
		{"failure_reason", "failure_reason TEXT"},
		{"extract_attempts", "extract_attempts INTEGER NOT NULL DEFAULT 0"},
	}
	for _, col := range columns {
		if have[col.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", s.q.Table(), col.ddl)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}
	return nil
}

// InsertIfAbsent adds url to the frontier unless it is already known.
func (s *Store) InsertIfAbsent(ctx context.Context, url string, discoveredAt time.Time) (crawler.InsertOutcome, error) {
	if url == "" {
		return 0, fmt.Errorf("insert url: %w", crawler.ErrInvalidRecord)
	}
	query, args, err := s.q.InsertIfAbsent(url, discoveredAt)
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert url: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert rows affected: %w", err)
	}
	if n == 0 {
		return crawler.Duplicate, nil
	}
	return crawler.Inserted, nil
}

// SelectPendingFetch returns every url that still needs fetching.
func (s *Store) SelectPendingFetch(ctx context.Context) ([]string, error) {
	query, args, err := s.q.SelectPendingFetch()
	if err != nil {
		return nil, fmt.Errorf("build pending fetch: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending fetch: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return urls, nil
}

// SelectPendingExtraction returns fetched blobs not yet crawled for links.
func (s *Store) SelectPendingExtraction(ctx context.Context) ([]crawler.PendingExtraction, error) {
	query, args, err := s.q.SelectPendingExtraction()
	if err != nil {
		return nil, fmt.Errorf("build pending extraction: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending extraction: %w", err)
	}
	defer rows.Close()

	var pending []crawler.PendingExtraction
	for rows.Next() {
		var (
			hash  string
			wants sql.NullInt64
		)
		if err := rows.Scan(&hash, &wants); err != nil {
			return nil, fmt.Errorf("scan pending extraction: %w", err)
		}
		pending = append(pending, crawler.PendingExtraction{
			ContentHash:  hash,
			WantsContent: wants.Valid && wants.Int64 != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return pending, nil
}

// RecordFetchResult stamps a fetched record, or inserts a new root row.
func (s *Store) RecordFetchResult(ctx context.Context, result crawler.FetchResult) error {
	if result.ContentHash == "" {
		return fmt.Errorf("record fetch: %w", crawler.ErrInvalidRecord)
	}
	if result.Root {
		query, args, err := s.q.InsertRoot(result.ContentHash, result.FetchedAt)
		if err != nil {
			return fmt.Errorf("build root insert: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert root row: %w", err)
		}
		return nil
	}
	query, args, err := s.q.RecordFetchResult(result.URL, result.ContentHash, result.FetchedAt)
	if err != nil {
		return fmt.Errorf("build fetch update: %w", err)
	}
	return s.execOne(ctx, query, args, result.URL)
}

// RecordExtractionResult marks every pending row for contentHash as extracted.
func (s *Store) RecordExtractionResult(ctx context.Context, contentHash string, extractedAt time.Time) error {
	query, args, err := s.q.RecordExtractionResult(contentHash, extractedAt)
	if err != nil {
		return fmt.Errorf("build extraction update: %w", err)
	}
	return s.execOne(ctx, query, args, contentHash)
}

// RecordFetchFailure marks a pending url as permanently failed.
func (s *Store) RecordFetchFailure(ctx context.Context, url, reason string, failedAt time.Time) error {
	query, args, err := s.q.RecordFetchFailure(url, reason, failedAt)
	if err != nil {
		return fmt.Errorf("build failure update: %w", err)
	}
	return s.execOne(ctx, query, args, url)
}

// RecordExtractionFailure increments and returns the attempt count for contentHash.
func (s *Store) RecordExtractionFailure(ctx context.Context, contentHash string) (int, error) {
	query, args, err := s.q.BumpExtractAttempts(contentHash)
	if err != nil {
		return 0, fmt.Errorf("build attempts update: %w", err)
	}
	if err := s.execOne(ctx, query, args, contentHash); err != nil {
		return 0, err
	}
	query, args, err = s.q.ExtractAttempts(contentHash)
	if err != nil {
		return 0, fmt.Errorf("build attempts query: %w", err)
	}
	var attempts int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("query attempts: %w", err)
	}
	return attempts, nil
}

// CountAll returns the number of rows in the frontier.
func (s *Store) CountAll(ctx context.Context) (int, error) {
	query, args, err := s.q.CountAll()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count urls: %w", err)
	}
	return n, nil
}

// Stats summarizes the frontier by phase.
func (s *Store) Stats(ctx context.Context) (crawler.FrontierStats, error) {
	query, args, err := s.q.Stats()
	if err != nil {
		return crawler.FrontierStats{}, fmt.Errorf("build stats: %w", err)
	}
	var st crawler.FrontierStats
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&st.Total,
		&st.PendingFetch,
		&st.Fetched,
		&st.PendingExtract,
		&st.Extracted,
		&st.Failed,
		&st.RootRows,
	)
	if err != nil {
		return crawler.FrontierStats{}, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

// Records returns every row in insertion order.
func (s *Store) Records(ctx context.Context) ([]crawler.URLRecord, error) {
	query, args, err := s.q.SelectRecords()
	if err != nil {
		return nil, fmt.Errorf("build records: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []crawler.URLRecord
	for rows.Next() {
		var (
			url, hash, reason                    sql.NullString
			added, downloaded, extracted, failed sql.NullString
			wants                                sql.NullInt64
			attempts                             int
		)
		if err := rows.Scan(&url, &hash, &added, &downloaded, &extracted, &wants, &failed, &reason, &attempts); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec := crawler.URLRecord{
			URL:             url.String,
			ContentHash:     hash.String,
			WantsContent:    wants.Valid && wants.Int64 != 0,
			FailureReason:   reason.String,
			ExtractAttempts: attempts,
		}
		if rec.DiscoveredAt, err = parseTimestamp(added); err != nil {
			return nil, err
		}
		if rec.FetchedAt, err = parseTimestamp(downloaded); err != nil {
			return nil, err
		}
		if rec.LinksExtractedAt, err = parseTimestamp(extracted); err != nil {
			return nil, err
		}
		if rec.FailedAt, err = parseTimestamp(failed); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func (s *Store) execOne(ctx context.Context, query string, args []any, key string) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update %s: %w", key, crawler.ErrNotFound)
	}
	return nil
}

func parseTimestamp(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(sqlstore.TimestampLayout, v.String, time.UTC)
	if err != nil {
		return nil, errors.Join(crawler.ErrInvalidRecord, fmt.Errorf("parse timestamp %q: %w", v.String, err))
	}
	return &t, nil
}
