// Package postgres provides a Postgres-backed frontier store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/corpus-crawler/internal/crawler"
	"github.com/JakeFAU/corpus-crawler/internal/storage/sqlstore"
)

// Config controls the Postgres connection pool used for the frontier.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// FrontierStore implements crawler.FrontierStore on Postgres.
type FrontierStore struct {
	pool pool
	q    *sqlstore.Queries
}

var _ crawler.FrontierStore = (*FrontierStore)(nil)

// NewFrontierStore connects to Postgres and ensures the frontier table exists.
func NewFrontierStore(ctx context.Context, cfg Config) (*FrontierStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	q, err := sqlstore.New(cfg.Table, sqlstore.Postgres)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &FrontierStore{pool: p, q: q}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewFrontierStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewFrontierStoreWithPool(p pool, table string) (*FrontierStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	q, err := sqlstore.New(table, sqlstore.Postgres)
	if err != nil {
		return nil, err
	}
	return &FrontierStore{pool: p, q: q}, nil
}

// EnsureSchema creates the frontier table and its hash index.
func (s *FrontierStore) EnsureSchema(ctx context.Context) error {
	table := s.q.Table()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	url TEXT UNIQUE,
	hash TEXT,
	date_url_added TIMESTAMPTZ,
	date_downloaded TIMESTAMPTZ,
	date_crawled_for_links TIMESTAMPTZ,
	to_be_crawled_for_content BOOLEAN,
	date_failed TIMESTAMPTZ,
	failure_reason TEXT,
	extract_attempts INTEGER NOT NULL DEFAULT 0
)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_hash ON %[1]s (hash)`, table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *FrontierStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// InsertIfAbsent adds url unless it already exists.
func (s *FrontierStore) InsertIfAbsent(ctx context.Context, url string, discoveredAt time.Time) (crawler.InsertOutcome, error) {
	if url == "" {
		return 0, fmt.Errorf("insert url: %w", crawler.ErrInvalidRecord)
	}
	query, args, err := s.q.InsertIfAbsent(url, discoveredAt)
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.Duplicate, nil
	}
	return crawler.Inserted, nil
}

// SelectPendingFetch lists urls awaiting a fetch.
func (s *FrontierStore) SelectPendingFetch(ctx context.Context) ([]string, error) {
	query, args, err := s.q.SelectPendingFetch()
	if err != nil {
		return nil, fmt.Errorf("build pending fetch: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending fetch: %w", err)
	}
	urls, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect pending fetch: %w", err)
	}
	return urls, nil
}

// SelectPendingExtraction lists distinct hashes awaiting link extraction.
func (s *FrontierStore) SelectPendingExtraction(ctx context.Context) ([]crawler.PendingExtraction, error) {
	query, args, err := s.q.SelectPendingExtraction()
	if err != nil {
		return nil, fmt.Errorf("build pending extraction: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending extraction: %w", err)
	}
	pending, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (crawler.PendingExtraction, error) {
		var (
			hash  string
			wants pgtype.Bool
		)
		if err := row.Scan(&hash, &wants); err != nil {
			return crawler.PendingExtraction{}, err
		}
		return crawler.PendingExtraction{ContentHash: hash, WantsContent: wants.Valid && wants.Bool}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect pending extraction: %w", err)
	}
	return pending, nil
}

// RecordFetchResult stamps a fetched record, or inserts a new root row.
func (s *FrontierStore) RecordFetchResult(ctx context.Context, result crawler.FetchResult) error {
	if result.ContentHash == "" {
		return fmt.Errorf("record fetch: %w", crawler.ErrInvalidRecord)
	}
	if result.Root {
		query, args, err := s.q.InsertRoot(result.ContentHash, result.FetchedAt)
		if err != nil {
			return fmt.Errorf("build root insert: %w", err)
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
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
func (s *FrontierStore) RecordExtractionResult(ctx context.Context, contentHash string, extractedAt time.Time) error {
	query, args, err := s.q.RecordExtractionResult(contentHash, extractedAt)
	if err != nil {
		return fmt.Errorf("build extraction update: %w", err)
	}
	return s.execOne(ctx, query, args, contentHash)
}

// RecordFetchFailure marks a pending url as permanently failed.
func (s *FrontierStore) RecordFetchFailure(ctx context.Context, url, reason string, failedAt time.Time) error {
	query, args, err := s.q.RecordFetchFailure(url, reason, failedAt)
	if err != nil {
		return fmt.Errorf("build failure update: %w", err)
	}
	return s.execOne(ctx, query, args, url)
}

// RecordExtractionFailure increments and returns the attempt count for contentHash.
func (s *FrontierStore) RecordExtractionFailure(ctx context.Context, contentHash string) (int, error) {
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
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("query attempts: %w", err)
	}
	return attempts, nil
}

// CountAll returns the number of rows in the frontier.
func (s *FrontierStore) CountAll(ctx context.Context) (int, error) {
	query, args, err := s.q.CountAll()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count urls: %w", err)
	}
	return n, nil
}

// Stats summarizes the frontier by phase.
func (s *FrontierStore) Stats(ctx context.Context) (crawler.FrontierStats, error) {
	query, args, err := s.q.Stats()
	if err != nil {
		return crawler.FrontierStats{}, fmt.Errorf("build stats: %w", err)
	}
	var st crawler.FrontierStats
	err = s.pool.QueryRow(ctx, query, args...).Scan(
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

func (s *FrontierStore) execOne(ctx context.Context, query string, args []any, key string) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s: %w", key, crawler.ErrNotFound)
	}
	return nil
}
