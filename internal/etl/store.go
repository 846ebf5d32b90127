// Package etl loads completed fixture records into Postgres for the
// downstream statistics pipeline.
package etl

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// FixtureRecord is one loaded fixture row. URL is the natural key: re-running
// a batch updates the row rather than duplicating it.
type FixtureRecord struct {
	RunID       string
	URL         string
	Path        string
	ContentHash string
	StatusCode  int
	Phase       string
	FetchedAt   time.Time
}

// StoreConfig controls the Postgres connection pool used for fixture rows.
type StoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store writes fixture rows into Postgres.
type Store struct {
	pool  execCloser
	table string
}

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "fixtures"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, table: table}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for
// testing).
func NewStoreWithPool(pool execCloser, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "fixtures"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertFixture inserts a fixture row, replacing any prior row for the same
// URL.
func (s *Store) UpsertFixture(ctx context.Context, rec FixtureRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("fixture store is not configured")
	}
	if rec.URL == "" {
		return fmt.Errorf("record url is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	url,
	run_id,
	fixture_path,
	content_hash,
	status_code,
	phase,
	fetched_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)
ON CONFLICT (url) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	fixture_path = EXCLUDED.fixture_path,
	content_hash = EXCLUDED.content_hash,
	status_code = EXCLUDED.status_code,
	phase = EXCLUDED.phase,
	fetched_at = EXCLUDED.fetched_at`, s.table)

	args := []any{
		rec.URL,
		rec.RunID,
		rec.Path,
		rec.ContentHash,
		rec.StatusCode,
		rec.Phase,
		rec.FetchedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert fixture: %w", err)
	}
	return nil
}
