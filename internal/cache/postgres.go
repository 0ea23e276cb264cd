package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	pgDriver     = "pgx"
	defaultPgDSN = "postgres://localhost/tidycensus?sslmode=disable"
)

// Postgres shares one cache across machines, for fleets of workers hitting
// the same vintages.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres opens a Postgres-backed cache using the provided DSN (falls
// back to defaultPgDSN) and ensures the cache table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		dsn = defaultPgDSN
	}
	db, err := sql.Open(pgDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS fetch_cache (
		key TEXT PRIMARY KEY,
		payload BYTEA NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create fetch_cache table: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		payload []byte
		fetched time.Time
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM fetch_cache WHERE key = $1`, key,
	).Scan(&payload, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("select cache entry: %w", err)
	}
	return Entry{Key: key, Payload: payload, FetchedAt: fetched.UTC()}, true, nil
}

func (p *Postgres) Put(ctx context.Context, key string, payload []byte) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO fetch_cache (key, payload, fetched_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		key, payload)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM fetch_cache WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

func (p *Postgres) Driver() Driver { return DriverPostgres }

func (p *Postgres) Close() error { return p.db.Close() }
