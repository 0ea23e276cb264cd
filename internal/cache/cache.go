// Package cache stores raw upstream payloads keyed by request fingerprint so
// repeated alignment runs do not re-download attribute tables or boundary
// files. Backends share one semantic: Put overwrites, Get misses silently.
package cache

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Driver identifies a concrete cache backend.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Entry is a cached payload with its fetch time, so callers can apply their
// own staleness policy.
type Entry struct {
	Key       string
	Payload   []byte
	FetchedAt time.Time
}

// Store is the backend contract. A miss is (zero Entry, false, nil); errors
// are reserved for backend failures.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
	Driver() Driver
	Close() error
}

// Open selects a cache backend using environment variables.
// Defaults to sqlite when unset.
//
//	TIDYCENSUS_CACHE_DRIVER: memory|sqlite|postgres (default sqlite)
//	TIDYCENSUS_CACHE_SQLITE_PATH: path to sqlite file (default ./tidycensus-cache.db)
//	TIDYCENSUS_CACHE_POSTGRES_DSN: postgres DSN when driver=postgres
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("TIDYCENSUS_CACHE_DRIVER")
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		path := os.Getenv("TIDYCENSUS_CACHE_SQLITE_PATH")
		return NewSQLite(path)
	case DriverPostgres:
		dsn := os.Getenv("TIDYCENSUS_CACHE_POSTGRES_DSN")
		return NewPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown cache driver %s", driver)
	}
}
