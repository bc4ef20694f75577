// Package storage holds the snapshot store backends. Postgres lives in
// persistence; this package adds local Pebble, in-memory and a Redis
// read-through cache in front of either.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"VammLedger/internal/core"
	"VammLedger/internal/persistence"

	"github.com/redis/go-redis/v9"
)

// SnapshotStore keeps engine snapshots. LoadLatest returns nil, nil when the
// store is empty.
type SnapshotStore interface {
	Save(ctx context.Context, snap *core.SnapshotState) error
	LoadLatest(ctx context.Context) (*core.SnapshotState, error)
}

var _ SnapshotStore = (*persistence.SnapshotManager)(nil)

// Options select and configure a backend.
type Options struct {
	Backend    string // postgres, pebble or memory
	PebblePath string
	Keep       int // pebble retention, zero keeps everything

	RedisAddr string // empty disables the cache
	RedisTTL  time.Duration
}

// Open builds the configured store. The returned close func releases the
// backend and is never nil.
func Open(opts Options, db *sql.DB) (SnapshotStore, func() error, error) {
	var (
		store   SnapshotStore
		closers []func() error
	)
	switch opts.Backend {
	case "", "postgres":
		if db == nil {
			return nil, nil, fmt.Errorf("postgres snapshot backend needs a database")
		}
		store = persistence.NewSnapshotManager(db)
	case "pebble":
		ps, err := OpenPebbleSnapshotStore(opts.PebblePath, opts.Keep)
		if err != nil {
			return nil, nil, err
		}
		store = ps
		closers = append(closers, ps.Close)
	case "memory":
		store = NewMemorySnapshotStore()
	default:
		return nil, nil, fmt.Errorf("unknown snapshot backend %q", opts.Backend)
	}

	if opts.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		store = NewCachedSnapshotStore(store, rdb, opts.RedisTTL)
		closers = append(closers, rdb.Close)
	}

	closeAll := func() error {
		var first error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	return store, closeAll, nil
}
