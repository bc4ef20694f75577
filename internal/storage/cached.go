package storage

import (
	"context"
	"encoding/json"
	"time"

	"VammLedger/internal/core"
	"VammLedger/internal/observability"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const latestSnapshotKey = "vamm:snapshot:latest"

// CachedSnapshotStore wraps a primary store with a Redis read-through
// cache. Saves go to the primary first and then refresh the cache; reads
// check Redis and fall back to the primary. Redis errors never fail a call.
type CachedSnapshotStore struct {
	primary SnapshotStore
	rdb     *redis.Client
	ttl     time.Duration
	log     zerolog.Logger
}

func NewCachedSnapshotStore(primary SnapshotStore, rdb *redis.Client, ttl time.Duration) *CachedSnapshotStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedSnapshotStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
		log:     observability.NewLogger("snapshot-cache"),
	}
}

func (s *CachedSnapshotStore) Save(ctx context.Context, snap *core.SnapshotState) error {
	if err := s.primary.Save(ctx, snap); err != nil {
		return err
	}
	s.cache(ctx, snap)
	return nil
}

func (s *CachedSnapshotStore) LoadLatest(ctx context.Context) (*core.SnapshotState, error) {
	data, err := s.rdb.Get(ctx, latestSnapshotKey).Bytes()
	if err == nil {
		var snap core.SnapshotState
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	} else if err != redis.Nil {
		s.log.Debug().Err(err).Msg("cache read failed")
	}

	snap, err := s.primary.LoadLatest(ctx)
	if err != nil || snap == nil {
		return snap, err
	}
	s.cache(ctx, snap)
	return snap, nil
}

func (s *CachedSnapshotStore) cache(ctx context.Context, snap *core.SnapshotState) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, latestSnapshotKey, data, s.ttl).Err(); err != nil {
		s.log.Debug().Err(err).Msg("cache write failed")
	}
}
