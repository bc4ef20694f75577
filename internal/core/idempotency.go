package core

import (
	"context"
	"fmt"
	"time"

	"VammLedger/internal/observability"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// DBIdempotencyChecker is the interface for Postgres dedup lookup
type DBIdempotencyChecker interface {
	IsDuplicate(ctx context.Context, eventType string, idempotencyKey string) (bool, error)
}

// IdempotencyChecker implements two-tier deduplication: an in-memory LRU in
// front of the durable event log.
type IdempotencyChecker struct {
	lru       *lru.Cache[string, struct{}]
	dbChecker DBIdempotencyChecker
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker, metrics *observability.Metrics) (*IdempotencyChecker, error) {
	ic := &IdempotencyChecker{
		dbChecker: dbChecker,
		metrics:   metrics,
		log:       observability.NewLogger("idempotency"),
	}
	cache, err := lru.NewWithEvict[string, struct{}](capacity, func(string, struct{}) {
		if ic.metrics != nil {
			ic.metrics.DedupLRUEvictions.Inc()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("idempotency lru: %w", err)
	}
	ic.lru = cache
	return ic, nil
}

func compositeKey(eventType, idempotencyKey string) string {
	return eventType + ":" + idempotencyKey
}

// IsDuplicate checks if event has been processed (two-tier lookup)
func (ic *IdempotencyChecker) IsDuplicate(ctx context.Context, eventType string, idempotencyKey string) bool {
	key := compositeKey(eventType, idempotencyKey)

	if ic.lru.Contains(key) {
		ic.recordDuplicate(eventType, "lru")
		return true
	}

	if ic.dbChecker == nil {
		return false
	}
	start := time.Now()
	isDup, err := ic.dbChecker.IsDuplicate(ctx, eventType, idempotencyKey)
	if ic.metrics != nil {
		ic.metrics.DedupTier2Duration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		// A lookup failure must not block processing. The event log's
		// unique key still rejects a real duplicate at persist time.
		ic.log.Warn().Err(err).Str("event_type", eventType).Msg("tier-2 dedup lookup failed")
		return false
	}
	if isDup {
		ic.recordDuplicate(eventType, "postgres")
		ic.lru.Add(key, struct{}{})
		return true
	}
	return false
}

// Seen reports an LRU hit without consulting the database.
func (ic *IdempotencyChecker) Seen(eventType string, idempotencyKey string) bool {
	return ic.lru.Contains(compositeKey(eventType, idempotencyKey))
}

// MarkProcessed adds key to LRU after successful processing
func (ic *IdempotencyChecker) MarkProcessed(eventType string, idempotencyKey string) {
	ic.lru.Add(compositeKey(eventType, idempotencyKey), struct{}{})
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Len()))
	}
}

// WarmFromKeys loads composite "event_type:key" entries, oldest first.
func (ic *IdempotencyChecker) WarmFromKeys(keys []string) {
	for _, k := range keys {
		ic.lru.Add(k, struct{}{})
	}
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Len()))
	}
}

// Keys returns the cached composite keys, oldest first.
func (ic *IdempotencyChecker) Keys() []string {
	return ic.lru.Keys()
}

func (ic *IdempotencyChecker) Len() int {
	return ic.lru.Len()
}

func (ic *IdempotencyChecker) recordDuplicate(eventType, tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(eventType, tier).Inc()
	}
}
