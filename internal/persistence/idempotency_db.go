package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"VammLedger/internal/observability"
)

// PostgresIdempotencyChecker is the durable dedup tier behind the engine's
// LRU. It looks keys up in the event log itself.
type PostgresIdempotencyChecker struct {
	db      *sql.DB
	timeout time.Duration
	metrics *observability.Metrics
}

func NewPostgresIdempotencyChecker(db *sql.DB, metrics *observability.Metrics) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{
		db:      db,
		timeout: 500 * time.Millisecond,
		metrics: metrics,
	}
}

// IsDuplicate checks if the command exists in the event log
func (pic *PostgresIdempotencyChecker) IsDuplicate(ctx context.Context, eventType string, idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, pic.timeout)
	defer cancel()

	if pic.metrics != nil {
		start := time.Now()
		defer func() { pic.metrics.DedupTier2Duration.Observe(time.Since(start).Seconds()) }()
	}

	var exists int
	err := pic.db.QueryRowContext(ctx, `
		SELECT 1
		FROM event_log.events
		WHERE event_type = $1 AND idempotency_key = $2
		LIMIT 1
	`, eventType, idempotencyKey).Scan(&exists)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
