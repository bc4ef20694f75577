package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"VammLedger/internal/core"
	"VammLedger/internal/event"

	"github.com/google/uuid"
)

// snapshotFormatVersion v1: JSON-encoded core.SnapshotState
const snapshotFormatVersion = 1

// SnapshotManager stores engine snapshots and reads the event log back for
// recovery.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// Save persists a snapshot. A snapshot is cut under the engine's commit
// lock, so it is stored as verified.
func (sm *SnapshotManager) Save(ctx context.Context, snap *core.SnapshotState) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, uuid.New(), snap.Sequence, data, snap.StateHash[:], snapshotFormatVersion, len(data))
	if err != nil {
		return fmt.Errorf("save snapshot %d: %w", snap.Sequence, err)
	}
	return nil
}

// LoadLatest loads the most recent verified snapshot, or nil on a cold
// start.
func (sm *SnapshotManager) LoadLatest(ctx context.Context) (*core.SnapshotState, error) {
	var data []byte
	err := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap core.SnapshotState
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// LoadEventsFrom loads logged envelopes from a sequence for replay.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]*event.EventEnvelope, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, market_index, payload,
		       state_hash, prev_hash, ts, source_sequence
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*event.EventEnvelope
	for rows.Next() {
		var (
			r        EventRow
			typeName string
		)
		if err := rows.Scan(
			&r.Sequence, &typeName, &r.IdempotencyKey, &r.MarketIndex, &r.Payload,
			&r.StateHash, &r.PrevHash, &r.Timestamp, &r.SourceSequence,
		); err != nil {
			return nil, err
		}
		env, err := r.envelope(typeName)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func (r EventRow) envelope(typeName string) (*event.EventEnvelope, error) {
	et, ok := event.ParseEventType(typeName)
	if !ok {
		return nil, fmt.Errorf("sequence %d: unknown event type %q", r.Sequence, typeName)
	}
	env := &event.EventEnvelope{
		Sequence:       r.Sequence,
		IdempotencyKey: r.IdempotencyKey,
		EventType:      et,
		Timestamp:      r.Timestamp,
		SourceSequence: r.SourceSequence,
		Payload:        r.Payload,
	}
	if r.MarketIndex.Valid {
		mi := uint16(r.MarketIndex.Int32)
		env.MarketIndex = &mi
	}
	copy(env.StateHash[:], r.StateHash)
	copy(env.PrevHash[:], r.PrevHash)
	return env, nil
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := sm.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

// RecentIdempotencyKeys returns up to limit composite "type:key" entries,
// oldest first, for warming the engine's LRU on a cold start.
func (sm *SnapshotManager) RecentIdempotencyKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT event_type, idempotency_key FROM (
			SELECT sequence, event_type, idempotency_key
			FROM event_log.events
			ORDER BY sequence DESC
			LIMIT $1
		) recent ORDER BY sequence ASC
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var et, key string
		if err := rows.Scan(&et, &key); err != nil {
			return nil, err
		}
		keys = append(keys, et+":"+key)
	}
	return keys, rows.Err()
}
