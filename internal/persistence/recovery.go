package persistence

import (
	"context"
	"fmt"
	"time"

	"VammLedger/internal/core"
	"VammLedger/internal/event"
	"VammLedger/internal/observability"

	"github.com/rs/zerolog"
)

const replayBatchSize = 1000

// SnapshotLoader returns the newest usable snapshot, nil when there is none.
type SnapshotLoader interface {
	LoadLatest(ctx context.Context) (*core.SnapshotState, error)
}

// EventSource reads the durable event log in sequence order.
type EventSource interface {
	LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]*event.EventEnvelope, error)
}

// RecoveryResult summarizes a restart.
type RecoveryResult struct {
	SnapshotSequence int64
	Replayed         int64
	Sequence         int64
	StateHash        [32]byte
}

// Recover restores the newest snapshot into a fresh engine, then replays
// every logged command after it. Replay verifies each logged state hash.
func Recover(ctx context.Context, engine *core.Engine, snaps SnapshotLoader, events EventSource, metrics *observability.Metrics) (RecoveryResult, error) {
	log := observability.NewLogger("recovery")
	var res RecoveryResult

	snap, err := snaps.LoadLatest(ctx)
	if err != nil {
		return res, fmt.Errorf("load snapshot: %w", err)
	}
	if snap != nil {
		if err := engine.RestoreFromSnapshot(snap); err != nil {
			return res, fmt.Errorf("restore snapshot %d: %w", snap.Sequence, err)
		}
		res.SnapshotSequence = snap.Sequence
		log.Info().Int64("sequence", snap.Sequence).Msg("restored snapshot")
	} else {
		log.Info().Msg("no snapshot found, replaying from genesis")
	}

	start := time.Now()
	from := res.SnapshotSequence + 1
	for {
		batch, err := events.LoadEventsFrom(ctx, from, replayBatchSize)
		if err != nil {
			return res, fmt.Errorf("load events from %d: %w", from, err)
		}
		if len(batch) == 0 {
			break
		}
		for _, env := range batch {
			if err := engine.Replay(ctx, env); err != nil {
				return res, err
			}
			res.Replayed++
		}
		if metrics != nil {
			metrics.ReplayEventsTotal.Add(float64(len(batch)))
		}
		from = batch[len(batch)-1].Sequence + 1
	}

	res.Sequence = engine.GetSequence()
	res.StateHash = engine.GetStateHash()
	logDone(log, res, time.Since(start))
	return res, nil
}

func logDone(log zerolog.Logger, res RecoveryResult, took time.Duration) {
	log.Info().
		Int64("replayed", res.Replayed).
		Int64("sequence", res.Sequence).
		Hex("state_hash", res.StateHash[:]).
		Dur("took", took).
		Msg("recovery complete")
}
