package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"VammLedger/internal/core"
	"VammLedger/internal/observability"

	"github.com/rs/zerolog"
)

// StateSource is the part of the engine a snapshotter reads.
type StateSource interface {
	CreateSnapshotState() *core.SnapshotState
	GetSequence() int64
}

// Snapshotter saves engine snapshots every interval commands.
type Snapshotter struct {
	source   StateSource
	store    SnapshotStore
	interval int64
	every    time.Duration
	metrics  *observability.Metrics
	log      zerolog.Logger

	mu      sync.Mutex
	lastSeq int64
}

// NewSnapshotter checks the committed sequence every check and snapshots
// once interval commands have committed since the last snapshot.
func NewSnapshotter(source StateSource, store SnapshotStore, interval int64, check time.Duration, metrics *observability.Metrics) *Snapshotter {
	if interval <= 0 {
		interval = 100_000
	}
	if check <= 0 {
		check = 10 * time.Second
	}
	return &Snapshotter{
		source:   source,
		store:    store,
		interval: interval,
		every:    check,
		metrics:  metrics,
		log:      observability.NewLogger("snapshotter"),
		lastSeq:  source.GetSequence(),
	}
}

// Run blocks until ctx is done.
func (s *Snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.mu.Lock()
			due := s.source.GetSequence()-s.lastSeq >= s.interval
			s.mu.Unlock()
			if !due {
				continue
			}
			if seq, err := s.TakeSnapshot(ctx); err != nil {
				s.log.Warn().Err(err).Msg("periodic snapshot failed")
			} else {
				s.log.Info().Int64("sequence", seq).Msg("periodic snapshot")
			}
		}
	}
}

// TakeSnapshot captures and saves the engine state now and returns its
// sequence. An engine that has committed nothing is not saved.
func (s *Snapshotter) TakeSnapshot(ctx context.Context) (int64, error) {
	start := time.Now()
	snap := s.source.CreateSnapshotState()
	if snap.Sequence <= 0 {
		return 0, nil
	}
	if err := s.store.Save(ctx, snap); err != nil {
		return 0, fmt.Errorf("save snapshot %d: %w", snap.Sequence, err)
	}

	s.mu.Lock()
	if snap.Sequence > s.lastSeq {
		s.lastSeq = snap.Sequence
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SnapshotTaken.Inc()
		s.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		s.metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
		if data, err := json.Marshal(snap); err == nil {
			s.metrics.SnapshotSizeBytes.Set(float64(len(data)))
		}
	}
	return snap.Sequence, nil
}
