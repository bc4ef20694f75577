package storage

import (
	"context"
	"encoding/json"
	"sync"

	"VammLedger/internal/core"
)

// MemorySnapshotStore keeps the latest snapshot in memory. Snapshots are
// stored encoded so callers cannot alias engine state.
type MemorySnapshotStore struct {
	mu     sync.Mutex
	latest []byte
	saves  int
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

func (m *MemorySnapshotStore) Save(_ context.Context, snap *core.SnapshotState) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = data
	m.saves++
	return nil
}

func (m *MemorySnapshotStore) LoadLatest(context.Context) (*core.SnapshotState, error) {
	m.mu.Lock()
	data := m.latest
	m.mu.Unlock()
	if data == nil {
		return nil, nil
	}
	var snap core.SnapshotState
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Saves reports how many snapshots were written.
func (m *MemorySnapshotStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
