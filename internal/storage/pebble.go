package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"VammLedger/internal/core"

	"github.com/cockroachdb/pebble"
)

var (
	ErrDBClosed = errors.New("snapshot store is closed")

	snapPrefix = []byte("snap/")
	snapEnd    = []byte("snap0") // '0' sorts right after '/'
)

// PebbleSnapshotStore keeps snapshots in a local Pebble database keyed by
// big-endian sequence, so the last key is the latest snapshot.
type PebbleSnapshotStore struct {
	db   *pebble.DB
	keep int
}

// OpenPebbleSnapshotStore opens or creates the store at path. keep bounds
// how many snapshots survive a Save; zero keeps all.
func OpenPebbleSnapshotStore(path string, keep int) (*PebbleSnapshotStore, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", path, err)
	}
	return &PebbleSnapshotStore{db: db, keep: keep}, nil
}

func snapKey(seq int64) []byte {
	k := make([]byte, len(snapPrefix)+8)
	copy(k, snapPrefix)
	binary.BigEndian.PutUint64(k[len(snapPrefix):], uint64(seq))
	return k
}

func (p *PebbleSnapshotStore) Save(_ context.Context, snap *core.SnapshotState) error {
	if p.db == nil {
		return ErrDBClosed
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := p.db.Set(snapKey(snap.Sequence), data, pebble.Sync); err != nil {
		return err
	}
	if p.keep > 0 {
		return p.prune()
	}
	return nil
}

func (p *PebbleSnapshotStore) LoadLatest(_ context.Context) (*core.SnapshotState, error) {
	if p.db == nil {
		return nil, ErrDBClosed
	}
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: snapPrefix, UpperBound: snapEnd})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	if !iter.Last() {
		return nil, iter.Error()
	}
	var snap core.SnapshotState
	if err := json.Unmarshal(iter.Value(), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Sequences lists stored snapshot sequences, oldest first.
func (p *PebbleSnapshotStore) Sequences() ([]int64, error) {
	if p.db == nil {
		return nil, ErrDBClosed
	}
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: snapPrefix, UpperBound: snapEnd})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []int64
	for iter.First(); iter.Valid(); iter.Next() {
		out = append(out, int64(binary.BigEndian.Uint64(iter.Key()[len(snapPrefix):])))
	}
	return out, iter.Error()
}

// prune drops all but the newest keep snapshots.
func (p *PebbleSnapshotStore) prune() error {
	seqs, err := p.Sequences()
	if err != nil {
		return err
	}
	if len(seqs) <= p.keep {
		return nil
	}
	cutoff := seqs[len(seqs)-p.keep]
	return p.db.DeleteRange(snapPrefix, snapKey(cutoff), pebble.Sync)
}

func (p *PebbleSnapshotStore) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}
