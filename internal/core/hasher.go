package core

import (
	"crypto/sha256"
	"encoding/binary"
)

const GenesisHashSeed = "VammLedger:genesis:v1"

// GenesisHash is the chain tip before sequence 1.
func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(GenesisHashSeed))
}

// ChainHash links one committed command into the chain:
// SHA-256(prev || le64(sequence) || digest).
func ChainHash(prev [32]byte, sequence int64, digest []byte) [32]byte {
	buf := make([]byte, 0, len(prev)+8+len(digest))
	buf = append(buf, prev[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(sequence))
	buf = append(buf, digest...)
	return sha256.Sum256(buf)
}

// StateHasher holds the chain tip. The engine touches it only under its
// commit lock.
type StateHasher struct {
	tip [32]byte
}

func NewStateHasher() *StateHasher {
	return &StateHasher{tip: GenesisHash()}
}

// ComputeHash advances the tip past sequence and returns the new tip.
func (h *StateHasher) ComputeHash(sequence int64, digest []byte) [32]byte {
	h.tip = ChainHash(h.tip, sequence, digest)
	return h.tip
}

func (h *StateHasher) GetPrevHash() [32]byte { return h.tip }

// SetPrevHash moves the tip to a restored snapshot's hash.
func (h *StateHasher) SetPrevHash(tip [32]byte) { h.tip = tip }
