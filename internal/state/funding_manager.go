package state

import (
	"fmt"
	"sync"

	"VammLedger/internal/amm"
)

// FundingRecord is one applied funding period of a market.
type FundingRecord struct {
	MarketIndex uint16 `json:"market_index"`
	EpochID     int64  `json:"epoch_id"`
	amm.FundingUpdate
}

// FundingManager numbers funding periods per market and keeps the most
// recent records for queries.
type FundingManager struct {
	mu                sync.RWMutex
	records           map[uint16][]FundingRecord
	expectedNextEpoch map[uint16]int64
	keep              int
}

// NewFundingManager keeps the last keep records per market.
func NewFundingManager(keep int) *FundingManager {
	if keep <= 0 {
		keep = 256
	}
	return &FundingManager{
		records:           make(map[uint16][]FundingRecord),
		expectedNextEpoch: make(map[uint16]int64),
		keep:              keep,
	}
}

// Record assigns the next epoch to upd and stores it.
func (fm *FundingManager) Record(marketIndex uint16, upd amm.FundingUpdate) FundingRecord {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	rec := FundingRecord{
		MarketIndex:   marketIndex,
		EpochID:       fm.expectedNextEpoch[marketIndex],
		FundingUpdate: upd,
	}
	fm.append(rec)
	return rec
}

// Restore replays a stored record. Duplicates are skipped; gaps fail.
func (fm *FundingManager) Restore(rec FundingRecord) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	expected := fm.expectedNextEpoch[rec.MarketIndex]
	if rec.EpochID < expected {
		return nil
	}
	if rec.EpochID > expected {
		return fmt.Errorf("funding epoch gap for market %d: expected=%d, got=%d",
			rec.MarketIndex, expected, rec.EpochID)
	}
	fm.append(rec)
	return nil
}

func (fm *FundingManager) append(rec FundingRecord) {
	list := append(fm.records[rec.MarketIndex], rec)
	if len(list) > fm.keep {
		list = append([]FundingRecord(nil), list[len(list)-fm.keep:]...)
	}
	fm.records[rec.MarketIndex] = list
	fm.expectedNextEpoch[rec.MarketIndex] = rec.EpochID + 1
}

// Recent returns up to limit records for a market, newest first.
func (fm *FundingManager) Recent(marketIndex uint16, limit int) []FundingRecord {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	list := fm.records[marketIndex]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]FundingRecord, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out
}

// NextEpoch returns the epoch the next record of a market will get.
func (fm *FundingManager) NextEpoch(marketIndex uint16) int64 {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return fm.expectedNextEpoch[marketIndex]
}

// RestoreNextEpoch directly sets the next expected epoch (used for snapshot restore)
func (fm *FundingManager) RestoreNextEpoch(marketIndex uint16, nextEpoch int64) {
	fm.mu.Lock()
	fm.expectedNextEpoch[marketIndex] = nextEpoch
	fm.mu.Unlock()
}

// GetAllNextEpochs returns all next epoch IDs (for snapshot creation)
func (fm *FundingManager) GetAllNextEpochs() map[uint16]int64 {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	result := make(map[uint16]int64, len(fm.expectedNextEpoch))
	for k, v := range fm.expectedNextEpoch {
		result[k] = v
	}
	return result
}
