package core

import (
	"context"
	"fmt"
	"sort"

	"VammLedger/internal/event"
	"VammLedger/internal/ledger"
	"VammLedger/internal/state"

	"github.com/google/uuid"
)

// BalanceEntry is one ledger account balance.
type BalanceEntry struct {
	Account ledger.AccountKey `json:"account"`
	Balance int64             `json:"balance"`
}

// SnapshotState holds the serializable in-memory state for restore.
type SnapshotState struct {
	Sequence          int64                        `json:"sequence"`
	StateHash         [32]byte                     `json:"state_hash"`
	Markets           []state.Market               `json:"markets"`
	Accounts          []*state.UserAccount         `json:"accounts"`
	InsuranceVault    state.InsuranceVault         `json:"insurance_vault"`
	Balances          []BalanceEntry               `json:"balances"`
	Oracles           map[uint16]state.OraclePrice `json:"oracles"`
	FundingRecords    []state.FundingRecord        `json:"funding_records"`
	FundingNextEpochs map[uint16]int64             `json:"funding_next_epochs"`
	SequenceState     map[string]int64             `json:"sequence_state"`
	IdempotencyKeys   []string                     `json:"idempotency_keys"`
}

// CreateSnapshotState captures a consistent cut of the engine. It holds the
// commit lock, so it never observes half of a command.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	snap := &SnapshotState{
		Sequence:          e.sequence - 1,
		StateHash:         e.hasher.GetPrevHash(),
		Oracles:           e.oracles.All(),
		FundingNextEpochs: e.funding.GetAllNextEpochs(),
		SequenceState:     e.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys:   e.idempotency.Keys(),
	}

	// Committed markets and accounts are immutable once installed and are
	// only swapped under commitMu, so slot locks are not needed here.
	for _, mi := range e.markets.Indices() {
		slot, err := e.markets.Get(mi)
		if err != nil {
			continue
		}
		snap.Markets = append(snap.Markets, *slot.Market())
		recent := e.funding.Recent(mi, 0)
		for i := len(recent) - 1; i >= 0; i-- {
			snap.FundingRecords = append(snap.FundingRecords, recent[i])
		}
	}
	for _, id := range e.accounts.IDs() {
		slot, err := e.accounts.Get(id)
		if err != nil {
			continue
		}
		snap.Accounts = append(snap.Accounts, slot.Account())
	}

	e.vaultMu.Lock()
	snap.InsuranceVault = e.vault
	e.vaultMu.Unlock()

	for key, balance := range e.balanceTracker.Snapshot() {
		snap.Balances = append(snap.Balances, BalanceEntry{Account: key, Balance: balance})
	}
	sort.Slice(snap.Balances, func(i, j int) bool {
		return snap.Balances[i].Account.AccountPath() < snap.Balances[j].Account.AccountPath()
	})
	return snap
}

// RestoreFromSnapshot loads a snapshot into an engine that has not
// processed anything yet.
func (e *Engine) RestoreFromSnapshot(snap *SnapshotState) error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	e.sequence = snap.Sequence + 1
	e.hasher.SetPrevHash(snap.StateHash)

	for i := range snap.Markets {
		m := snap.Markets[i]
		if err := e.markets.Restore(&m); err != nil {
			return fmt.Errorf("restore market %d: %w", m.MarketIndex, err)
		}
	}
	for _, a := range snap.Accounts {
		e.accounts.Restore(a)
	}
	e.vaultMu.Lock()
	e.vault = snap.InsuranceVault
	e.vaultMu.Unlock()

	for _, b := range snap.Balances {
		e.balanceTracker.SetBalance(b.Account, b.Balance)
	}
	for mi, p := range snap.Oracles {
		e.oracles.Restore(mi, p)
	}
	// records are oldest first per market and may start past epoch zero
	started := make(map[uint16]bool)
	for _, rec := range snap.FundingRecords {
		if !started[rec.MarketIndex] {
			e.funding.RestoreNextEpoch(rec.MarketIndex, rec.EpochID)
			started[rec.MarketIndex] = true
		}
		if err := e.funding.Restore(rec); err != nil {
			return err
		}
	}
	for mi, next := range snap.FundingNextEpochs {
		e.funding.RestoreNextEpoch(mi, next)
	}
	for partition, next := range snap.SequenceState {
		e.sequenceValidator.RestorePartition(partition, next)
	}
	e.idempotency.WarmFromKeys(snap.IdempotencyKeys)

	if err := e.validator.ValidateGlobalBalance(); err != nil {
		return fmt.Errorf("snapshot ledger: %w", err)
	}
	return nil
}

// Replay re-applies a logged command during recovery. Custody is not
// called again and the command must reproduce the logged sequence and
// state hash.
func (e *Engine) Replay(ctx context.Context, env *event.EventEnvelope) error {
	evt, err := event.Decode(env.EventType, env.Payload)
	if err != nil {
		return fmt.Errorf("decode sequence %d: %w", env.Sequence, err)
	}
	if _, err := e.process(ctx, evt, env); err != nil {
		return fmt.Errorf("replay sequence %d: %w", env.Sequence, err)
	}
	return nil
}

// WarmLRU loads recent idempotency keys into the LRU cache.
func (e *Engine) WarmLRU(keys []string) {
	e.idempotency.WarmFromKeys(keys)
}

// GetSequence returns the last committed sequence number.
func (e *Engine) GetSequence() int64 {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	return e.sequence - 1
}

// GetStateHash returns the current state hash (chain tip).
func (e *Engine) GetStateHash() [32]byte {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	return e.hasher.GetPrevHash()
}

// --- Queries ---

// Market returns a copy of the committed market.
func (e *Engine) Market(marketIndex uint16) (state.Market, error) {
	slot, err := e.markets.Get(marketIndex)
	if err != nil {
		return state.Market{}, err
	}
	return slot.Snapshot(), nil
}

// Markets returns every committed market by index.
func (e *Engine) Markets() []state.Market {
	indices := e.markets.Indices()
	out := make([]state.Market, 0, len(indices))
	for _, mi := range indices {
		if m, err := e.Market(mi); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// Account returns a deep copy of the committed account.
func (e *Engine) Account(userID uuid.UUID) (*state.UserAccount, error) {
	slot, err := e.accounts.Get(userID)
	if err != nil {
		return nil, err
	}
	return slot.Snapshot(), nil
}

// Margin evaluates an account against the published market risk.
func (e *Engine) Margin(userID uuid.UUID) (state.MarginSummary, error) {
	acct, err := e.Account(userID)
	if err != nil {
		return state.MarginSummary{}, err
	}
	return state.CalculateMargin(acct, e.markets)
}

func (e *Engine) InsuranceVault() state.InsuranceVault {
	e.vaultMu.Lock()
	defer e.vaultMu.Unlock()
	return e.vault
}

// FundingHistory returns up to limit recent funding records, newest first.
func (e *Engine) FundingHistory(marketIndex uint16, limit int) []state.FundingRecord {
	return e.funding.Recent(marketIndex, limit)
}

// OraclePrice returns the latest accepted oracle reading.
func (e *Engine) OraclePrice(marketIndex uint16) (state.OraclePrice, bool) {
	return e.oracles.OraclePrice(marketIndex)
}

// CollateralVault is the quote held for users and market pools.
func (e *Engine) CollateralVault() int64 {
	return e.balanceTracker.CollateralVault(ledger.QuoteAssetID)
}

// LedgerBalance returns one ledger account balance.
func (e *Engine) LedgerBalance(key ledger.AccountKey) int64 {
	return e.balanceTracker.GetBalance(key)
}
