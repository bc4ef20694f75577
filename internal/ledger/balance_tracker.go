package ledger

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	mu       sync.RWMutex
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

func (bt *BalanceTracker) applyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	bt.mu.Lock()
	defer bt.mu.Unlock()
	for _, j := range batch.Journals {
		bt.applyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return bt.balances[key]
}

// GetUserCollateral returns the signed collateral of a user; negative is a
// borrow.
func (bt *BalanceTracker) GetUserCollateral(userID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeCollateral, assetID))
}

// GetPnlPool returns the settlement pool of a market.
func (bt *BalanceTracker) GetPnlPool(marketIndex uint16, assetID AssetID) int64 {
	return bt.GetBalance(NewPnlPoolAccountKey(marketIndex, assetID))
}

// GetInsuranceVault returns the pooled insurance balance.
func (bt *BalanceTracker) GetInsuranceVault(assetID AssetID) int64 {
	return bt.GetBalance(NewInsuranceVaultAccountKey(assetID))
}

// CollateralVault is everything held inside the system for an asset: user
// collateral and market pools. It equals net external inflow minus what
// the insurance vault holds.
func (bt *BalanceTracker) CollateralVault(assetID AssetID) int64 {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	var total int64
	for k, v := range bt.balances {
		if k.AssetID != assetID {
			continue
		}
		if k.Scope == AccountScopeUser || k.SubType == SubTypeSystemPnlPool {
			total += v
		}
	}
	return total
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// SetBalance directly sets an account balance (used for snapshot restore)
func (bt *BalanceTracker) SetBalance(key AccountKey, balance int64) {
	bt.mu.Lock()
	bt.balances[key] = balance
	bt.mu.Unlock()
}
