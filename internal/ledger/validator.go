package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
	assetID AssetID
}

func NewInvariantValidator(tracker *BalanceTracker, assetID AssetID) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
		assetID: assetID,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateInsuranceVault checks the vault is non-negative and matches the
// engine's view of it.
func (v *InvariantValidator) ValidateInsuranceVault(expected int64) error {
	key := NewInsuranceVaultAccountKey(v.assetID)
	if err := v.tracker.ValidateNonNegative(key); err != nil {
		return err
	}
	if got := v.tracker.GetBalance(key); got != expected {
		return fmt.Errorf("insurance vault ledger %d != state %d", got, expected)
	}
	return nil
}

// ValidateUserCollateral checks the ledger mirrors a user's signed bank
// balance. Collateral may be negative when the user borrows.
func (v *InvariantValidator) ValidateUserCollateral(userID uuid.UUID, expected int64) error {
	if got := v.tracker.GetUserCollateral(userID, v.assetID); got != expected {
		return fmt.Errorf("user %s collateral ledger %d != state %d", userID, got, expected)
	}
	return nil
}

// ValidatePnlPool checks the ledger mirrors a market pool.
func (v *InvariantValidator) ValidatePnlPool(marketIndex uint16, expected int64) error {
	if got := v.tracker.GetPnlPool(marketIndex, v.assetID); got != expected {
		return fmt.Errorf("market %d pnl pool ledger %d != state %d", marketIndex, got, expected)
	}
	return nil
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}
