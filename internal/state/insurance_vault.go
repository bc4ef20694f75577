package state

import (
	"VammLedger/internal/errs"
	fpmath "VammLedger/internal/math"
)

// InsuranceVault is the single pooled quote account that backs markets. The
// ledger mirrors its balance in system:insurance_vault:collateral.
type InsuranceVault struct {
	Balance        int64 `json:"balance"`
	TotalDeposited int64 `json:"total_deposited"`
	TotalWithdrawn int64 `json:"total_withdrawn"`
}

func (v *InsuranceVault) Deposit(amount int64) error {
	if amount <= 0 {
		return errs.New(errs.CodeInvalidArgument, "deposit must be positive")
	}
	balance, err := fpmath.CheckedAdd(v.Balance, amount)
	if err != nil {
		return err
	}
	total, err := fpmath.CheckedAdd(v.TotalDeposited, amount)
	if err != nil {
		return err
	}
	v.Balance = balance
	v.TotalDeposited = total
	return nil
}

func (v *InsuranceVault) Withdraw(amount int64) error {
	if amount <= 0 {
		return errs.New(errs.CodeInvalidArgument, "withdrawal must be positive")
	}
	if amount > v.Balance {
		return errs.New(errs.CodeInsufficientVaultBalance, "withdraw %d of %d", amount, v.Balance)
	}
	total, err := fpmath.CheckedAdd(v.TotalWithdrawn, amount)
	if err != nil {
		return err
	}
	v.Balance -= amount
	v.TotalWithdrawn = total
	return nil
}

// ComputeCoverage returns how much of a deficit the vault can cover and what
// remains uncovered.
func (v *InsuranceVault) ComputeCoverage(deficit int64) (covered, remaining int64) {
	if v.Balance >= deficit {
		return deficit, 0
	}
	return v.Balance, deficit - v.Balance
}

func (v *InsuranceVault) CanonicalBytes() []byte {
	return appendInt64sLE(make([]byte, 0, 24), v.Balance, v.TotalDeposited, v.TotalWithdrawn)
}
