package state

import (
	"math"

	"VammLedger/internal/errs"
	fpmath "VammLedger/internal/math"
)

// BalanceType tells whether a bank balance is owed to or by the user.
type BalanceType uint8

const (
	BalanceTypeDeposit BalanceType = iota
	BalanceTypeBorrow
)

func (t BalanceType) String() string {
	if t == BalanceTypeBorrow {
		return "borrow"
	}
	return "deposit"
}

// BankBalance is an unsigned amount in the bank's precision. Deposit and
// borrow are mutually exclusive.
type BankBalance struct {
	BankIndex   uint16      `json:"bank_index"`
	BalanceType BalanceType `json:"balance_type"`
	Balance     int64       `json:"balance"`
}

// Signed returns the balance with borrows negative.
func (b *BankBalance) Signed() int64 {
	if b.BalanceType == BalanceTypeBorrow {
		return -b.Balance
	}
	return b.Balance
}

// Apply adds a signed delta. Crossing zero flips a deposit into a borrow and
// back.
func (b *BankBalance) Apply(delta int64) error {
	v, err := fpmath.CheckedAdd(b.Signed(), delta)
	if err != nil {
		return err
	}
	if v == math.MinInt64 {
		return errs.Overflow("bank balance")
	}
	if v < 0 {
		b.BalanceType = BalanceTypeBorrow
		b.Balance = -v
		return nil
	}
	b.BalanceType = BalanceTypeDeposit
	b.Balance = v
	return nil
}

// CanonicalBytes for deterministic hashing
func (b *BankBalance) CanonicalBytes() []byte {
	buf := make([]byte, 0, 11)
	buf = append(buf, byte(b.BankIndex), byte(b.BankIndex>>8), byte(b.BalanceType))
	return appendInt64LE(buf, b.Balance)
}
