package event

import "github.com/google/uuid"

// InitializeUser opens an empty account.
type InitializeUser struct {
	Header
	Global
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name,omitempty"`
}

func (e *InitializeUser) EventType() EventType { return EventTypeInitializeUser }

// Deposit credits collateral to the quote bank. Funds are pulled from the
// custody side before the ledger books them.
type Deposit struct {
	Header
	Global
	UserID uuid.UUID `json:"user_id"`
	Amount int64     `json:"amount"` // Fixed-point: quote precision
}

func (e *Deposit) EventType() EventType { return EventTypeDeposit }

// Withdraw pays free collateral out of the quote bank.
type Withdraw struct {
	Header
	Global
	UserID uuid.UUID `json:"user_id"`
	Amount int64     `json:"amount"`
}

func (e *Withdraw) EventType() EventType { return EventTypeWithdraw }
