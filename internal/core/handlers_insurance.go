package core

import (
	"context"

	"VammLedger/internal/errs"
	"VammLedger/internal/event"
	"VammLedger/internal/ledger"
	fpmath "VammLedger/internal/math"
	"VammLedger/internal/state"
)

// handleWithdrawFromMarketToInsuranceVault sweeps protocol fees into the
// vault. Over the life of a market at most half of the fee pool may be
// swept.
func (e *Engine) handleWithdrawFromMarketToInsuranceVault(tx *txn, evt *event.WithdrawFromMarketToInsuranceVault) (*Result, error) {
	if evt.Amount <= 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "amount must be positive")
	}
	if err := tx.lockMarket(evt.Market); err != nil {
		return nil, err
	}
	tx.lockVault()

	m := tx.market
	a := &m.AMM
	available := a.TotalFeeMinusDistributions/2 - a.TotalFeeWithdrawn
	if evt.Amount > available {
		return nil, errs.New(errs.CodeInsufficientFeesAvailable,
			"sweep %d exceeds available %d", evt.Amount, fpmath.Max(available, 0))
	}
	withdrawn, err := fpmath.CheckedAdd(a.TotalFeeWithdrawn, evt.Amount)
	if err != nil {
		return nil, err
	}
	pool, err := fpmath.CheckedSub(m.PnlPool, evt.Amount)
	if err != nil {
		return nil, err
	}
	if err := tx.vault.Deposit(evt.Amount); err != nil {
		return nil, err
	}
	a.TotalFeeWithdrawn = withdrawn
	m.PnlPool = pool

	mi, amount := evt.Market, evt.Amount
	tx.journal(func(b *ledger.Batch) { e.journalGen.MarketToInsurance(b, mi, amount) })
	return &Result{EventType: evt.EventType(), Market: m, Vault: &tx.vault}, nil
}

// handleWithdrawFromInsuranceVault pays vault funds to an external
// recipient through custody.
func (e *Engine) handleWithdrawFromInsuranceVault(tx *txn, evt *event.WithdrawFromInsuranceVault) (*Result, error) {
	if evt.Amount <= 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "amount must be positive")
	}
	if evt.Recipient == "" {
		return nil, errs.New(errs.CodeInvalidArgument, "recipient is required")
	}
	tx.lockVault()
	if err := tx.vault.Withdraw(evt.Amount); err != nil {
		return nil, err
	}

	recipient, amount := evt.Recipient, evt.Amount
	tx.journal(func(b *ledger.Batch) { e.journalGen.InsuranceWithdrawal(b, amount) })
	tx.custody = append(tx.custody, func(ctx context.Context) error {
		if err := e.custody.Credit(ctx, recipient, state.QuoteBankIndex, amount); err != nil {
			return errs.Wrap(errs.CodeCollateralTransferFailed, err, "insurance withdrawal")
		}
		return nil
	})
	return &Result{EventType: evt.EventType(), Vault: &tx.vault}, nil
}

// handleWithdrawFromInsuranceVaultToMarket tops up a market from the vault.
// The amount backs both the fee pool and the pnl pool.
func (e *Engine) handleWithdrawFromInsuranceVaultToMarket(tx *txn, evt *event.WithdrawFromInsuranceVaultToMarket) (*Result, error) {
	if evt.Amount <= 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "amount must be positive")
	}
	if err := tx.lockMarket(evt.Market); err != nil {
		return nil, err
	}
	tx.lockVault()

	m := tx.market
	fees, err := fpmath.CheckedAdd(m.AMM.TotalFeeMinusDistributions, evt.Amount)
	if err != nil {
		return nil, err
	}
	pool, err := fpmath.CheckedAdd(m.PnlPool, evt.Amount)
	if err != nil {
		return nil, err
	}
	if err := tx.vault.Withdraw(evt.Amount); err != nil {
		return nil, err
	}
	m.AMM.TotalFeeMinusDistributions = fees
	m.PnlPool = pool

	mi, amount := evt.Market, evt.Amount
	tx.journal(func(b *ledger.Batch) { e.journalGen.InsuranceToMarket(b, mi, amount) })
	return &Result{EventType: evt.EventType(), Market: m, Vault: &tx.vault}, nil
}
