package core

import (
	"context"

	"VammLedger/internal/errs"
	"VammLedger/internal/event"
	"VammLedger/internal/ledger"
	fpmath "VammLedger/internal/math"
	"VammLedger/internal/state"

	"github.com/google/uuid"
)

func (e *Engine) handleInitializeUser(tx *txn, evt *event.InitializeUser) (*Result, error) {
	if evt.UserID == uuid.Nil {
		return nil, errs.New(errs.CodeInvalidArgument, "user id is required")
	}
	if _, err := e.accounts.Get(evt.UserID); err == nil {
		return nil, errs.New(errs.CodeUserAccountAlreadyExists, "user %s", evt.UserID)
	}
	tx.user = state.NewUserAccount(evt.UserID, evt.Name, tx.now)
	tx.newUser = true
	return &Result{EventType: evt.EventType(), Account: tx.user}, nil
}

func (e *Engine) handleDeposit(tx *txn, evt *event.Deposit) (*Result, error) {
	if evt.Amount <= 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "deposit amount must be positive")
	}
	if err := tx.lockUser(evt.UserID); err != nil {
		return nil, err
	}
	u := tx.user
	if err := u.ApplyCollateral(evt.Amount); err != nil {
		return nil, err
	}
	total, err := fpmath.CheckedAdd(u.TotalDeposits, evt.Amount)
	if err != nil {
		return nil, err
	}
	u.TotalDeposits = total

	userID, amount := evt.UserID, evt.Amount
	tx.journal(func(b *ledger.Batch) { e.journalGen.Deposit(b, userID, amount) })
	tx.custody = append(tx.custody, func(ctx context.Context) error {
		if err := e.custody.Debit(ctx, userID.String(), state.QuoteBankIndex, amount); err != nil {
			return errs.Wrap(errs.CodeCollateralTransferFailed, err, "deposit")
		}
		return nil
	})
	return &Result{EventType: evt.EventType(), Account: u}, nil
}

// handleWithdraw refuses to leave a negative deposit or an account below its
// initial margin requirement.
func (e *Engine) handleWithdraw(tx *txn, evt *event.Withdraw) (*Result, error) {
	if evt.Amount <= 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "withdraw amount must be positive")
	}
	if err := tx.lockUser(evt.UserID); err != nil {
		return nil, err
	}
	u := tx.user
	if err := u.ApplyCollateral(-evt.Amount); err != nil {
		return nil, err
	}
	if u.CollateralValue() < 0 {
		return nil, errs.New(errs.CodeInsufficientCollateral, "withdraw %d exceeds deposit", evt.Amount)
	}
	margin, err := state.CalculateMargin(u, tx.view())
	if err != nil {
		return nil, err
	}
	if !margin.Meets(state.MarginRequirementInitial) {
		return nil, errs.New(errs.CodeInsufficientCollateral,
			"collateral %d after withdraw below initial requirement %d",
			margin.TotalCollateral, margin.InitialMarginRequirement)
	}
	total, err := fpmath.CheckedAdd(u.TotalWithdrawals, evt.Amount)
	if err != nil {
		return nil, err
	}
	u.TotalWithdrawals = total

	userID, amount := evt.UserID, evt.Amount
	tx.journal(func(b *ledger.Batch) { e.journalGen.Withdrawal(b, userID, amount) })
	tx.custody = append(tx.custody, func(ctx context.Context) error {
		if err := e.custody.Credit(ctx, userID.String(), state.QuoteBankIndex, amount); err != nil {
			return errs.Wrap(errs.CodeCollateralTransferFailed, err, "withdraw")
		}
		return nil
	})
	return &Result{EventType: evt.EventType(), Account: u, Margin: &margin}, nil
}

// handleSettlePnl settles any LP counter-flow first so the pnl includes it.
func (e *Engine) handleSettlePnl(tx *txn, evt *event.SettlePnl) (*Result, error) {
	if err := tx.lockMarket(evt.Market); err != nil {
		return nil, err
	}
	if err := tx.lockUser(evt.UserID); err != nil {
		return nil, err
	}
	m, u := tx.market, tx.user
	pos := u.Position(evt.Market)
	if pos == nil {
		return nil, errs.New(errs.CodeInvalidArgument, "user %s has no position in market %d", evt.UserID, evt.Market)
	}

	res := &Result{EventType: evt.EventType()}
	if pos.IsLp() {
		s, err := e.settleLp(m, pos)
		if err != nil {
			return nil, err
		}
		res.LpSettlement = s
	}

	pnl, err := state.SettlePnl(m, u, pos)
	if err != nil {
		return nil, err
	}
	res.Pnl = &pnl

	userID, marketIndex, settled := evt.UserID, evt.Market, pnl.Settled
	tx.journal(func(b *ledger.Batch) { e.journalGen.PnlSettlement(b, userID, marketIndex, settled) })

	e.prune(tx)
	res.Account, res.Market = u, m
	return res, nil
}
