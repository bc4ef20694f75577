package core

import (
	"VammLedger/internal/errs"
	"VammLedger/internal/event"
	"VammLedger/internal/lp"
	"VammLedger/internal/state"
)

// position returns the user's position in the locked market, opening one
// and counting the user on the market when absent.
func (tx *txn) position() *state.UserPosition {
	mi := tx.market.MarketIndex
	if pos := tx.user.Position(mi); pos != nil {
		return pos
	}
	tx.market.NumberOfUsers++
	return tx.user.GetOrCreatePosition(mi)
}

// prune drops the user's position in the locked market once it holds
// nothing.
func (e *Engine) prune(tx *txn) {
	if tx.user.RemovePosition(tx.market.MarketIndex) && tx.market.NumberOfUsers > 0 {
		tx.market.NumberOfUsers--
	}
}

func (e *Engine) settleLp(m *state.Market, pos *state.UserPosition) (*lp.Settlement, error) {
	s, err := lp.Settle(&m.AMM, pos)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// handleAddLiquidity requires the account to carry the initial margin of
// its LP notional after minting.
func (e *Engine) handleAddLiquidity(tx *txn, evt *event.AddLiquidity) (*Result, error) {
	if err := tx.lockMarket(evt.Market); err != nil {
		return nil, err
	}
	if err := tx.lockUser(evt.UserID); err != nil {
		return nil, err
	}
	m := tx.market
	pos := tx.position()

	ch, err := lp.Mint(&m.AMM, pos, evt.Shares, tx.now)
	if err != nil {
		return nil, err
	}

	margin, err := state.CalculateMargin(tx.user, tx.view())
	if err != nil {
		return nil, err
	}
	if !margin.Meets(state.MarginRequirementInitial) {
		return nil, errs.New(errs.CodeInsufficientCollateral,
			"collateral %d below initial requirement %d for %d lp shares",
			margin.TotalCollateral, margin.InitialMarginRequirement, evt.Shares)
	}
	return &Result{
		EventType:    evt.EventType(),
		Liquidity:    ch,
		LpSettlement: &ch.Settlement,
		Margin:       &margin,
		Market:       m,
		Account:      tx.user,
	}, nil
}

func (e *Engine) handleRemoveLiquidity(tx *txn, evt *event.RemoveLiquidity) (*Result, error) {
	if err := tx.lockMarket(evt.Market); err != nil {
		return nil, err
	}
	if err := tx.lockUser(evt.UserID); err != nil {
		return nil, err
	}
	m := tx.market
	pos := tx.user.Position(evt.Market)
	if pos == nil || !pos.IsLp() {
		return nil, errs.New(errs.CodeInsufficientLpShares, "user %s holds no lp shares in market %d", evt.UserID, evt.Market)
	}

	ch, err := lp.Burn(&m.AMM, pos, evt.Shares, tx.now)
	if err != nil {
		return nil, err
	}
	e.prune(tx)
	return &Result{
		EventType:    evt.EventType(),
		Liquidity:    ch,
		LpSettlement: &ch.Settlement,
		Market:       m,
		Account:      tx.user,
	}, nil
}

// handleSettleLP is permissionless: anyone may settle any LP.
func (e *Engine) handleSettleLP(tx *txn, evt *event.SettleLP) (*Result, error) {
	if err := tx.lockMarket(evt.Market); err != nil {
		return nil, err
	}
	if err := tx.lockUser(evt.UserID); err != nil {
		return nil, err
	}
	pos := tx.user.Position(evt.Market)
	if pos == nil {
		return nil, errs.New(errs.CodeInsufficientLpShares, "user %s has no position in market %d", evt.UserID, evt.Market)
	}
	s, err := e.settleLp(tx.market, pos)
	if err != nil {
		return nil, err
	}
	return &Result{
		EventType:    evt.EventType(),
		LpSettlement: s,
		Market:       tx.market,
		Account:      tx.user,
	}, nil
}
