package state

import (
	fpmath "VammLedger/internal/math"
)

// PnlSettlement reports one move of pnl between a position and its bank.
type PnlSettlement struct {
	MarketIndex    uint16 `json:"market_index"`
	FundingPayment int64  `json:"funding_payment"`
	// pnl outstanding before settlement
	Unsettled int64 `json:"unsettled"`
	// amount credited to the bank, negative when the user paid
	Settled   int64 `json:"settled"`
	PoolAfter int64 `json:"pool_after"`
}

// SettlePnl books funding, then moves the position's unsettled pnl into
// the user's quote bank through the market pnl pool. Losses are always
// settled in full and may turn the deposit into a borrow; gains are capped
// by what the pool holds.
func SettlePnl(m *Market, acct *UserAccount, pos *UserPosition) (PnlSettlement, error) {
	res := PnlSettlement{MarketIndex: m.MarketIndex}

	price, err := m.AMM.MarkPrice()
	if err != nil {
		return res, err
	}
	if res.FundingPayment, err = pos.SettleFunding(&m.AMM); err != nil {
		return res, err
	}
	if res.Unsettled, err = pos.UnsettledPnL(price); err != nil {
		return res, err
	}

	settle := res.Unsettled
	if settle > 0 {
		settle = fpmath.Min(settle, fpmath.Max(m.PnlPool, 0))
	}
	pool, err := fpmath.CheckedSub(m.PnlPool, settle)
	if err != nil {
		return res, err
	}
	quote, err := fpmath.CheckedSub(pos.QuoteAssetAmount, settle)
	if err != nil {
		return res, err
	}
	settled, err := fpmath.CheckedAdd(pos.SettledPnl, settle)
	if err != nil {
		return res, err
	}
	if err := acct.ApplyCollateral(settle); err != nil {
		return res, err
	}

	m.PnlPool = pool
	pos.QuoteAssetAmount = quote
	pos.SettledPnl = settled
	res.Settled = settle
	res.PoolAfter = pool
	return res, nil
}
