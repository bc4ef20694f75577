// Package lp settles liquidity providers against the curve's per-share
// index and mints or burns their shares.
//
// Every trade against a curve with LP shares moves the per-share index by
// the counter-flow the pool absorbed. A provider's entitlement is the index
// movement since their checkpoint times their shares. Settlement moves the
// step-standardized part of it into the position and carries the rest by
// holding the checkpoint back.
package lp

import (
	"VammLedger/internal/amm"
	fpmath "VammLedger/internal/math"
	"VammLedger/internal/state"
)

// Settlement describes one settlement of an LP position.
type Settlement struct {
	MarketIndex uint16 `json:"market_index"`
	Shares      int64  `json:"shares"`

	// entitlement since the checkpoint, remainders included
	RawBaseAssetAmount  int64 `json:"raw_base_asset_amount"`
	RawQuoteAssetAmount int64 `json:"raw_quote_asset_amount"`

	// moved into the position
	BaseAssetAmount  int64 `json:"base_asset_amount"`
	QuoteAssetAmount int64 `json:"quote_asset_amount"`

	LastNetBaseAssetAmountPerLp  int64 `json:"last_net_base_asset_amount_per_lp"`
	LastNetQuoteAssetAmountPerLp int64 `json:"last_net_quote_asset_amount_per_lp"`
	RemainderBaseAssetAmount     int64 `json:"remainder_base_asset_amount"`
	RemainderQuoteAssetAmount    int64 `json:"remainder_quote_asset_amount"`

	Position state.PositionUpdate `json:"position"`
}

// Empty reports whether nothing moves into the position.
func (s *Settlement) Empty() bool {
	return s.BaseAssetAmount == 0 && s.QuoteAssetAmount == 0
}

// Calculate returns what Settle would do, without mutating anything.
func Calculate(a *amm.AMM, pos *state.UserPosition) (Settlement, error) {
	s := Settlement{MarketIndex: pos.MarketIndex, Shares: pos.LpShares}

	rawBase, rawQuote, err := entitlement(a, pos)
	if err != nil {
		return Settlement{}, err
	}
	s.RawBaseAssetAmount = rawBase
	s.RawQuoteAssetAmount = rawQuote

	std, remBase := fpmath.StandardizeToStep(rawBase, a.BaseAssetAmountStepSize)
	stdQuote := rawQuote
	if a.LpQuoteSettlement == amm.LpQuoteSettlementProRata && rawBase != 0 {
		if stdQuote, err = fpmath.MulDiv(rawQuote, std, rawBase); err != nil {
			return Settlement{}, err
		}
	}
	s.BaseAssetAmount = std
	s.QuoteAssetAmount = stdQuote

	carry, err := carryPerShare(a, pos.LpShares, remBase, rawQuote-stdQuote)
	if err != nil {
		return Settlement{}, err
	}
	s.LastNetBaseAssetAmountPerLp = carry.lastBase
	s.LastNetQuoteAssetAmountPerLp = carry.lastQuote
	s.RemainderBaseAssetAmount = carry.fragBase
	s.RemainderQuoteAssetAmount = carry.fragQuote
	return s, nil
}

// Settle moves the standardized entitlement into the position, adds the
// settled quote to its entry amount and advances its checkpoint. With no trades since the last settle it changes nothing.
// On error neither argument is modified.
func Settle(a *amm.AMM, pos *state.UserPosition) (Settlement, error) {
	s, err := Calculate(a, pos)
	if err != nil {
		return Settlement{}, err
	}

	nextAMM, next := *a, *pos
	if !s.Empty() {
		if s.Position, err = next.ApplyLpSettlement(&nextAMM, s.BaseAssetAmount, s.QuoteAssetAmount); err != nil {
			return Settlement{}, err
		}
		if err := nextAMM.SettleLpBase(s.BaseAssetAmount); err != nil {
			return Settlement{}, err
		}
	}
	next.LastNetBaseAssetAmountPerLp = s.LastNetBaseAssetAmountPerLp
	next.LastNetQuoteAssetAmountPerLp = s.LastNetQuoteAssetAmountPerLp
	next.RemainderBaseAssetAmount = s.RemainderBaseAssetAmount
	next.RemainderQuoteAssetAmount = s.RemainderQuoteAssetAmount

	*a, *pos = nextAMM, next
	return s, nil
}

// entitlement is the index movement since the checkpoint times the shares,
// plus fragments carried from earlier settlements.
func entitlement(a *amm.AMM, pos *state.UserPosition) (base, quote int64, err error) {
	base, quote = pos.RemainderBaseAssetAmount, pos.RemainderQuoteAssetAmount
	if pos.LpShares == 0 {
		return base, quote, nil
	}
	idx := a.MarketPositionPerLp

	dBase, err := fpmath.CheckedSub(idx.BaseAssetAmount, pos.LastNetBaseAssetAmountPerLp)
	if err != nil {
		return 0, 0, err
	}
	dQuote, err := fpmath.CheckedSub(idx.QuoteAssetAmount, pos.LastNetQuoteAssetAmountPerLp)
	if err != nil {
		return 0, 0, err
	}
	b, err := fpmath.MulDiv(dBase, pos.LpShares, fpmath.LpSharePrecision)
	if err != nil {
		return 0, 0, err
	}
	q, err := fpmath.MulDiv(dQuote, pos.LpShares, fpmath.LpSharePrecision)
	if err != nil {
		return 0, 0, err
	}
	if base, err = fpmath.CheckedAdd(base, b); err != nil {
		return 0, 0, err
	}
	if quote, err = fpmath.CheckedAdd(quote, q); err != nil {
		return 0, 0, err
	}
	return base, quote, nil
}

type carried struct {
	lastBase, lastQuote int64
	fragBase, fragQuote int64
}

// carryPerShare holds the checkpoint back so that shares re-derive the
// remainder. What the per-share truncation loses is kept as a fragment, so
// re-deriving yields exactly remBase and remQuote.
func carryPerShare(a *amm.AMM, shares, remBase, remQuote int64) (carried, error) {
	idx := a.MarketPositionPerLp
	if shares == 0 {
		return carried{
			lastBase:  idx.BaseAssetAmount,
			lastQuote: idx.QuoteAssetAmount,
			fragBase:  remBase,
			fragQuote: remQuote,
		}, nil
	}

	var c carried
	perBase, fragBase, err := perShare(remBase, shares)
	if err != nil {
		return carried{}, err
	}
	perQuote, fragQuote, err := perShare(remQuote, shares)
	if err != nil {
		return carried{}, err
	}
	if c.lastBase, err = fpmath.CheckedSub(idx.BaseAssetAmount, perBase); err != nil {
		return carried{}, err
	}
	if c.lastQuote, err = fpmath.CheckedSub(idx.QuoteAssetAmount, perQuote); err != nil {
		return carried{}, err
	}
	c.fragBase, c.fragQuote = fragBase, fragQuote
	return c, nil
}

func perShare(amount, shares int64) (per, frag int64, err error) {
	if per, err = fpmath.MulDiv(amount, fpmath.LpSharePrecision, shares); err != nil {
		return 0, 0, err
	}
	back, err := fpmath.MulDiv(per, shares, fpmath.LpSharePrecision)
	if err != nil {
		return 0, 0, err
	}
	return per, amount - back, nil
}
