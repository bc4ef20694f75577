package state

import (
	"VammLedger/internal/amm"
	fpmath "VammLedger/internal/math"
)

// UserPosition is one user's exposure in one market. Quote amounts follow the
// signed cash-flow convention: a long's quote is negative.
type UserPosition struct {
	MarketIndex      uint16 `json:"market_index"`
	BaseAssetAmount  int64  `json:"base_asset_amount"`
	QuoteAssetAmount int64  `json:"quote_asset_amount"`
	QuoteEntryAmount int64  `json:"quote_entry_amount"`

	LpShares                     int64 `json:"lp_shares"`
	LastNetBaseAssetAmountPerLp  int64 `json:"last_net_base_asset_amount_per_lp"`
	LastNetQuoteAssetAmountPerLp int64 `json:"last_net_quote_asset_amount_per_lp"`
	// fragments too small to carry in per-share terms
	RemainderBaseAssetAmount  int64 `json:"remainder_base_asset_amount"`
	RemainderQuoteAssetAmount int64 `json:"remainder_quote_asset_amount"`
	LastLpAddTime             int64 `json:"last_lp_add_time"`

	LastCumulativeFundingRate int64 `json:"last_cumulative_funding_rate"`
	SettledPnl                int64 `json:"settled_pnl"`
	OpenOrders                uint8 `json:"open_orders"`
}

// PositionUpdate reports what one delta did to a position.
type PositionUpdate struct {
	FundingPayment int64 `json:"funding_payment"`
	RealizedPnl    int64 `json:"realized_pnl"`
	BaseBefore     int64 `json:"base_before"`
	BaseAfter      int64 `json:"base_after"`
}

// IsAvailable returns true when the slot holds nothing and can be reused.
func (p *UserPosition) IsAvailable() bool {
	return p.BaseAssetAmount == 0 &&
		p.QuoteAssetAmount == 0 &&
		p.LpShares == 0 &&
		p.OpenOrders == 0 &&
		p.RemainderBaseAssetAmount == 0 &&
		p.RemainderQuoteAssetAmount == 0
}

func (p *UserPosition) IsLp() bool { return p.LpShares > 0 }

// Direction of the open base, long when flat.
func (p *UserPosition) Direction() amm.Direction {
	if p.BaseAssetAmount < 0 {
		return amm.DirectionShort
	}
	return amm.DirectionLong
}

// PendingFunding is the funding a settle would book right now.
func (p *UserPosition) PendingFunding(cumulativeLong, cumulativeShort int64) (int64, error) {
	if p.BaseAssetAmount == 0 {
		return 0, nil
	}
	cum := cumulativeLong
	if p.BaseAssetAmount < 0 {
		cum = cumulativeShort
	}
	return fpmath.ComputeFundingPayment(p.BaseAssetAmount, cum, p.LastCumulativeFundingRate)
}

// SettleFunding books accrued funding into the quote amount and moves the
// checkpoint to the side's current index.
func (p *UserPosition) SettleFunding(a *amm.AMM) (int64, error) {
	payment, err := p.PendingFunding(a.CumulativeFundingRateLong, a.CumulativeFundingRateShort)
	if err != nil {
		return 0, err
	}
	quote, err := fpmath.CheckedAdd(p.QuoteAssetAmount, payment)
	if err != nil {
		return 0, err
	}
	p.QuoteAssetAmount = quote
	p.LastCumulativeFundingRate = a.CumulativeFundingRate(p.BaseAssetAmount)
	return payment, nil
}

// ApplyTrade settles funding, then books a signed base and quote delta
// against the position, keeping the curve's open-interest totals in step.
// On error neither the position nor the curve changes.
func (p *UserPosition) ApplyTrade(a *amm.AMM, baseDelta, quoteDelta int64) (PositionUpdate, error) {
	next := *p
	upd := PositionUpdate{BaseBefore: p.BaseAssetAmount}

	var err error
	if upd.FundingPayment, err = next.SettleFunding(a); err != nil {
		return PositionUpdate{}, err
	}
	if upd.RealizedPnl, err = next.applyDelta(baseDelta, quoteDelta); err != nil {
		return PositionUpdate{}, err
	}
	upd.BaseAfter = next.BaseAssetAmount

	a.TrackPositionBase(upd.BaseBefore, upd.BaseAfter)
	next.LastCumulativeFundingRate = a.CumulativeFundingRate(next.BaseAssetAmount)
	*p = next
	return upd, nil
}

// ApplyLpSettlement books settled LP counter-flow. Base, quote, funding and
// open-interest totals move as for a trade, but the settled quote is added
// to QuoteEntryAmount in full: settlement never releases or realizes entry.
func (p *UserPosition) ApplyLpSettlement(a *amm.AMM, baseDelta, quoteDelta int64) (PositionUpdate, error) {
	entry, err := fpmath.CheckedAdd(p.QuoteEntryAmount, quoteDelta)
	if err != nil {
		return PositionUpdate{}, err
	}
	upd, err := p.ApplyTrade(a, baseDelta, quoteDelta)
	if err != nil {
		return PositionUpdate{}, err
	}
	p.QuoteEntryAmount = entry
	upd.RealizedPnl = 0
	return upd, nil
}

// applyDelta moves base and quote and keeps QuoteEntryAmount as the cost
// basis of the open base. Reductions release entry pro rata; a flip closes
// the whole position and opens the rest at the trade's average price.
func (p *UserPosition) applyDelta(baseDelta, quoteDelta int64) (int64, error) {
	base := p.BaseAssetAmount
	newBase, err := fpmath.CheckedAdd(base, baseDelta)
	if err != nil {
		return 0, err
	}
	newQuote, err := fpmath.CheckedAdd(p.QuoteAssetAmount, quoteDelta)
	if err != nil {
		return 0, err
	}

	entry := p.QuoteEntryAmount
	var realized int64
	switch {
	case base == 0 && baseDelta == 0:
		realized = quoteDelta
	case base == 0 || baseDelta == 0 || fpmath.Sign(base) == fpmath.Sign(baseDelta):
		if entry, err = fpmath.CheckedAdd(entry, quoteDelta); err != nil {
			return 0, err
		}
	case fpmath.Abs(baseDelta) <= fpmath.Abs(base):
		released, err := fpmath.MulDiv(entry, fpmath.Abs(baseDelta), fpmath.Abs(base))
		if err != nil {
			return 0, err
		}
		if realized, err = fpmath.CheckedAdd(quoteDelta, released); err != nil {
			return 0, err
		}
		entry -= released
	default:
		closing, err := fpmath.MulDiv(quoteDelta, fpmath.Abs(base), fpmath.Abs(baseDelta))
		if err != nil {
			return 0, err
		}
		if realized, err = fpmath.CheckedAdd(closing, entry); err != nil {
			return 0, err
		}
		entry = quoteDelta - closing
	}

	p.BaseAssetAmount = newBase
	p.QuoteAssetAmount = newQuote
	p.QuoteEntryAmount = entry
	return realized, nil
}

// UnsettledPnL is the pnl not yet moved to the bank at price: the quote
// cash flows plus the value of the open base.
func (p *UserPosition) UnsettledPnL(price int64) (int64, error) {
	value, err := fpmath.BaseValue(p.BaseAssetAmount, price)
	if err != nil {
		return 0, err
	}
	return fpmath.CheckedAdd(p.QuoteAssetAmount, value)
}

// UnrealizedPnL is the open base's gain over its entry cost at price.
func (p *UserPosition) UnrealizedPnL(price int64) (int64, error) {
	value, err := fpmath.BaseValue(p.BaseAssetAmount, price)
	if err != nil {
		return 0, err
	}
	return fpmath.CheckedAdd(p.QuoteEntryAmount, value)
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *UserPosition) CanonicalBytes() []byte {
	buf := make([]byte, 0, 112)
	buf = append(buf, byte(p.MarketIndex), byte(p.MarketIndex>>8))
	buf = appendInt64sLE(buf,
		p.BaseAssetAmount,
		p.QuoteAssetAmount,
		p.QuoteEntryAmount,
		p.LpShares,
		p.LastNetBaseAssetAmountPerLp,
		p.LastNetQuoteAssetAmountPerLp,
		p.RemainderBaseAssetAmount,
		p.RemainderQuoteAssetAmount,
		p.LastLpAddTime,
		p.LastCumulativeFundingRate,
		p.SettledPnl,
	)
	return append(buf, p.OpenOrders)
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

func appendInt64sLE(buf []byte, vs ...int64) []byte {
	for _, v := range vs {
		buf = appendInt64LE(buf, v)
	}
	return buf
}
