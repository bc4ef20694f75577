package amm

import (
	fpmath "VammLedger/internal/math"
)

// FundingUpdate is the outcome of one funding period.
type FundingUpdate struct {
	Rate      int64 `json:"rate"`
	LongRate  int64 `json:"long_rate"`
	ShortRate int64 `json:"short_rate"`
	// quote the curve paid out (negative when it collected)
	AmmPayment int64 `json:"amm_payment"`
	// receiving side was scaled down to what the fee pool could fund
	Capped                     bool  `json:"capped"`
	MarkPriceTwap              int64 `json:"mark_price_twap"`
	OraclePriceTwap            int64 `json:"oracle_price_twap"`
	CumulativeFundingRateLong  int64 `json:"cumulative_funding_rate_long"`
	CumulativeFundingRateShort int64 `json:"cumulative_funding_rate_short"`
	Ts                         int64 `json:"ts"`
}

// FundingDue reports whether a funding period has elapsed at now.
func (a *AMM) FundingDue(now int64) bool {
	return now-a.LastFundingRateTs >= a.FundingPeriod && now > a.LastFundingRateTs
}

// UpdateFundingRate advances the cumulative funding indices when a period
// has elapsed. It returns nil without error otherwise.
//
// The payer side pays the full rate. The imbalance between the two sides is
// the curve's own share, drawn from or returned to the fee pool; when the
// pool cannot cover it the receiving side's rate is reduced to what is
// actually funded.
func (a *AMM) UpdateFundingRate(now int64) (*FundingUpdate, error) {
	if !a.FundingDue(now) {
		return nil, nil
	}
	if err := a.UpdateMarkTwaps(now); err != nil {
		return nil, err
	}

	period := a.FundingPeriod
	if period == 0 {
		period = now - a.LastFundingRateTs
	}
	rate, err := fpmath.ComputeFundingRate(a.LastMarkPriceTwap, a.LastOraclePriceTwap, period)
	if err != nil {
		return nil, err
	}

	upd := &FundingUpdate{
		Rate:            rate,
		LongRate:        rate,
		ShortRate:       rate,
		MarkPriceTwap:   a.LastMarkPriceTwap,
		OraclePriceTwap: a.LastOraclePriceTwap,
		Ts:              now,
	}

	// positive quote means the holders receive
	longFlow, err := fpmath.ComputeFundingPayment(a.BaseAssetAmountLong, rate, 0)
	if err != nil {
		return nil, err
	}
	shortFlow, err := fpmath.ComputeFundingPayment(a.BaseAssetAmountShort, rate, 0)
	if err != nil {
		return nil, err
	}
	ammPayment, err := fpmath.CheckedAdd(longFlow, shortFlow)
	if err != nil {
		return nil, err
	}

	budget := fpmath.Max(a.TotalFeeMinusDistributions, 0)
	if ammPayment > budget {
		// collected from payers plus what the pool can spare
		var collected, owed int64
		if rate > 0 {
			collected, owed = -longFlow, shortFlow
		} else {
			collected, owed = -shortFlow, longFlow
		}
		funded := collected + budget
		scaled, err := fpmath.MulDiv(rate, funded, owed)
		if err != nil {
			return nil, err
		}
		if rate > 0 {
			upd.ShortRate = scaled
		} else {
			upd.LongRate = scaled
		}
		upd.Capped = true
		ammPayment = budget
	}
	upd.AmmPayment = ammPayment

	if a.TotalFeeMinusDistributions, err = fpmath.CheckedSub(a.TotalFeeMinusDistributions, ammPayment); err != nil {
		return nil, err
	}
	if a.CumulativeFundingRateLong, err = fpmath.CheckedAdd(a.CumulativeFundingRateLong, upd.LongRate); err != nil {
		return nil, err
	}
	if a.CumulativeFundingRateShort, err = fpmath.CheckedAdd(a.CumulativeFundingRateShort, upd.ShortRate); err != nil {
		return nil, err
	}
	a.LastFundingRate = rate
	a.LastFundingRateTs = now
	upd.CumulativeFundingRateLong = a.CumulativeFundingRateLong
	upd.CumulativeFundingRateShort = a.CumulativeFundingRateShort
	return upd, nil
}

// CumulativeFundingRate returns the index a position of the given sign
// accrues against.
func (a *AMM) CumulativeFundingRate(base int64) int64 {
	if base < 0 {
		return a.CumulativeFundingRateShort
	}
	return a.CumulativeFundingRateLong
}
