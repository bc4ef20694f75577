package amm

import (
	fpmath "VammLedger/internal/math"
)

// CalculateNewTwap blends price into lastTwap weighted by elapsed time,
// with the elapsed weight capped at period. Readings at or before lastTs
// leave the TWAP unchanged.
func CalculateNewTwap(price, now, lastTwap, lastTs, period int64) (int64, error) {
	if lastTwap == 0 {
		return price, nil
	}
	if now <= lastTs {
		return lastTwap, nil
	}
	if period <= 0 {
		return price, nil
	}
	since := fpmath.Min(now-lastTs, period)
	fromStart := period - since

	weighted, err := fpmath.MulDiv(lastTwap, fromStart, period)
	if err != nil {
		return 0, err
	}
	fresh, err := fpmath.MulDiv(price, since, period)
	if err != nil {
		return 0, err
	}
	return fpmath.CheckedAdd(weighted, fresh)
}

func (a *AMM) twapPeriod() int64 {
	if a.FundingPeriod > 0 {
		return a.FundingPeriod
	}
	return 3600
}

// UpdateMarkTwaps folds the current mark, bid and ask prices into their
// TWAPs. Out-of-order timestamps are ignored.
func (a *AMM) UpdateMarkTwaps(now int64) error {
	if now <= a.LastMarkPriceTwapTs {
		return nil
	}
	mark, err := a.MarkPrice()
	if err != nil {
		return err
	}
	bid, ask, err := a.BidAskPrice()
	if err != nil {
		return err
	}
	period := a.twapPeriod()

	markTwap, err := CalculateNewTwap(mark, now, a.LastMarkPriceTwap, a.LastMarkPriceTwapTs, period)
	if err != nil {
		return err
	}
	bidTwap, err := CalculateNewTwap(bid, now, a.LastBidPriceTwap, a.LastMarkPriceTwapTs, period)
	if err != nil {
		return err
	}
	askTwap, err := CalculateNewTwap(ask, now, a.LastAskPriceTwap, a.LastMarkPriceTwapTs, period)
	if err != nil {
		return err
	}
	a.LastMarkPriceTwap = markTwap
	a.LastBidPriceTwap = bidTwap
	a.LastAskPriceTwap = askTwap
	a.LastMarkPriceTwapTs = now
	return nil
}

// UpdateOracle records a new oracle reading and its TWAP.
func (a *AMM) UpdateOracle(price, ts int64) error {
	if ts <= a.LastOraclePriceTwapTs {
		return nil
	}
	twap, err := CalculateNewTwap(price, ts, a.LastOraclePriceTwap, a.LastOraclePriceTwapTs, a.twapPeriod())
	if err != nil {
		return err
	}
	a.LastOraclePrice = price
	a.LastOraclePriceTwap = twap
	a.LastOraclePriceTwapTs = ts
	return nil
}
