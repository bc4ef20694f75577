package math

import (
	"math/big"
)

// SecondsPerDay is the horizon over which a full mark/oracle spread is paid.
const SecondsPerDay int64 = 86_400

var fundingPaymentDivisor = new(big.Int).Mul(
	big.NewInt(BaseToQuotePrecisionRatio),
	big.NewInt(FundingRatePrecision),
)

// ComputeFundingRate returns the per-unit funding owed by longs for one
// period, in FundingRatePrecision. Positive = longs pay shorts.
//
//	rate = (markTwap - oracleTwap) * FundingPaymentScale * period / SecondsPerDay
func ComputeFundingRate(markTwap, oracleTwap, periodSeconds int64) (int64, error) {
	spread, err := CheckedSub(markTwap, oracleTwap)
	if err != nil {
		return 0, err
	}
	num := new(big.Int).Mul(big.NewInt(spread), big.NewInt(FundingPaymentScale))
	num.Mul(num, big.NewInt(periodSeconds))
	q, err := QuoRound(num, big.NewInt(SecondsPerDay), RoundDown)
	if err != nil {
		return 0, err
	}
	return ToInt64(q)
}

// ComputeFundingPayment returns the signed quote amount credited to a position
// holding base between two readings of its cumulative funding index.
// Amounts owed round away from zero and amounts received round toward zero,
// so rounding never pays out more than is collected.
func ComputeFundingPayment(base, cumulativeNow, cumulativeLast int64) (int64, error) {
	delta, err := CheckedSub(cumulativeNow, cumulativeLast)
	if err != nil {
		return 0, err
	}
	if base == 0 || delta == 0 {
		return 0, nil
	}
	num := new(big.Int).Mul(big.NewInt(base), big.NewInt(delta))
	num.Neg(num)
	q, err := QuoRound(num, fundingPaymentDivisor, RoundFloor)
	if err != nil {
		return 0, err
	}
	return ToInt64(q)
}
