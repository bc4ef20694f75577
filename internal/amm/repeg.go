package amm

import (
	"math/big"

	"VammLedger/internal/errs"
	fpmath "VammLedger/internal/math"
)

// CloseValue is the signed quote the users' net position would realize if
// closed against reserves (base, quote) at peg. Positive means the curve owes
// the users.
func CloseValue(baseReserve, quoteReserve, peg, netUserBase int64) (int64, error) {
	if netUserBase == 0 {
		return 0, nil
	}
	newBase, err := fpmath.CheckedAdd(baseReserve, netUserBase)
	if err != nil {
		return 0, err
	}
	if newBase <= 0 {
		return 0, errs.New(errs.CodeTradeSizeTooLarge, "net position exceeds base reserve")
	}
	k := new(big.Int).Mul(big.NewInt(baseReserve), big.NewInt(quoteReserve))
	nq, err := fpmath.QuoRound(k, big.NewInt(newBase), fpmath.RoundDown)
	if err != nil {
		return 0, err
	}
	newQuote, err := fpmath.ToInt64(nq)
	if err != nil {
		return 0, err
	}
	return fpmath.MulDiv(quoteReserve-newQuote, peg, fpmath.AmmTimesPegToQuotePrecisionRatio)
}

// AdjustResult reports a fee-funded curve change.
type AdjustResult struct {
	Cost         int64 `json:"cost"`
	PegBefore    int64 `json:"peg_before"`
	PegAfter     int64 `json:"peg_after"`
	SqrtKBefore  int64 `json:"sqrt_k_before"`
	SqrtKAfter   int64 `json:"sqrt_k_after"`
	PriceBefore  int64 `json:"price_before"`
	PriceAfter   int64 `json:"price_after"`
	FeePoolAfter int64 `json:"fee_pool_after"`
}

// RepegCost is the change in close value from moving the peg to newPeg.
func (a *AMM) RepegCost(newPeg int64) (int64, error) {
	before, err := CloseValue(a.BaseAssetReserve, a.QuoteAssetReserve, a.PegMultiplier, a.BaseAssetAmountWithAmm)
	if err != nil {
		return 0, err
	}
	after, err := CloseValue(a.BaseAssetReserve, a.QuoteAssetReserve, newPeg, a.BaseAssetAmountWithAmm)
	if err != nil {
		return 0, err
	}
	return fpmath.CheckedSub(after, before)
}

// PegFromTargetPrice returns the peg that puts the mark price at target.
func (a *AMM) PegFromTargetPrice(target int64) (int64, error) {
	num := new(big.Int).Mul(big.NewInt(target), big.NewInt(a.BaseAssetReserve))
	den := new(big.Int).Mul(big.NewInt(a.QuoteAssetReserve), big.NewInt(fpmath.PriceToPegPrecisionRatio))
	q, err := fpmath.QuoRound(num, den, fpmath.RoundHalfEven)
	if err != nil {
		return 0, err
	}
	peg, err := fpmath.ToInt64(q)
	if err != nil {
		return 0, err
	}
	return fpmath.Max(peg, 1), nil
}

// Repeg moves the peg, charging any cost to the fee pool.
func (a *AMM) Repeg(newPeg int64) (*AdjustResult, error) {
	if newPeg <= 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "peg must be positive")
	}
	cost, err := a.RepegCost(newPeg)
	if err != nil {
		return nil, err
	}
	res, err := a.beginAdjust(cost)
	if err != nil {
		return nil, err
	}
	a.PegMultiplier = newPeg
	return a.finishAdjust(res, cost)
}

// AdjustKCost is the change in close value from resizing the curve.
func (a *AMM) AdjustKCost(newSqrtK int64) (int64, error) {
	before, err := CloseValue(a.BaseAssetReserve, a.QuoteAssetReserve, a.PegMultiplier, a.BaseAssetAmountWithAmm)
	if err != nil {
		return 0, err
	}
	scaled := *a
	if err := scaled.ScaleLiquidity(newSqrtK); err != nil {
		return 0, err
	}
	after, err := CloseValue(scaled.BaseAssetReserve, scaled.QuoteAssetReserve, scaled.PegMultiplier, a.BaseAssetAmountWithAmm)
	if err != nil {
		return 0, err
	}
	return fpmath.CheckedSub(after, before)
}

// UpdateK resizes the curve depth at a fixed price, charging any cost to the
// fee pool. Depth can never fall below the outstanding LP shares.
func (a *AMM) UpdateK(newSqrtK int64) (*AdjustResult, error) {
	if newSqrtK < a.UserLpShares || newSqrtK <= 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "sqrtK %d below lp shares %d", newSqrtK, a.UserLpShares)
	}
	if newSqrtK > MaxReserve {
		return nil, errs.New(errs.CodeInvalidArgument, "sqrtK %d above %d", newSqrtK, MaxReserve)
	}
	cost, err := a.AdjustKCost(newSqrtK)
	if err != nil {
		return nil, err
	}
	res, err := a.beginAdjust(cost)
	if err != nil {
		return nil, err
	}
	if err := a.ScaleLiquidity(newSqrtK); err != nil {
		return nil, err
	}
	return a.finishAdjust(res, cost)
}

func (a *AMM) beginAdjust(cost int64) (*AdjustResult, error) {
	if cost > 0 && cost > a.TotalFeeMinusDistributions {
		return nil, errs.New(errs.CodeInsufficientFeesAvailable, "adjustment cost %d exceeds fee pool %d", cost, a.TotalFeeMinusDistributions)
	}
	price, err := a.MarkPrice()
	if err != nil {
		return nil, err
	}
	return &AdjustResult{
		PegBefore:   a.PegMultiplier,
		SqrtKBefore: a.SqrtK,
		PriceBefore: price,
	}, nil
}

func (a *AMM) finishAdjust(res *AdjustResult, cost int64) (*AdjustResult, error) {
	pool, err := fpmath.CheckedSub(a.TotalFeeMinusDistributions, cost)
	if err != nil {
		return nil, err
	}
	price, err := a.MarkPrice()
	if err != nil {
		return nil, err
	}
	a.TotalFeeMinusDistributions = pool
	res.Cost = cost
	res.PegAfter = a.PegMultiplier
	res.SqrtKAfter = a.SqrtK
	res.PriceAfter = price
	res.FeePoolAfter = pool
	return res, nil
}
