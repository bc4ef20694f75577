package amm

import (
	"math/big"

	"VammLedger/internal/errs"
	fpmath "VammLedger/internal/math"
)

// CalculateSwapOutput moves the input reserve by swapAmount and derives the
// output reserve from the invariant sqrtK^2, truncated.
func CalculateSwapOutput(inputReserve, swapAmount int64, dir SwapDirection, sqrtK int64) (newInput, newOutput int64, err error) {
	if swapAmount < 0 {
		return 0, 0, errs.New(errs.CodeInvalidArgument, "negative swap amount")
	}
	if dir == SwapDirectionAdd {
		newInput, err = fpmath.CheckedAdd(inputReserve, swapAmount)
	} else {
		newInput, err = fpmath.CheckedSub(inputReserve, swapAmount)
	}
	if err != nil {
		return 0, 0, err
	}
	if newInput <= 0 {
		return 0, 0, errs.New(errs.CodeTradeSizeTooLarge, "swap drains reserve")
	}
	q, err := fpmath.QuoRound(fpmath.Square(sqrtK), big.NewInt(newInput), fpmath.RoundDown)
	if err != nil {
		return 0, 0, err
	}
	newOutput, err = fpmath.ToInt64(q)
	if err != nil {
		return 0, 0, err
	}
	return newInput, newOutput, nil
}

// CalculateQuoteAssetAmountSwapped converts a quote reserve delta into quote
// precision. When the trader pays (base removed) the amount rounds up,
// otherwise down.
func CalculateQuoteAssetAmountSwapped(quoteReserveDelta, pegMultiplier int64, dir SwapDirection) (int64, error) {
	mode := fpmath.RoundDown
	if dir == SwapDirectionRemove {
		mode = fpmath.RoundUp
	}
	delta, err := fpmath.CheckedAbs(quoteReserveDelta)
	if err != nil {
		return 0, err
	}
	return fpmath.ReserveToQuote(delta, pegMultiplier, mode)
}

// MaxBaseAssetAmount is the largest base amount a single swap may move, or 0
// when unbounded.
func (a *AMM) MaxBaseAssetAmount() int64 {
	if a.MaxBaseAssetAmountRatio <= 0 {
		return 0
	}
	return a.BaseAssetReserve / a.MaxBaseAssetAmountRatio
}

// StandardizeBaseAssetAmount rounds a trade toward zero to the step size.
func (a *AMM) StandardizeBaseAssetAmount(amount int64) int64 {
	std, _ := fpmath.StandardizeToStep(amount, a.BaseAssetAmountStepSize)
	return std
}

// SwapResult describes one trade against the curve.
type SwapResult struct {
	Direction Direction `json:"direction"`
	// signed trader base delta, positive for longs
	BaseAssetAmount int64 `json:"base_asset_amount"`
	// unsigned quote exchanged before fees
	QuoteAssetAmount int64 `json:"quote_asset_amount"`
	Fee              int64 `json:"fee"`
	// signed delta to the trader's quote, fee included
	TraderQuoteDelta int64 `json:"trader_quote_delta"`

	LpBaseDelta  int64 `json:"lp_base_delta"`
	LpQuoteDelta int64 `json:"lp_quote_delta"`
	LpFee        int64 `json:"lp_fee"`

	PriceBefore int64 `json:"price_before"`
	PriceAfter  int64 `json:"price_after"`
}

// SwapBase trades baseAssetAmount (unsigned) in direction against the curve.
// The amount is standardized to the step size first. A zero limitPrice
// disables the slippage check. On error the AMM is unchanged.
func (a *AMM) SwapBase(direction Direction, baseAssetAmount, limitPrice int64) (*SwapResult, error) {
	amount := a.StandardizeBaseAssetAmount(baseAssetAmount)
	if amount <= 0 {
		return nil, errs.New(errs.CodeTradeSizeTooSmall, "base %d below step %d", baseAssetAmount, a.BaseAssetAmountStepSize)
	}
	if max := a.MaxBaseAssetAmount(); max > 0 && amount > max {
		return nil, errs.New(errs.CodeTradeSizeTooLarge, "base %d exceeds max %d", amount, max)
	}

	priceBefore, err := a.MarkPrice()
	if err != nil {
		return nil, err
	}

	swapDir := SwapDirectionFor(direction)
	newBase, newQuote, err := CalculateSwapOutput(a.BaseAssetReserve, amount, swapDir, a.SqrtK)
	if err != nil {
		return nil, err
	}
	quote, err := CalculateQuoteAssetAmountSwapped(newQuote-a.QuoteAssetReserve, a.PegMultiplier, swapDir)
	if err != nil {
		return nil, err
	}
	priceAfter, err := CalculatePrice(newQuote, newBase, a.PegMultiplier)
	if err != nil {
		return nil, err
	}
	if limitPrice > 0 {
		if direction == DirectionLong && priceAfter > limitPrice {
			return nil, errs.New(errs.CodeSlippageExceeded, "long fill price %d above limit %d", priceAfter, limitPrice)
		}
		if direction == DirectionShort && priceAfter < limitPrice {
			return nil, errs.New(errs.CodeSlippageExceeded, "short fill price %d below limit %d", priceAfter, limitPrice)
		}
	}

	fee, err := a.CalculateFee(quote)
	if err != nil {
		return nil, err
	}

	res := &SwapResult{
		Direction:        direction,
		BaseAssetAmount:  amount,
		QuoteAssetAmount: quote,
		Fee:              fee,
		TraderQuoteDelta: quote - fee,
		PriceBefore:      priceBefore,
		PriceAfter:       priceAfter,
	}
	if direction == DirectionLong {
		res.TraderQuoteDelta = -(quote + fee)
	} else {
		res.BaseAssetAmount = -amount
	}

	// compute everything on a copy so a late overflow leaves a untouched
	next := *a
	next.BaseAssetReserve = newBase
	next.QuoteAssetReserve = newQuote
	if err := next.absorbTrade(res); err != nil {
		return nil, err
	}
	*a = next
	return res, nil
}

// absorbTrade books the trader flow: net position totals, the LP per-share
// index, and the fee split between LPs and the protocol.
func (a *AMM) absorbTrade(res *SwapResult) error {
	var err error
	if a.NetBaseAssetAmount, err = fpmath.CheckedAdd(a.NetBaseAssetAmount, res.BaseAssetAmount); err != nil {
		return err
	}

	if a.UserLpShares > 0 {
		perLpBase, err := fpmath.MulDiv(-res.BaseAssetAmount, fpmath.LpSharePrecision, a.SqrtK)
		if err != nil {
			return err
		}
		perLpQuote, err := fpmath.MulDiv(-res.TraderQuoteDelta, fpmath.LpSharePrecision, a.SqrtK)
		if err != nil {
			return err
		}
		if res.LpBaseDelta, err = fpmath.MulDiv(perLpBase, a.UserLpShares, fpmath.LpSharePrecision); err != nil {
			return err
		}
		if res.LpQuoteDelta, err = fpmath.MulDiv(perLpQuote, a.UserLpShares, fpmath.LpSharePrecision); err != nil {
			return err
		}
		if res.LpFee, err = fpmath.MulDiv(res.Fee, a.UserLpShares, a.SqrtK); err != nil {
			return err
		}
		if a.MarketPositionPerLp.BaseAssetAmount, err = fpmath.CheckedAdd(a.MarketPositionPerLp.BaseAssetAmount, perLpBase); err != nil {
			return err
		}
		if a.MarketPositionPerLp.QuoteAssetAmount, err = fpmath.CheckedAdd(a.MarketPositionPerLp.QuoteAssetAmount, perLpQuote); err != nil {
			return err
		}
		if a.NetUnsettledLpBaseAssetAmount, err = fpmath.CheckedAdd(a.NetUnsettledLpBaseAssetAmount, res.LpBaseDelta); err != nil {
			return err
		}
	}

	if a.BaseAssetAmountWithAmm, err = fpmath.CheckedAdd(a.BaseAssetAmountWithAmm, res.BaseAssetAmount+res.LpBaseDelta); err != nil {
		return err
	}

	ammFee := res.Fee - res.LpFee
	if a.TotalFee, err = fpmath.CheckedAdd(a.TotalFee, ammFee); err != nil {
		return err
	}
	if a.TotalFeeMinusDistributions, err = fpmath.CheckedAdd(a.TotalFeeMinusDistributions, ammFee); err != nil {
		return err
	}
	return nil
}

// BaseAssetAmountToPrice returns the base amount that moves the curve price
// to limitPrice in direction, standardized to the step size. Zero means the
// price is already at or beyond the limit.
func (a *AMM) BaseAssetAmountToPrice(direction Direction, limitPrice int64) (int64, error) {
	if limitPrice <= 0 {
		return 0, errs.New(errs.CodeInvalidArgument, "limit price must be positive")
	}
	// price = k*peg*P/(B^2*PEG) so B^2 = k*peg*P/(price*PEG)
	sq := fpmath.Square(a.SqrtK)
	sq.Mul(sq, big.NewInt(a.PegMultiplier))
	sq.Mul(sq, big.NewInt(fpmath.PriceToPegPrecisionRatio))
	sq, err := fpmath.QuoRound(sq, big.NewInt(limitPrice), fpmath.RoundDown)
	if err != nil {
		return 0, err
	}
	root := new(big.Int).Sqrt(sq)
	target, err := fpmath.ToInt64(root)
	if err != nil {
		return 0, err
	}

	var amount int64
	switch direction {
	case DirectionLong:
		// buying lowers B; the price reaches the limit at B = target
		if target < a.BaseAssetReserve {
			amount = a.BaseAssetReserve - target
		}
	case DirectionShort:
		if target > a.BaseAssetReserve {
			amount = target - a.BaseAssetReserve
		}
	}
	amount = a.StandardizeBaseAssetAmount(amount)

	// truncation can leave the boundary fill one unit past the limit
	for amount > 0 {
		ok, err := a.fillWithinLimit(direction, amount, limitPrice)
		if err != nil {
			return 0, err
		}
		if ok {
			break
		}
		amount = a.StandardizeBaseAssetAmount(amount - fpmath.Max(a.BaseAssetAmountStepSize, 1))
	}
	return amount, nil
}

func (a *AMM) fillWithinLimit(direction Direction, amount, limitPrice int64) (bool, error) {
	newBase, newQuote, err := CalculateSwapOutput(a.BaseAssetReserve, amount, SwapDirectionFor(direction), a.SqrtK)
	if err != nil {
		return false, err
	}
	price, err := CalculatePrice(newQuote, newBase, a.PegMultiplier)
	if err != nil {
		return false, err
	}
	if direction == DirectionLong {
		return price <= limitPrice, nil
	}
	return price >= limitPrice, nil
}
