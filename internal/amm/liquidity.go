package amm

import (
	"VammLedger/internal/errs"
	fpmath "VammLedger/internal/math"
)

// ScaleLiquidity resizes both reserves by newSqrtK/SqrtK. The price is kept
// up to truncation of each reserve.
func (a *AMM) ScaleLiquidity(newSqrtK int64) error {
	if newSqrtK <= 0 {
		return errs.New(errs.CodeInvalidArgument, "sqrtK must stay positive")
	}
	if a.SqrtK <= 0 {
		return errs.Overflow("scale from empty curve")
	}
	base, err := fpmath.MulDiv(a.BaseAssetReserve, newSqrtK, a.SqrtK)
	if err != nil {
		return err
	}
	quote, err := fpmath.MulDiv(a.QuoteAssetReserve, newSqrtK, a.SqrtK)
	if err != nil {
		return err
	}
	if base <= 0 || quote <= 0 {
		return errs.New(errs.CodeInvalidArgument, "scaled reserves vanish")
	}
	a.BaseAssetReserve = base
	a.QuoteAssetReserve = quote
	a.SqrtK = newSqrtK
	return nil
}

// MintLpShares deepens the curve by amount and records the new shares.
func (a *AMM) MintLpShares(amount int64) error {
	if amount <= 0 {
		return errs.New(errs.CodeInvalidArgument, "lp amount must be positive")
	}
	newSqrtK, err := fpmath.CheckedAdd(a.SqrtK, amount)
	if err != nil {
		return err
	}
	shares, err := fpmath.CheckedAdd(a.UserLpShares, amount)
	if err != nil {
		return err
	}
	if err := a.ScaleLiquidity(newSqrtK); err != nil {
		return err
	}
	a.UserLpShares = shares
	return nil
}

// BurnLpShares removes amount of depth. Shares beyond the outstanding total
// are rejected.
func (a *AMM) BurnLpShares(amount int64) error {
	if amount <= 0 {
		return errs.New(errs.CodeInvalidArgument, "lp amount must be positive")
	}
	if amount > a.UserLpShares {
		return errs.New(errs.CodeInsufficientLpShares, "burn %d of %d outstanding", amount, a.UserLpShares)
	}
	if err := a.ScaleLiquidity(a.SqrtK - amount); err != nil {
		return err
	}
	a.UserLpShares -= amount
	return nil
}

// SettleLpBase moves standardized base out of the unsettled LP pool once it
// has been credited to a position.
func (a *AMM) SettleLpBase(base int64) error {
	v, err := fpmath.CheckedSub(a.NetUnsettledLpBaseAssetAmount, base)
	if err != nil {
		return err
	}
	a.NetUnsettledLpBaseAssetAmount = v
	return nil
}

// TrackPositionBase keeps the long and short open-interest totals in step
// with a position moving from before to after.
func (a *AMM) TrackPositionBase(before, after int64) {
	if before > 0 {
		a.BaseAssetAmountLong -= before
	} else {
		a.BaseAssetAmountShort -= before
	}
	if after > 0 {
		a.BaseAssetAmountLong += after
	} else {
		a.BaseAssetAmountShort += after
	}
}
