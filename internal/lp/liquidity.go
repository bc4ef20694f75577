package lp

import (
	"VammLedger/internal/amm"
	"VammLedger/internal/errs"
	fpmath "VammLedger/internal/math"
	"VammLedger/internal/state"
)

// Change describes a mint or burn.
type Change struct {
	// positive when minted, negative when burned
	SharesDelta int64      `json:"shares_delta"`
	SharesAfter int64      `json:"shares_after"`
	Settlement  Settlement `json:"settlement"`
	SqrtKBefore int64      `json:"sqrt_k_before"`
	SqrtKAfter  int64      `json:"sqrt_k_after"`
	PriceBefore int64      `json:"price_before"`
	PriceAfter  int64      `json:"price_after"`
}

// Mint settles the position, deepens the curve by shares and records them.
// On error neither argument is modified.
func Mint(a *amm.AMM, pos *state.UserPosition, shares, now int64) (*Change, error) {
	if shares <= 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "lp shares must be positive")
	}
	nextAMM, next := *a, *pos
	ch, err := begin(&nextAMM, &next)
	if err != nil {
		return nil, err
	}

	if err := nextAMM.MintLpShares(shares); err != nil {
		return nil, err
	}
	total, err := fpmath.CheckedAdd(next.LpShares, shares)
	if err != nil {
		return nil, err
	}
	if err := rescale(&nextAMM, &next, total); err != nil {
		return nil, err
	}
	next.LastLpAddTime = now
	ch.SharesDelta = shares

	if err := finish(ch, &nextAMM, &next); err != nil {
		return nil, err
	}
	*a, *pos = nextAMM, next
	return ch, nil
}

// Burn settles the position and removes shares from it and from the curve.
// Zero shares burns everything held. Burning is refused until the cooldown
// since the last mint has elapsed. On error neither argument is modified.
func Burn(a *amm.AMM, pos *state.UserPosition, shares, now int64) (*Change, error) {
	if shares < 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "lp shares must not be negative")
	}
	if shares == 0 {
		shares = pos.LpShares
	}
	if shares == 0 || shares > pos.LpShares {
		return nil, errs.New(errs.CodeInsufficientLpShares, "burn %d of %d held", shares, pos.LpShares)
	}
	if elapsed := now - pos.LastLpAddTime; elapsed < a.LpCooldownTime {
		return nil, errs.New(errs.CodeCooldownNotElapsed, "%ds of %ds lp cooldown elapsed", elapsed, a.LpCooldownTime)
	}

	nextAMM, next := *a, *pos
	ch, err := begin(&nextAMM, &next)
	if err != nil {
		return nil, err
	}
	if err := nextAMM.BurnLpShares(shares); err != nil {
		return nil, err
	}
	if err := rescale(&nextAMM, &next, next.LpShares-shares); err != nil {
		return nil, err
	}
	ch.SharesDelta = -shares

	if err := finish(ch, &nextAMM, &next); err != nil {
		return nil, err
	}
	*a, *pos = nextAMM, next
	return ch, nil
}

func begin(a *amm.AMM, pos *state.UserPosition) (*Change, error) {
	price, err := a.MarkPrice()
	if err != nil {
		return nil, err
	}
	s, err := Settle(a, pos)
	if err != nil {
		return nil, err
	}
	return &Change{Settlement: s, SqrtKBefore: a.SqrtK, PriceBefore: price}, nil
}

func finish(ch *Change, a *amm.AMM, pos *state.UserPosition) error {
	price, err := a.MarkPrice()
	if err != nil {
		return err
	}
	ch.SharesAfter = pos.LpShares
	ch.SqrtKAfter = a.SqrtK
	ch.PriceAfter = price
	return nil
}

// rescale re-expresses the carried remainder of a settled position under a
// new share count so that the change of shares neither creates nor drops
// any unsettled amount.
func rescale(a *amm.AMM, pos *state.UserPosition, shares int64) error {
	if shares < 0 {
		return errs.New(errs.CodeInsufficientLpShares, "share count would go negative")
	}
	remBase, remQuote, err := entitlement(a, pos)
	if err != nil {
		return err
	}
	c, err := carryPerShare(a, shares, remBase, remQuote)
	if err != nil {
		return err
	}
	pos.LpShares = shares
	pos.LastNetBaseAssetAmountPerLp = c.lastBase
	pos.LastNetQuoteAssetAmountPerLp = c.lastQuote
	pos.RemainderBaseAssetAmount = c.fragBase
	pos.RemainderQuoteAssetAmount = c.fragQuote
	return nil
}
