package amm_test

import (
	"errors"
	"testing"

	"VammLedger/internal/amm"
	"VammLedger/internal/errs"
	fpmath "VammLedger/internal/math"
)

const p13 = fpmath.AmmReservePrecision

func newTestAMM(t *testing.T, reserve int64) *amm.AMM {
	t.Helper()
	a, err := amm.New(amm.Config{
		BaseAssetReserve:  reserve,
		QuoteAssetReserve: reserve,
		FundingPeriod:     3600,
	}, 1_000)
	if err != nil {
		t.Fatalf("amm.New: %v", err)
	}
	return &a
}

// ============================================================================
// Test: Pricing
// ============================================================================

func TestCalculatePrice_Balanced(t *testing.T) {
	price, err := amm.CalculatePrice(300*p13, 300*p13, fpmath.PegPrecision)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != fpmath.MarkPricePrecision {
		t.Errorf("got %d, want %d", price, fpmath.MarkPricePrecision)
	}
}

func TestCalculatePrice_PegScales(t *testing.T) {
	price, _ := amm.CalculatePrice(300*p13, 300*p13, 25*fpmath.PegPrecision)
	if price != 25*fpmath.MarkPricePrecision {
		t.Errorf("got %d, want %d", price, 25*fpmath.MarkPricePrecision)
	}
}

func TestNew_Defaults(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	if a.SqrtK != 300*p13 {
		t.Errorf("sqrtK: got %d, want %d", a.SqrtK, 300*p13)
	}
	if a.PegMultiplier != fpmath.PegPrecision {
		t.Errorf("peg: got %d", a.PegMultiplier)
	}
	if a.FeeNumerator != 10 || a.FeeDenominator != 10_000 {
		t.Errorf("fee: got %d/%d", a.FeeNumerator, a.FeeDenominator)
	}
	if a.LastMarkPriceTwap != fpmath.MarkPricePrecision || a.LastOraclePriceTwap != fpmath.MarkPricePrecision {
		t.Errorf("twaps should be seeded from the mark price")
	}
}

func TestNew_RejectsEmptyReserves(t *testing.T) {
	_, err := amm.New(amm.Config{BaseAssetReserve: 0, QuoteAssetReserve: 1}, 0)
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("got %v, want InvalidArgument", err)
	}
}

func TestNew_ReserveCeiling(t *testing.T) {
	_, err := amm.New(amm.Config{BaseAssetReserve: amm.MaxReserve + 1, QuoteAssetReserve: p13}, 0)
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("got %v, want InvalidArgument", err)
	}

	// a curve at the ceiling still takes a mint as deep as itself
	a := newTestAMM(t, amm.MaxReserve)
	if err := a.MintLpShares(a.SqrtK); err != nil {
		t.Fatalf("mint at full depth: %v", err)
	}
	if a.UserLpShares > a.SqrtK {
		t.Errorf("shares %d above sqrtK %d", a.UserLpShares, a.SqrtK)
	}
	if _, err := a.UpdateK(amm.MaxReserve + 1); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("UpdateK above ceiling: got %v, want InvalidArgument", err)
	}
}

// ============================================================================
// Test: Swaps
// ============================================================================

func TestSwapBase_ShortWithLpShares(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	a.FeeNumerator, a.FeeDenominator = 75, 100_000
	a.BaseAssetAmountStepSize = p13
	if err := a.MintLpShares(100 * p13); err != nil {
		t.Fatalf("mint: %v", err)
	}

	res, err := a.SwapBase(amm.DirectionShort, 5*p13, 0)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}

	if res.BaseAssetAmount != -5*p13 {
		t.Errorf("base: got %d, want %d", res.BaseAssetAmount, -5*p13)
	}
	if res.QuoteAssetAmount != 4_938_271 {
		t.Errorf("quote: got %d, want 4938271", res.QuoteAssetAmount)
	}
	if res.Fee != 3_703 {
		t.Errorf("fee: got %d, want 3703", res.Fee)
	}
	if res.TraderQuoteDelta != 4_934_568 {
		t.Errorf("trader quote: got %d, want 4934568", res.TraderQuoteDelta)
	}
	if a.MarketPositionPerLp.BaseAssetAmount != 125_000_000_000 {
		t.Errorf("per-lp base: got %d, want 125000000000", a.MarketPositionPerLp.BaseAssetAmount)
	}
	if a.MarketPositionPerLp.QuoteAssetAmount != -12_336 {
		t.Errorf("per-lp quote: got %d, want -12336", a.MarketPositionPerLp.QuoteAssetAmount)
	}
	if a.NetBaseAssetAmount != -5*p13 {
		t.Errorf("net base: got %d", a.NetBaseAssetAmount)
	}
	if a.NetUnsettledLpBaseAssetAmount != 125*p13/100 {
		t.Errorf("unsettled lp base: got %d, want %d", a.NetUnsettledLpBaseAssetAmount, 125*p13/100)
	}
	if res.LpFee+(a.TotalFee) != res.Fee {
		t.Errorf("fee split does not conserve: lp=%d amm=%d fee=%d", res.LpFee, a.TotalFee, res.Fee)
	}
	if a.BaseAssetReserve != 405*p13 {
		t.Errorf("base reserve: got %d", a.BaseAssetReserve)
	}
}

func TestSwapBase_NoLpLeavesIndex(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	if _, err := a.SwapBase(amm.DirectionLong, p13, 0); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if a.MarketPositionPerLp != (amm.MarketPositionPerLp{}) {
		t.Errorf("index moved without LPs: %+v", a.MarketPositionPerLp)
	}
	if a.TotalFee == 0 || a.TotalFee != a.TotalFeeMinusDistributions {
		t.Errorf("fee pool: total=%d tfmd=%d", a.TotalFee, a.TotalFeeMinusDistributions)
	}
}

func TestSwapBase_KPreserved(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	trades := []struct {
		dir    amm.Direction
		amount int64
	}{
		{amm.DirectionLong, 7 * p13},
		{amm.DirectionShort, 3*p13 + 17},
		{amm.DirectionShort, 11 * p13},
		{amm.DirectionLong, 1},
	}
	for i, tr := range trades {
		if _, err := a.SwapBase(tr.dir, tr.amount, 0); err != nil {
			t.Fatalf("trade %d: %v", i, err)
		}
		if !a.InvariantHolds(1) {
			t.Fatalf("trade %d: B*Q drifted from sqrtK^2 (B=%d Q=%d K=%d)", i, a.BaseAssetReserve, a.QuoteAssetReserve, a.SqrtK)
		}
	}
}

func TestSwapBase_RoundTripNeverPaysTrader(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	a.FeeNumerator = 0
	open, err := a.SwapBase(amm.DirectionLong, 3*p13, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	closeRes, err := a.SwapBase(amm.DirectionShort, 3*p13, 0)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if net := open.TraderQuoteDelta + closeRes.TraderQuoteDelta; net > 0 {
		t.Errorf("round trip paid trader %d", net)
	}
}

func TestSwapBase_TradeSizeTooSmall(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	a.BaseAssetAmountStepSize = p13
	_, err := a.SwapBase(amm.DirectionLong, p13-1, 0)
	if !errors.Is(err, errs.ErrTradeSizeTooSmall) {
		t.Errorf("got %v, want TradeSizeTooSmall", err)
	}
}

func TestSwapBase_TradeSizeTooLarge(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	a.MaxBaseAssetAmountRatio = 10
	before := *a

	_, err := a.SwapBase(amm.DirectionLong, 31*p13, 0)
	if !errors.Is(err, errs.ErrTradeSizeTooLarge) {
		t.Fatalf("got %v, want TradeSizeTooLarge", err)
	}
	if *a != before {
		t.Error("rejected swap mutated the curve")
	}
	if _, err := a.SwapBase(amm.DirectionLong, 30*p13, 0); err != nil {
		t.Errorf("swap at the bound should pass: %v", err)
	}
}

func TestSwapBase_SlippageLeavesStateUntouched(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	before := *a

	// long pushes the price above 1.0
	_, err := a.SwapBase(amm.DirectionLong, 10*p13, fpmath.MarkPricePrecision)
	if !errors.Is(err, errs.ErrSlippageExceeded) {
		t.Fatalf("got %v, want SlippageExceeded", err)
	}
	if *a != before {
		t.Error("rejected swap mutated the curve")
	}

	_, err = a.SwapBase(amm.DirectionShort, 10*p13, fpmath.MarkPricePrecision)
	if !errors.Is(err, errs.ErrSlippageExceeded) {
		t.Fatalf("got %v, want SlippageExceeded", err)
	}
}

func TestSwapBase_QuoteRoundsForPool(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	a.FeeNumerator = 0
	long, _ := a.SwapBase(amm.DirectionLong, 1, 0)
	if long.QuoteAssetAmount < 1 {
		t.Errorf("long paying for dust should round up, got %d", long.QuoteAssetAmount)
	}
	b := newTestAMM(t, 300*p13)
	b.FeeNumerator = 0
	short, _ := b.SwapBase(amm.DirectionShort, 1, 0)
	if short.QuoteAssetAmount != 0 {
		t.Errorf("short receiving dust should round down, got %d", short.QuoteAssetAmount)
	}
}

func TestBaseAssetAmountToPrice(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	limit := int64(10_500_000_000) // 1.05

	amount, err := a.BaseAssetAmountToPrice(amm.DirectionLong, limit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amount <= 0 {
		t.Fatalf("expected a fillable amount, got %d", amount)
	}
	res, err := a.SwapBase(amm.DirectionLong, amount, limit)
	if err != nil {
		t.Fatalf("fill at computed size should respect the limit: %v", err)
	}
	if res.PriceAfter > limit {
		t.Errorf("price %d beyond limit %d", res.PriceAfter, limit)
	}

	none, _ := a.BaseAssetAmountToPrice(amm.DirectionShort, limit+fpmath.MarkPricePrecision)
	if none != 0 {
		t.Errorf("short limit above mark should be unfillable, got %d", none)
	}
}

// ============================================================================
// Test: Liquidity
// ============================================================================

func TestMintBurn_PreservesPriceAndNetBase(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	if _, err := a.SwapBase(amm.DirectionLong, 4*p13, 0); err != nil {
		t.Fatalf("swap: %v", err)
	}
	price0, _ := a.MarkPrice()
	net0 := a.NetBaseAssetAmount

	if err := a.MintLpShares(100 * p13); err != nil {
		t.Fatalf("mint: %v", err)
	}
	price1, _ := a.MarkPrice()
	if diff := fpmath.Abs(price1 - price0); diff > 1 {
		t.Errorf("mint moved price by %d", diff)
	}
	if a.NetBaseAssetAmount != net0 {
		t.Errorf("mint moved net base")
	}
	if err := a.BurnLpShares(100 * p13); err != nil {
		t.Fatalf("burn: %v", err)
	}
	price2, _ := a.MarkPrice()
	if diff := fpmath.Abs(price2 - price0); diff > 2 {
		t.Errorf("burn moved price by %d", diff)
	}
	if a.UserLpShares != 0 {
		t.Errorf("shares left: %d", a.UserLpShares)
	}
}

func TestBurnLpShares_Excess(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	_ = a.MintLpShares(p13)
	err := a.BurnLpShares(2 * p13)
	if !errors.Is(err, errs.ErrInsufficientLpShares) {
		t.Errorf("got %v, want InsufficientLpShares", err)
	}
}

func TestTrackPositionBase(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	a.TrackPositionBase(0, 5)
	a.TrackPositionBase(0, -3)
	a.TrackPositionBase(5, -2)
	if a.BaseAssetAmountLong != 0 || a.BaseAssetAmountShort != -5 {
		t.Errorf("got long=%d short=%d, want 0/-5", a.BaseAssetAmountLong, a.BaseAssetAmountShort)
	}
}

// ============================================================================
// Test: TWAP
// ============================================================================

func TestCalculateNewTwap(t *testing.T) {
	got, _ := amm.CalculateNewTwap(200, 1_900, 100, 1_000, 3_600)
	// 100 * 2700/3600 + 200 * 900/3600 = 75 + 50
	if got != 125 {
		t.Errorf("got %d, want 125", got)
	}
	capped, _ := amm.CalculateNewTwap(200, 100_000, 100, 1_000, 3_600)
	if capped != 200 {
		t.Errorf("elapsed beyond period should take the new price, got %d", capped)
	}
	stale, _ := amm.CalculateNewTwap(200, 900, 100, 1_000, 3_600)
	if stale != 100 {
		t.Errorf("out-of-order reading should be ignored, got %d", stale)
	}
}

func TestUpdateOracle_IgnoresOutOfOrder(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	if err := a.UpdateOracle(11_000_000_000, 5_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = a.UpdateOracle(9_000_000_000, 4_000)
	if a.LastOraclePrice != 11_000_000_000 {
		t.Errorf("stale oracle overwrote price: %d", a.LastOraclePrice)
	}
}

// ============================================================================
// Test: Funding
// ============================================================================

func TestUpdateFundingRate_NoopBeforePeriod(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	upd, err := a.UpdateFundingRate(1_000 + 3_599)
	if err != nil || upd != nil {
		t.Fatalf("got (%v, %v), want no-op", upd, err)
	}
}

func TestUpdateFundingRate_LongsPayWhenMarkAboveOracle(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	if _, err := a.SwapBase(amm.DirectionLong, 10*p13, 0); err != nil {
		t.Fatalf("swap: %v", err)
	}
	a.TrackPositionBase(0, 10*p13)
	_ = a.UpdateOracle(fpmath.MarkPricePrecision, 1_001)

	upd, err := a.UpdateFundingRate(1_000 + 3_600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upd == nil || upd.Rate <= 0 {
		t.Fatalf("expected positive rate, got %+v", upd)
	}
	if upd.AmmPayment >= 0 {
		t.Errorf("curve should collect from unbalanced longs, got payment %d", upd.AmmPayment)
	}
	if a.CumulativeFundingRateLong != upd.Rate {
		t.Errorf("long index: got %d, want %d", a.CumulativeFundingRateLong, upd.Rate)
	}
}

func TestUpdateFundingRate_CappedByFeePool(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	a.TrackPositionBase(0, -10*p13)
	a.LastMarkPriceTwap = 11_000_000_000
	a.LastMarkPriceTwapTs = 1_000 + 3_600
	a.TotalFeeMinusDistributions = 0

	upd, err := a.UpdateFundingRate(1_000 + 3_600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !upd.Capped {
		t.Fatal("expected capped funding")
	}
	if upd.ShortRate != 0 {
		t.Errorf("nothing to fund shorts with, got short rate %d", upd.ShortRate)
	}
	if a.TotalFeeMinusDistributions != 0 {
		t.Errorf("fee pool went to %d", a.TotalFeeMinusDistributions)
	}
}

// ============================================================================
// Test: Repeg and K
// ============================================================================

func TestRepeg_InsufficientFees(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	if _, err := a.SwapBase(amm.DirectionLong, 10*p13, 0); err != nil {
		t.Fatalf("swap: %v", err)
	}
	before := *a
	_, err := a.Repeg(2 * fpmath.PegPrecision)
	if !errors.Is(err, errs.ErrInsufficientFeesAvailable) {
		t.Fatalf("got %v, want InsufficientFeesAvailable", err)
	}
	if *a != before {
		t.Error("failed repeg mutated the curve")
	}
}

func TestRepeg_FundedByFees(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	if _, err := a.SwapBase(amm.DirectionLong, p13, 0); err != nil {
		t.Fatalf("swap: %v", err)
	}
	a.TotalFeeMinusDistributions = 1_000 * fpmath.QuotePrecision
	newPeg := fpmath.PegPrecision + 10

	cost, _ := a.RepegCost(newPeg)
	res, err := a.Repeg(newPeg)
	if err != nil {
		t.Fatalf("repeg: %v", err)
	}
	if res.Cost != cost || cost <= 0 {
		t.Errorf("cost: got %d, preview %d", res.Cost, cost)
	}
	if a.TotalFeeMinusDistributions != 1_000*fpmath.QuotePrecision-cost {
		t.Errorf("fee pool: got %d", a.TotalFeeMinusDistributions)
	}
	if a.PegMultiplier != newPeg {
		t.Errorf("peg: got %d", a.PegMultiplier)
	}
}

func TestPegFromTargetPrice(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	peg, err := a.PegFromTargetPrice(25 * fpmath.MarkPricePrecision)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peg != 25*fpmath.PegPrecision {
		t.Errorf("got %d, want %d", peg, 25*fpmath.PegPrecision)
	}
}

func TestUpdateK_BelowLpShares(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	_ = a.MintLpShares(100 * p13)
	_, err := a.UpdateK(50 * p13)
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("got %v, want InvalidArgument", err)
	}
}

func TestUpdateK_NoNetPositionIsFree(t *testing.T) {
	a := newTestAMM(t, 300*p13)
	res, err := a.UpdateK(600 * p13)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Cost != 0 {
		t.Errorf("cost: got %d, want 0", res.Cost)
	}
	if a.SqrtK != 600*p13 || a.BaseAssetReserve != 600*p13 {
		t.Errorf("reserves not scaled: K=%d B=%d", a.SqrtK, a.BaseAssetReserve)
	}
}
