package lp_test

import (
	"errors"
	"testing"

	"VammLedger/internal/amm"
	"VammLedger/internal/errs"
	"VammLedger/internal/lp"
	fpmath "VammLedger/internal/math"
	"VammLedger/internal/state"
)

const p13 = fpmath.AmmReservePrecision

func newTestAMM(t *testing.T, settlement amm.LpQuoteSettlement) *amm.AMM {
	t.Helper()
	a, err := amm.New(amm.Config{
		BaseAssetReserve:        300 * p13,
		QuoteAssetReserve:       300 * p13,
		FeeNumerator:            75,
		FeeDenominator:          100_000,
		BaseAssetAmountStepSize: p13,
		LpCooldownTime:          10,
		LpQuoteSettlement:       settlement,
	}, 1_000)
	if err != nil {
		t.Fatalf("amm.New: %v", err)
	}
	return &a
}

// newScenario mints 100 shares and lets a trader short 5 against them.
func newScenario(t *testing.T, settlement amm.LpQuoteSettlement) (*amm.AMM, *state.UserPosition) {
	t.Helper()
	a := newTestAMM(t, settlement)
	pos := &state.UserPosition{}
	if _, err := lp.Mint(a, pos, 100*p13, 1_000); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := a.SwapBase(amm.DirectionShort, 5*p13, 0); err != nil {
		t.Fatalf("SwapBase: %v", err)
	}
	return a, pos
}

// ============================================================================
// Test: Settle
// ============================================================================

func TestSettle_Scenario(t *testing.T) {
	a, pos := newScenario(t, amm.LpQuoteSettlementFull)

	s, err := lp.Settle(a, pos)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if s.RawBaseAssetAmount != 125*p13/100 {
		t.Errorf("raw base: got %d, want %d", s.RawBaseAssetAmount, 125*p13/100)
	}
	if pos.BaseAssetAmount != p13 {
		t.Errorf("base: got %d, want %d", pos.BaseAssetAmount, p13)
	}
	if pos.QuoteAssetAmount != -1_233_600 {
		t.Errorf("quote: got %d, want -1233600", pos.QuoteAssetAmount)
	}
	if pos.QuoteEntryAmount != -1_233_600 {
		t.Errorf("quote entry: got %d, want -1233600", pos.QuoteEntryAmount)
	}
	if pos.LastNetBaseAssetAmountPerLp != 100_000_000_000 {
		t.Errorf("last base: got %d, want 1e11", pos.LastNetBaseAssetAmountPerLp)
	}
	if pos.LastNetQuoteAssetAmountPerLp != -12_336 {
		t.Errorf("last quote: got %d, want -12336", pos.LastNetQuoteAssetAmountPerLp)
	}
	if a.NetUnsettledLpBaseAssetAmount != 25*p13/100 {
		t.Errorf("unsettled lp base: got %d, want %d", a.NetUnsettledLpBaseAssetAmount, 25*p13/100)
	}
}

func TestSettle_Idempotent(t *testing.T) {
	a, pos := newScenario(t, amm.LpQuoteSettlementFull)
	if _, err := lp.Settle(a, pos); err != nil {
		t.Fatal(err)
	}
	posBefore, ammBefore := *pos, *a

	s, err := lp.Settle(a, pos)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Empty() {
		t.Errorf("second settle moved base=%d quote=%d", s.BaseAssetAmount, s.QuoteAssetAmount)
	}
	if *pos != posBefore {
		t.Errorf("position changed:\n got %+v\nwant %+v", *pos, posBefore)
	}
	if *a != ammBefore {
		t.Error("amm changed on a no-op settle")
	}
}

func TestSettle_RemainderConserved(t *testing.T) {
	a, pos := newScenario(t, amm.LpQuoteSettlementFull)
	if _, err := a.SwapBase(amm.DirectionLong, 2*p13, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := a.SwapBase(amm.DirectionShort, 7*p13, 0); err != nil {
		t.Fatal(err)
	}

	want, err := lp.Calculate(a, pos)
	if err != nil {
		t.Fatal(err)
	}
	s, err := lp.Settle(a, pos)
	if err != nil {
		t.Fatal(err)
	}
	after, err := lp.Calculate(a, pos)
	if err != nil {
		t.Fatal(err)
	}
	// settled plus what is still carried equals the entitlement
	if got := s.BaseAssetAmount + after.RawBaseAssetAmount; got != want.RawBaseAssetAmount {
		t.Errorf("base: settled %d + carried %d = %d, want %d",
			s.BaseAssetAmount, after.RawBaseAssetAmount, got, want.RawBaseAssetAmount)
	}
	if fpmath.Abs(after.RawBaseAssetAmount) >= a.BaseAssetAmountStepSize {
		t.Errorf("carried base %d not below step", after.RawBaseAssetAmount)
	}
}

func TestSettle_ProRataQuote(t *testing.T) {
	a, pos := newScenario(t, amm.LpQuoteSettlementProRata)

	s, err := lp.Settle(a, pos)
	if err != nil {
		t.Fatal(err)
	}
	// -1233600 * 1e13 / 1.25e13
	if s.QuoteAssetAmount != -986_880 {
		t.Errorf("quote: got %d, want -986880", s.QuoteAssetAmount)
	}
	after, _ := lp.Calculate(a, pos)
	if got := s.QuoteAssetAmount + after.RawQuoteAssetAmount; got != -1_233_600 {
		t.Errorf("quote not conserved: got %d, want -1233600", got)
	}
}

func TestSettle_ProRataQuoteWithoutBase(t *testing.T) {
	a := newTestAMM(t, amm.LpQuoteSettlementProRata)
	pos := &state.UserPosition{}
	if _, err := lp.Mint(a, pos, 100*p13, 1_000); err != nil {
		t.Fatal(err)
	}
	// a round trip leaves no base with the LPs, only their fee share
	if _, err := a.SwapBase(amm.DirectionLong, 4*p13, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := a.SwapBase(amm.DirectionShort, 4*p13, 0); err != nil {
		t.Fatal(err)
	}

	s, err := lp.Settle(a, pos)
	if err != nil {
		t.Fatal(err)
	}
	if s.RawBaseAssetAmount != 0 || s.BaseAssetAmount != 0 {
		t.Fatalf("base: raw %d settled %d, want 0", s.RawBaseAssetAmount, s.BaseAssetAmount)
	}
	if s.RawQuoteAssetAmount == 0 {
		t.Fatal("round trip left no quote for the LP")
	}
	if s.QuoteAssetAmount != s.RawQuoteAssetAmount {
		t.Errorf("quote: got %d, want the full %d", s.QuoteAssetAmount, s.RawQuoteAssetAmount)
	}
	if pos.QuoteAssetAmount != s.RawQuoteAssetAmount || pos.QuoteEntryAmount != s.RawQuoteAssetAmount {
		t.Errorf("position quote %d entry %d, want %d", pos.QuoteAssetAmount, pos.QuoteEntryAmount, s.RawQuoteAssetAmount)
	}
	idx := a.MarketPositionPerLp
	if pos.LastNetQuoteAssetAmountPerLp != idx.QuoteAssetAmount {
		t.Errorf("last quote: got %d, want index %d", pos.LastNetQuoteAssetAmountPerLp, idx.QuoteAssetAmount)
	}
	if pos.LastNetBaseAssetAmountPerLp != idx.BaseAssetAmount {
		t.Errorf("last base: got %d, want index %d", pos.LastNetBaseAssetAmountPerLp, idx.BaseAssetAmount)
	}
}

func TestSettle_QuoteAddsToEntryWhenReducing(t *testing.T) {
	a := newTestAMM(t, amm.LpQuoteSettlementFull)
	pos := &state.UserPosition{BaseAssetAmount: -3 * p13, QuoteAssetAmount: 3_000_000, QuoteEntryAmount: 3_000_000}
	if _, err := lp.Mint(a, pos, 100*p13, 1_000); err != nil {
		t.Fatal(err)
	}
	if _, err := a.SwapBase(amm.DirectionShort, 5*p13, 0); err != nil {
		t.Fatal(err)
	}

	s, err := lp.Settle(a, pos)
	if err != nil {
		t.Fatal(err)
	}
	if pos.BaseAssetAmount != -2*p13 {
		t.Errorf("base: got %d, want %d", pos.BaseAssetAmount, -2*p13)
	}
	if want := 3_000_000 + s.QuoteAssetAmount; pos.QuoteEntryAmount != want {
		t.Errorf("entry: got %d, want %d", pos.QuoteEntryAmount, want)
	}
	if s.Position.RealizedPnl != 0 {
		t.Errorf("settlement realized %d", s.Position.RealizedPnl)
	}
}

func TestSettle_NoShares(t *testing.T) {
	a := newTestAMM(t, amm.LpQuoteSettlementFull)
	pos := &state.UserPosition{}
	s, err := lp.Settle(a, pos)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Empty() {
		t.Errorf("position without shares settled %+v", s)
	}
}

// ============================================================================
// Test: Mint / Burn
// ============================================================================

func TestMint_PreservesPriceAndBound(t *testing.T) {
	a := newTestAMM(t, amm.LpQuoteSettlementFull)
	pos := &state.UserPosition{}

	ch, err := lp.Mint(a, pos, 100*p13, 1_000)
	if err != nil {
		t.Fatal(err)
	}
	if ch.PriceBefore != ch.PriceAfter {
		t.Errorf("price moved: %d -> %d", ch.PriceBefore, ch.PriceAfter)
	}
	if a.SqrtK != 400*p13 || a.UserLpShares != 100*p13 {
		t.Errorf("sqrtK=%d shares=%d", a.SqrtK, a.UserLpShares)
	}
	if a.UserLpShares > a.SqrtK {
		t.Error("lp shares exceed sqrtK")
	}
	if pos.LpShares != 100*p13 || pos.LastLpAddTime != 1_000 {
		t.Errorf("position: shares=%d addTime=%d", pos.LpShares, pos.LastLpAddTime)
	}
	if a.NetBaseAssetAmount != 0 {
		t.Errorf("net base moved on mint: %d", a.NetBaseAssetAmount)
	}
}

func TestMint_KeepsCarriedRemainder(t *testing.T) {
	a, pos := newScenario(t, amm.LpQuoteSettlementFull)
	if _, err := lp.Settle(a, pos); err != nil {
		t.Fatal(err)
	}
	before, _ := lp.Calculate(a, pos)

	if _, err := lp.Mint(a, pos, 100*p13, 2_000); err != nil {
		t.Fatal(err)
	}
	after, _ := lp.Calculate(a, pos)
	if after.RawBaseAssetAmount != before.RawBaseAssetAmount {
		t.Errorf("carried base: got %d, want %d", after.RawBaseAssetAmount, before.RawBaseAssetAmount)
	}
}

func TestBurn_Cooldown(t *testing.T) {
	a, pos := newScenario(t, amm.LpQuoteSettlementFull)

	_, err := lp.Burn(a, pos, 0, 1_005)
	if !errors.Is(err, errs.ErrCooldownNotElapsed) {
		t.Fatalf("got %v, want CooldownNotElapsed", err)
	}
	if pos.LpShares != 100*p13 {
		t.Errorf("shares changed on rejected burn: %d", pos.LpShares)
	}
	if _, err := lp.Burn(a, pos, 0, 1_010); err != nil {
		t.Fatalf("burn after cooldown: %v", err)
	}
	if pos.LpShares != 0 || a.UserLpShares != 0 {
		t.Errorf("shares left: pos=%d amm=%d", pos.LpShares, a.UserLpShares)
	}
}

func TestBurn_TooMany(t *testing.T) {
	a, pos := newScenario(t, amm.LpQuoteSettlementFull)
	_, err := lp.Burn(a, pos, 101*p13, 5_000)
	if !errors.Is(err, errs.ErrInsufficientLpShares) {
		t.Errorf("got %v, want InsufficientLpShares", err)
	}
}

func TestBurn_HalfThenHalfEqualsFull(t *testing.T) {
	a1, p1 := newScenario(t, amm.LpQuoteSettlementFull)
	a2, p2 := *a1, *p1

	for i := 0; i < 2; i++ {
		if _, err := lp.Burn(a1, p1, 50*p13, 5_000); err != nil {
			t.Fatalf("half burn %d: %v", i, err)
		}
	}
	if _, err := lp.Burn(&a2, &p2, 0, 5_000); err != nil {
		t.Fatalf("full burn: %v", err)
	}

	if *p1 != p2 {
		t.Errorf("positions differ:\n half %+v\n full %+v", *p1, p2)
	}
	if d := fpmath.Abs(a1.BaseAssetReserve - a2.BaseAssetReserve); d > 1 {
		t.Errorf("base reserve differs by %d", d)
	}
	if d := fpmath.Abs(a1.QuoteAssetReserve - a2.QuoteAssetReserve); d > 1 {
		t.Errorf("quote reserve differs by %d", d)
	}
	if a1.NetUnsettledLpBaseAssetAmount != a2.NetUnsettledLpBaseAssetAmount {
		t.Errorf("unsettled lp base: %d vs %d", a1.NetUnsettledLpBaseAssetAmount, a2.NetUnsettledLpBaseAssetAmount)
	}
	if p2.BaseAssetAmount != p13 || p2.RemainderBaseAssetAmount != 25*p13/100 {
		t.Errorf("full burn: base=%d remainder=%d", p2.BaseAssetAmount, p2.RemainderBaseAssetAmount)
	}
}
