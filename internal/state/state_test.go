package state_test

import (
	"errors"
	"testing"

	"VammLedger/internal/amm"
	"VammLedger/internal/errs"
	fpmath "VammLedger/internal/math"
	"VammLedger/internal/state"

	"github.com/google/uuid"
)

const (
	p13  = fpmath.AmmReservePrecision
	usdc = fpmath.QuotePrecision
)

func newTestMarket(t *testing.T) *state.Market {
	t.Helper()
	m, err := state.NewMarket(state.MarketConfig{
		MarketIndex: 0,
		Name:        "SOL-PERP",
		AMM: amm.Config{
			BaseAssetReserve:  300 * p13,
			QuoteAssetReserve: 300 * p13,
			FundingPeriod:     3600,
		},
	}, 1_000)
	if err != nil {
		t.Fatalf("NewMarket: %v", err)
	}
	return m
}

func unitPriceView() state.MarketRiskMap {
	return state.MarketRiskMap{0: {
		MarketIndex:  0,
		MarkPrice:    fpmath.MarkPricePrecision,
		MarginRatios: state.DefaultMarginRatios(),
	}}
}

// ============================================================================
// Test: UserPosition
// ============================================================================

func TestApplyTrade_OpenReduceFlip(t *testing.T) {
	m := newTestMarket(t)
	pos := &state.UserPosition{}

	// open long 10 @ 1.0
	if _, err := pos.ApplyTrade(&m.AMM, 10*p13, -10*usdc); err != nil {
		t.Fatalf("open: %v", err)
	}
	if pos.QuoteEntryAmount != -10*usdc {
		t.Errorf("entry after open: got %d, want %d", pos.QuoteEntryAmount, -10*usdc)
	}
	if m.AMM.BaseAssetAmountLong != 10*p13 {
		t.Errorf("long oi: got %d", m.AMM.BaseAssetAmountLong)
	}

	// sell 5 @ 1.2
	upd, err := pos.ApplyTrade(&m.AMM, -5*p13, 6*usdc)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if upd.RealizedPnl != 1*usdc {
		t.Errorf("realized on reduce: got %d, want %d", upd.RealizedPnl, usdc)
	}
	if pos.QuoteEntryAmount != -5*usdc {
		t.Errorf("entry after reduce: got %d, want %d", pos.QuoteEntryAmount, -5*usdc)
	}

	// sell 10 @ 1.2 flips to short 5
	upd, err = pos.ApplyTrade(&m.AMM, -10*p13, 12*usdc)
	if err != nil {
		t.Fatalf("flip: %v", err)
	}
	if upd.RealizedPnl != 1*usdc {
		t.Errorf("realized on flip: got %d, want %d", upd.RealizedPnl, usdc)
	}
	if pos.BaseAssetAmount != -5*p13 {
		t.Errorf("base: got %d, want %d", pos.BaseAssetAmount, -5*p13)
	}
	if pos.QuoteEntryAmount != 6*usdc {
		t.Errorf("entry after flip: got %d, want %d", pos.QuoteEntryAmount, 6*usdc)
	}
	if pos.QuoteAssetAmount != 8*usdc {
		t.Errorf("quote: got %d, want %d", pos.QuoteAssetAmount, 8*usdc)
	}
	if m.AMM.BaseAssetAmountLong != 0 || m.AMM.BaseAssetAmountShort != -5*p13 {
		t.Errorf("oi: long=%d short=%d", m.AMM.BaseAssetAmountLong, m.AMM.BaseAssetAmountShort)
	}
}

func TestApplyTrade_CloseClearsEntry(t *testing.T) {
	m := newTestMarket(t)
	pos := &state.UserPosition{}
	pos.ApplyTrade(&m.AMM, -3*p13, 3*usdc)
	upd, err := pos.ApplyTrade(&m.AMM, 3*p13, -2*usdc)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if pos.BaseAssetAmount != 0 || pos.QuoteEntryAmount != 0 {
		t.Errorf("closed position: base=%d entry=%d", pos.BaseAssetAmount, pos.QuoteEntryAmount)
	}
	if upd.RealizedPnl != usdc {
		t.Errorf("realized: got %d, want %d", upd.RealizedPnl, usdc)
	}
}

func TestSettleFunding_LongPays(t *testing.T) {
	m := newTestMarket(t)
	pos := &state.UserPosition{}
	pos.ApplyTrade(&m.AMM, 1*p13, -1*usdc)

	// one quote unit per base unit
	m.AMM.CumulativeFundingRateLong += fpmath.FundingRatePrecision

	payment, err := pos.SettleFunding(&m.AMM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment != -usdc {
		t.Errorf("payment: got %d, want %d", payment, -usdc)
	}
	if pos.QuoteAssetAmount != -2*usdc {
		t.Errorf("quote: got %d, want %d", pos.QuoteAssetAmount, -2*usdc)
	}

	// settling again is a no-op
	payment, _ = pos.SettleFunding(&m.AMM)
	if payment != 0 {
		t.Errorf("second settle: got %d, want 0", payment)
	}
}

func TestUnsettledPnL(t *testing.T) {
	pos := &state.UserPosition{BaseAssetAmount: 2 * p13, QuoteAssetAmount: -2 * usdc, QuoteEntryAmount: -2 * usdc}
	pnl, err := pos.UnsettledPnL(15 * fpmath.MarkPricePrecision / 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pnl != usdc {
		t.Errorf("got %d, want %d", pnl, usdc)
	}
}

// ============================================================================
// Test: BankBalance
// ============================================================================

func TestBankBalance_FlipsToBorrow(t *testing.T) {
	b := &state.BankBalance{}
	if err := b.Apply(5 * usdc); err != nil {
		t.Fatal(err)
	}
	if err := b.Apply(-8 * usdc); err != nil {
		t.Fatal(err)
	}
	if b.BalanceType != state.BalanceTypeBorrow || b.Balance != 3*usdc {
		t.Errorf("got %s %d, want borrow %d", b.BalanceType, b.Balance, 3*usdc)
	}
	if b.Signed() != -3*usdc {
		t.Errorf("signed: got %d", b.Signed())
	}
	b.Apply(3 * usdc)
	if b.BalanceType != state.BalanceTypeDeposit || b.Balance != 0 {
		t.Errorf("back to zero: got %s %d", b.BalanceType, b.Balance)
	}
}

// ============================================================================
// Test: UserAccount
// ============================================================================

func TestUserAccount_PositionsSorted(t *testing.T) {
	acct := state.NewUserAccount(uuid.New(), "alice", 0)
	acct.GetOrCreatePosition(3)
	acct.GetOrCreatePosition(1)
	acct.GetOrCreatePosition(2)
	acct.GetOrCreatePosition(1)

	if len(acct.Positions) != 3 {
		t.Fatalf("positions: got %d, want 3", len(acct.Positions))
	}
	for i, want := range []uint16{1, 2, 3} {
		if acct.Positions[i].MarketIndex != want {
			t.Errorf("position %d: got market %d, want %d", i, acct.Positions[i].MarketIndex, want)
		}
	}

	acct.PrunePositions()
	if len(acct.Positions) != 0 {
		t.Errorf("empty positions should be pruned, got %d", len(acct.Positions))
	}
}

func TestUserAccount_CloneIsDeep(t *testing.T) {
	acct := state.NewUserAccount(uuid.New(), "", 0)
	acct.ApplyCollateral(10 * usdc)
	acct.GetOrCreatePosition(0).BaseAssetAmount = p13

	c := acct.Clone()
	c.ApplyCollateral(-10 * usdc)
	c.Position(0).BaseAssetAmount = 0

	if acct.CollateralValue() != 10*usdc {
		t.Errorf("original collateral changed: %d", acct.CollateralValue())
	}
	if acct.Position(0).BaseAssetAmount != p13 {
		t.Errorf("original position changed")
	}
}

func TestUserAccount_OrderSlots(t *testing.T) {
	acct := state.NewUserAccount(uuid.New(), "", 0)
	for i := 0; i < state.MaxOpenOrders; i++ {
		if _, err := acct.AddOrder(state.Order{MarketIndex: 0, BaseAssetAmount: p13}); err != nil {
			t.Fatalf("order %d: %v", i, err)
		}
	}
	_, err := acct.AddOrder(state.Order{MarketIndex: 0, BaseAssetAmount: p13})
	if !errors.Is(err, errs.ErrMaxNumberOfOrders) {
		t.Fatalf("got %v, want MaxNumberOfOrders", err)
	}
	if got := acct.Position(0).OpenOrders; got != state.MaxOpenOrders {
		t.Errorf("open orders: got %d, want %d", got, state.MaxOpenOrders)
	}

	o, err := acct.CancelOrder(1)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o.Status != state.OrderStatusCanceled {
		t.Errorf("status: got %s", o.Status)
	}
	if got := acct.Position(0).OpenOrders; got != state.MaxOpenOrders-1 {
		t.Errorf("open orders after cancel: got %d", got)
	}
	if _, err := acct.CancelOrder(1); !errors.Is(err, errs.ErrOrderDoesNotExist) {
		t.Errorf("second cancel: got %v, want OrderDoesNotExist", err)
	}
}

func TestOrder_RecordFill(t *testing.T) {
	o := state.Order{BaseAssetAmount: 2 * p13, Status: state.OrderStatusOpen}
	o.RecordFill(p13, usdc, 1000)
	if o.Status != state.OrderStatusOpen || o.RemainingBaseAssetAmount() != p13 {
		t.Errorf("partial: status=%s remaining=%d", o.Status, o.RemainingBaseAssetAmount())
	}
	o.RecordFill(p13, usdc, 1000)
	if o.Status != state.OrderStatusFilled {
		t.Errorf("full: status=%s", o.Status)
	}
	if o.Fee != 2000 || o.QuoteAssetAmountFilled != 2*usdc {
		t.Errorf("totals: fee=%d quote=%d", o.Fee, o.QuoteAssetAmountFilled)
	}
}

// ============================================================================
// Test: Margin
// ============================================================================

func TestCalculateMargin(t *testing.T) {
	acct := state.NewUserAccount(uuid.New(), "", 0)
	acct.ApplyCollateral(100 * usdc)
	pos := acct.GetOrCreatePosition(0)
	pos.BaseAssetAmount = 10 * p13
	pos.QuoteAssetAmount = -10 * usdc
	pos.LpShares = 5 * p13

	s, err := state.CalculateMargin(acct, unitPriceView())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.TotalCollateral != 100*usdc {
		t.Errorf("total collateral: got %d", s.TotalCollateral)
	}
	if s.TotalNotional != 10*usdc {
		t.Errorf("notional: got %d", s.TotalNotional)
	}
	// (10 + 5 lp) * 20%
	if s.InitialMarginRequirement != 3*usdc {
		t.Errorf("initial: got %d, want %d", s.InitialMarginRequirement, 3*usdc)
	}
	if s.MaintenanceMarginRequirement != 750_000 {
		t.Errorf("maintenance: got %d, want 750000", s.MaintenanceMarginRequirement)
	}
	if s.Leverage != 1_000 {
		t.Errorf("leverage: got %d, want 1000", s.Leverage)
	}
	if s.Status() != state.MarginStatusHealthy {
		t.Errorf("status: got %s", s.Status())
	}
}

func TestCalculateMargin_UnknownMarket(t *testing.T) {
	acct := state.NewUserAccount(uuid.New(), "", 0)
	acct.GetOrCreatePosition(7).BaseAssetAmount = p13
	_, err := state.CalculateMargin(acct, unitPriceView())
	if !errors.Is(err, errs.ErrMarketNotFound) {
		t.Errorf("got %v, want MarketNotFound", err)
	}
}

func TestCheckTradeRisk(t *testing.T) {
	healthy := state.MarginSummary{TotalCollateral: 10, InitialMarginRequirement: 8, MaintenanceMarginRequirement: 4}
	underInitial := state.MarginSummary{TotalCollateral: 6, InitialMarginRequirement: 8, MaintenanceMarginRequirement: 4}
	underMaint := state.MarginSummary{TotalCollateral: 3, InitialMarginRequirement: 8, MaintenanceMarginRequirement: 4}

	if err := state.CheckTradeRisk(healthy, underInitial, true); !errors.Is(err, errs.ErrInsufficientMargin) {
		t.Errorf("increasing under initial: got %v", err)
	}
	if err := state.CheckTradeRisk(healthy, underInitial, false); err != nil {
		t.Errorf("reducing under initial: got %v", err)
	}
	if err := state.CheckTradeRisk(healthy, underMaint, false); !errors.Is(err, errs.ErrInsufficientMargin) {
		t.Errorf("reducing below maintenance: got %v", err)
	}
	if err := state.CheckTradeRisk(underMaint, underMaint, false); err != nil {
		t.Errorf("already below maintenance: got %v", err)
	}
}

func TestValidateMarginRatios(t *testing.T) {
	tests := []struct {
		name string
		r    state.MarginRatios
		ok   bool
	}{
		{"defaults", state.DefaultMarginRatios(), true},
		{"zero maintenance", state.MarginRatios{Initial: 1000, Partial: 500}, false},
		{"partial below maintenance", state.MarginRatios{Initial: 1000, Partial: 400, Maintenance: 500}, false},
		{"initial above 100%", state.MarginRatios{Initial: 10_001, Partial: 500, Maintenance: 500}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := state.ValidateMarginRatios(tt.r)
			if (err == nil) != tt.ok {
				t.Errorf("got %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestApplyMarketParams_AllOrNothing(t *testing.T) {
	m := newTestMarket(t)
	spread := int64(1_000)
	badStep := int64(0)
	err := state.ApplyMarketParams(m, state.MarketParamsUpdate{
		BaseSpread:              &spread,
		BaseAssetAmountStepSize: &badStep,
	})
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("got %v, want InvalidArgument", err)
	}
	if m.AMM.BaseSpread != 0 {
		t.Errorf("spread applied despite error: %d", m.AMM.BaseSpread)
	}

	if err := state.ApplyMarketParams(m, state.MarketParamsUpdate{BaseSpread: &spread}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.AMM.LongSpread != 500 || m.AMM.ShortSpread != 500 {
		t.Errorf("spreads: got %d/%d", m.AMM.LongSpread, m.AMM.ShortSpread)
	}
}

// ============================================================================
// Test: SettlePnl
// ============================================================================

func TestSettlePnl_GainCappedByPool(t *testing.T) {
	m := newTestMarket(t)
	m.PnlPool = 3 * usdc
	acct := state.NewUserAccount(uuid.New(), "", 0)
	pos := acct.GetOrCreatePosition(0)
	pos.QuoteAssetAmount = 5 * usdc

	res, err := state.SettlePnl(m, acct, pos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Settled != 3*usdc {
		t.Errorf("settled: got %d, want %d", res.Settled, 3*usdc)
	}
	if m.PnlPool != 0 || pos.QuoteAssetAmount != 2*usdc {
		t.Errorf("pool=%d quote=%d", m.PnlPool, pos.QuoteAssetAmount)
	}
	if acct.CollateralValue() != 3*usdc {
		t.Errorf("collateral: got %d", acct.CollateralValue())
	}
}

func TestSettlePnl_LossBecomesBorrow(t *testing.T) {
	m := newTestMarket(t)
	acct := state.NewUserAccount(uuid.New(), "", 0)
	acct.ApplyCollateral(usdc)
	pos := acct.GetOrCreatePosition(0)
	pos.QuoteAssetAmount = -4 * usdc

	res, err := state.SettlePnl(m, acct, pos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Settled != -4*usdc || m.PnlPool != 4*usdc {
		t.Errorf("settled=%d pool=%d", res.Settled, m.PnlPool)
	}
	b := acct.Bank(state.QuoteBankIndex)
	if b.BalanceType != state.BalanceTypeBorrow || b.Balance != 3*usdc {
		t.Errorf("bank: got %s %d", b.BalanceType, b.Balance)
	}
}

// ============================================================================
// Test: InsuranceVault
// ============================================================================

func TestInsuranceVault(t *testing.T) {
	v := &state.InsuranceVault{}
	if err := v.Deposit(5 * usdc); err != nil {
		t.Fatal(err)
	}
	if err := v.Withdraw(6 * usdc); !errors.Is(err, errs.ErrInsufficientVaultBalance) {
		t.Errorf("overdraw: got %v", err)
	}
	if err := v.Withdraw(2 * usdc); err != nil {
		t.Fatal(err)
	}
	if v.Balance != 3*usdc || v.TotalWithdrawn != 2*usdc {
		t.Errorf("balance=%d withdrawn=%d", v.Balance, v.TotalWithdrawn)
	}
	covered, remaining := v.ComputeCoverage(4 * usdc)
	if covered != 3*usdc || remaining != usdc {
		t.Errorf("coverage: got %d/%d", covered, remaining)
	}
}

// ============================================================================
// Test: OracleCache / FundingManager / registries
// ============================================================================

func TestOracleCache_IgnoresStaleSequence(t *testing.T) {
	c := state.NewOracleCache(60)
	c.Update(0, state.OraclePrice{Price: 100, Ts: 10, Sequence: 2})
	ok, err := c.Update(0, state.OraclePrice{Price: 90, Ts: 11, Sequence: 2})
	if err != nil || ok {
		t.Errorf("duplicate sequence accepted: ok=%v err=%v", ok, err)
	}
	p, _ := c.OraclePrice(0)
	if p.Price != 100 {
		t.Errorf("price: got %d", p.Price)
	}
	if _, err := c.Fresh(0, 100); !errors.Is(err, errs.ErrStaleOracle) {
		t.Errorf("stale: got %v", err)
	}
	if _, err := c.Fresh(0, 50); err != nil {
		t.Errorf("fresh: got %v", err)
	}
}

func TestFundingManager_Epochs(t *testing.T) {
	fm := state.NewFundingManager(2)
	for i := 0; i < 3; i++ {
		rec := fm.Record(1, amm.FundingUpdate{Rate: int64(i)})
		if rec.EpochID != int64(i) {
			t.Errorf("epoch: got %d, want %d", rec.EpochID, i)
		}
	}
	recent := fm.Recent(1, 10)
	if len(recent) != 2 || recent[0].Rate != 2 || recent[1].Rate != 1 {
		t.Errorf("recent: %+v", recent)
	}
	if err := fm.Restore(state.FundingRecord{MarketIndex: 1, EpochID: 5}); err == nil {
		t.Error("epoch gap should fail")
	}
	if err := fm.Restore(state.FundingRecord{MarketIndex: 1, EpochID: 0}); err != nil {
		t.Errorf("duplicate should be skipped: %v", err)
	}
}

func TestMarketManager(t *testing.T) {
	mm := state.NewMarketManager()
	if _, err := mm.Create(newTestMarket(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := mm.Create(newTestMarket(t)); !errors.Is(err, errs.ErrMarketAlreadyExists) {
		t.Errorf("duplicate: got %v", err)
	}
	if _, err := mm.Get(9); !errors.Is(err, errs.ErrMarketNotFound) {
		t.Errorf("missing: got %v", err)
	}
	risk, err := mm.MarketRisk(0)
	if err != nil {
		t.Fatal(err)
	}
	if risk.MarkPrice != fpmath.MarkPricePrecision {
		t.Errorf("published price: got %d", risk.MarkPrice)
	}
}

func TestAccountManager(t *testing.T) {
	am := state.NewAccountManager()
	id := uuid.New()
	if _, err := am.Create(state.NewUserAccount(id, "", 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := am.Create(state.NewUserAccount(id, "", 0)); !errors.Is(err, errs.ErrUserAccountAlreadyExists) {
		t.Errorf("duplicate: got %v", err)
	}
	if _, err := am.Get(uuid.New()); !errors.Is(err, errs.ErrUserAccountNotFound) {
		t.Errorf("missing: got %v", err)
	}
	if am.Len() != 1 {
		t.Errorf("len: got %d", am.Len())
	}
}
