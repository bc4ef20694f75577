package ledger_test

import (
	"encoding/json"
	"testing"

	"VammLedger/internal/ledger"

	"github.com/google/uuid"
)

const quote = ledger.QuoteAssetID

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_UserPath(t *testing.T) {
	userID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := ledger.NewUserAccountKey(userID, ledger.SubTypeCollateral, quote)

	path := key.AccountPath()
	expected := "user:550e8400-e29b-41d4-a716-446655440000:collateral:USDC"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_PnlPoolPath(t *testing.T) {
	key := ledger.NewPnlPoolAccountKey(3, quote)

	if path := key.AccountPath(); path != "system:market:3:pnl_pool:USDC" {
		t.Errorf("got %q, want %q", path, "system:market:3:pnl_pool:USDC")
	}
	if key.MarketIndex() != 3 {
		t.Errorf("market index: got %d, want 3", key.MarketIndex())
	}
	if key == ledger.NewPnlPoolAccountKey(4, quote) {
		t.Error("pools of different markets must not share a key")
	}
}

func TestAccountKey_InsuranceVaultPath(t *testing.T) {
	key := ledger.NewInsuranceVaultAccountKey(quote)
	if path := key.AccountPath(); path != "system:insurance_vault:USDC" {
		t.Errorf("got %q, want %q", path, "system:insurance_vault:USDC")
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	key := ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, quote)

	path := key.AccountPath()
	if path != "external:deposits:USDC" {
		t.Errorf("got %q, want %q", path, "external:deposits:USDC")
	}
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	keys := []ledger.AccountKey{
		ledger.NewUserAccountKey(uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"), ledger.SubTypeCollateral, quote),
		ledger.NewPnlPoolAccountKey(65535, quote),
		ledger.NewInsuranceVaultAccountKey(quote),
		ledger.NewExternalAccountKey(ledger.SubTypeExternalWithdrawals, quote),
	}
	for _, want := range keys {
		got, err := ledger.ParseAccountPath(want.AccountPath())
		if err != nil {
			t.Fatalf("parse %s: %v", want, err)
		}
		if got != want {
			t.Errorf("parse %s: got %+v, want %+v", want, got, want)
		}
	}
}

func TestParseAccountPath_Rejects(t *testing.T) {
	for _, path := range []string{
		"",
		"user:not-a-uuid:collateral:USDC",
		"user:550e8400-e29b-41d4-a716-446655440000:pnl_pool:USDC",
		"system:market:70000:pnl_pool:USDC",
		"system:insurance_vault:DOGE",
		"external:collateral:USDC",
	} {
		if _, err := ledger.ParseAccountPath(path); err == nil {
			t.Errorf("%q: expected error", path)
		}
	}
}

func TestAccountKey_JSONMapKey(t *testing.T) {
	in := map[ledger.AccountKey]int64{ledger.NewPnlPoolAccountKey(2, quote): 7}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"system:market:2:pnl_pool:USDC":7}` {
		t.Errorf("got %s", raw)
	}
	var out map[ledger.AccountKey]int64
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out[ledger.NewPnlPoolAccountKey(2, quote)] != 7 {
		t.Errorf("got %v, want pool 2 at 7", out)
	}
}

func TestGetAssetID_Known(t *testing.T) {
	id, ok := ledger.GetAssetID("USDC")
	if !ok {
		t.Fatal("USDC should be a known asset")
	}
	if id != ledger.QuoteAssetID {
		t.Errorf("USDC asset ID: got %d, want %d", id, ledger.QuoteAssetID)
	}
}

func TestGetAssetID_Unknown(t *testing.T) {
	_, ok := ledger.GetAssetID("DOGE")
	if ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: Batch
// ============================================================================

func TestBatch_TransferSkipsZeroAndFlipsNegative(t *testing.T) {
	userID := uuid.New()
	b := ledger.NewBatch("evt-1", 7, 100)
	user := ledger.NewUserAccountKey(userID, ledger.SubTypeCollateral, quote)
	pool := ledger.NewPnlPoolAccountKey(0, quote)

	b.Transfer(user, pool, 0, ledger.JournalTypePnlSettle)
	if !b.IsEmpty() {
		t.Fatal("zero transfer should add no leg")
	}

	b.Transfer(user, pool, -250, ledger.JournalTypePnlSettle)
	j := b.Journals[0]
	if j.DebitAccount != pool || j.CreditAccount != user || j.Amount != 250 {
		t.Errorf("negative transfer not reversed: %+v", j)
	}
	if j.Sequence != 7 || j.EventRef != "evt-1" || j.BatchID != b.BatchID {
		t.Errorf("leg not stamped from batch: %+v", j)
	}
}

func TestNewBatch_DeterministicIDs(t *testing.T) {
	a := ledger.NewBatch("evt-1", 7, 100)
	b := ledger.NewBatch("evt-1", 7, 100)
	if a.BatchID != b.BatchID {
		t.Error("same event and sequence should produce the same batch id")
	}
	if c := ledger.NewBatch("evt-2", 7, 100); c.BatchID == a.BatchID {
		t.Error("different events should produce different batch ids")
	}
}

func TestBatchValidate_EmptyBatch_Fails(t *testing.T) {
	b := ledger.NewBatch("evt", 1, 0)
	if err := b.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

func TestBatchValidate_SelfTransfer_Fails(t *testing.T) {
	b := ledger.NewBatch("evt", 1, 0)
	key := ledger.NewInsuranceVaultAccountKey(quote)
	b.Transfer(key, key, 10, ledger.JournalTypeInsuranceToMarket)
	if err := b.Validate(); err == nil {
		t.Error("self-transfer should fail validation")
	}
}

func TestBatchValidate_MismatchedBatchID_Fails(t *testing.T) {
	b := ledger.NewBatch("evt", 1, 0)
	jg := ledger.NewJournalGenerator(quote)
	jg.Deposit(b, uuid.New(), 10)
	b.Journals[0].BatchID = uuid.New()
	if err := b.Validate(); err == nil {
		t.Error("mismatched batch id should fail validation")
	}
}

// ============================================================================
// Test: BalanceTracker + JournalGenerator
// ============================================================================

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	if balance := bt.GetUserCollateral(uuid.New(), quote); balance != 0 {
		t.Errorf("initial balance should be 0, got %d", balance)
	}
}

func TestBalanceTracker_InsuranceFlow(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(quote)
	userID := uuid.New()

	steps := []func(b *ledger.Batch){
		func(b *ledger.Batch) { jg.Deposit(b, userID, 10_000_000) },
		func(b *ledger.Batch) { jg.PnlSettlement(b, userID, 0, -5_000) },
		func(b *ledger.Batch) { jg.MarketToInsurance(b, 0, 2_500) },
		func(b *ledger.Batch) { jg.InsuranceWithdrawal(b, 1_250) },
		func(b *ledger.Batch) { jg.InsuranceToMarket(b, 0, 1_250) },
	}
	for i, step := range steps {
		b := ledger.NewBatch("evt", int64(i), 0)
		step(b)
		if err := bt.ApplyBatch(b); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	if got := bt.GetUserCollateral(userID, quote); got != 9_995_000 {
		t.Errorf("collateral: got %d, want 9_995_000", got)
	}
	if got := bt.GetPnlPool(0, quote); got != 3_750 {
		t.Errorf("pnl pool: got %d, want 3_750", got)
	}
	if got := bt.GetInsuranceVault(quote); got != 0 {
		t.Errorf("insurance vault: got %d, want 0", got)
	}
	if got := bt.CollateralVault(quote); got != 9_998_750 {
		t.Errorf("collateral vault: got %d, want 9_998_750", got)
	}

	v := ledger.NewInvariantValidator(bt, quote)
	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("ledger should be zero-sum: %v", err)
	}
	if err := v.ValidateUserCollateral(userID, 9_995_000); err != nil {
		t.Error(err)
	}
	if err := v.ValidatePnlPool(0, 3_750); err != nil {
		t.Error(err)
	}
	if err := v.ValidateInsuranceVault(0); err != nil {
		t.Error(err)
	}
}

func TestBalanceTracker_BorrowIsNegativeCollateral(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(quote)
	userID := uuid.New()

	b := ledger.NewBatch("evt", 1, 0)
	jg.Deposit(b, userID, 1_000)
	jg.PnlSettlement(b, userID, 2, -4_000)
	if err := bt.ApplyBatch(b); err != nil {
		t.Fatal(err)
	}
	if got := bt.GetUserCollateral(userID, quote); got != -3_000 {
		t.Errorf("collateral: got %d, want -3_000", got)
	}
	if err := bt.ValidateNonNegative(ledger.NewUserAccountKey(userID, ledger.SubTypeCollateral, quote)); err == nil {
		t.Error("negative collateral should be reported")
	}
}

func TestBalanceTracker_Snapshot(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(quote)
	b := ledger.NewBatch("evt", 1, 0)
	jg.Deposit(b, uuid.New(), 100)
	bt.ApplyBatch(b)

	snap := bt.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot entries: got %d, want 2", len(snap))
	}

	restored := ledger.NewBalanceTracker()
	for k, v := range snap {
		restored.SetBalance(k, v)
	}
	if err := ledger.NewInvariantValidator(restored, quote).ValidateGlobalBalance(); err != nil {
		t.Errorf("restored ledger should be zero-sum: %v", err)
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_GlobalBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt, quote)

	// Empty ledger should pass
	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("empty ledger should have zero global balance: %v", err)
	}

	bt.SetBalance(ledger.NewInsuranceVaultAccountKey(quote), 5)
	if err := v.ValidateGlobalBalance(); err == nil {
		t.Error("unbalanced ledger should fail")
	}
	if err := v.ValidateInsuranceVault(4); err == nil {
		t.Error("vault mismatch should fail")
	}
}
