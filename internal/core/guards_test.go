package core_test

import (
	"context"
	"errors"
	"testing"

	"VammLedger/internal/core"
	"VammLedger/internal/errs"
)

type fakeDB struct {
	keys map[string]bool
	err  error
}

func (f *fakeDB) IsDuplicate(_ context.Context, eventType, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.keys[eventType+":"+key], nil
}

// ============================================================================
// Test: Idempotency
// ============================================================================

func TestIdempotency_LRUThenDB(t *testing.T) {
	db := &fakeDB{keys: map[string]bool{"deposit:old": true}}
	ic, err := core.NewIdempotencyChecker(4, db, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if ic.IsDuplicate(ctx, "deposit", "new") {
		t.Error("unseen key reported as duplicate")
	}
	ic.MarkProcessed("deposit", "new")
	if !ic.IsDuplicate(ctx, "deposit", "new") {
		t.Error("processed key not found in lru")
	}
	if ic.IsDuplicate(ctx, "withdraw", "new") {
		t.Error("keys must be scoped by event type")
	}

	if !ic.IsDuplicate(ctx, "deposit", "old") {
		t.Error("db tier miss")
	}
	if !ic.Seen("deposit", "old") {
		t.Error("db hit was not cached")
	}
}

func TestIdempotency_DBErrorFailsOpen(t *testing.T) {
	ic, err := core.NewIdempotencyChecker(4, &fakeDB{err: errors.New("down")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ic.IsDuplicate(context.Background(), "deposit", "k") {
		t.Error("db error treated as duplicate")
	}
}

func TestIdempotency_EvictsOldest(t *testing.T) {
	ic, err := core.NewIdempotencyChecker(2, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	ic.MarkProcessed("deposit", "a")
	ic.MarkProcessed("deposit", "b")
	ic.MarkProcessed("deposit", "c")

	if ic.Len() != 2 {
		t.Fatalf("len: got %d, want 2", ic.Len())
	}
	if ic.Seen("deposit", "a") {
		t.Error("oldest key survived eviction")
	}
	keys := ic.Keys()
	if len(keys) != 2 || keys[0] != "deposit:b" || keys[1] != "deposit:c" {
		t.Errorf("keys: got %v", keys)
	}

	warm, _ := core.NewIdempotencyChecker(2, nil, nil)
	warm.WarmFromKeys(keys)
	if !warm.Seen("deposit", "c") {
		t.Error("warmed key missing")
	}
}

// ============================================================================
// Test: Sequence validation
// ============================================================================

func TestSequenceValidator_Partition(t *testing.T) {
	sv := core.NewSequenceValidator(nil)

	if err := sv.ValidateSequence("market:0", 0, false); err != nil {
		t.Fatalf("unordered command rejected: %v", err)
	}
	if err := sv.ValidateSequence("market:0", 7, false); err != nil {
		t.Fatalf("first sequence rejected: %v", err)
	}
	if err := sv.ValidateSequence("market:0", 8, false); err != nil {
		t.Fatalf("next sequence rejected: %v", err)
	}
	if err := sv.ValidateSequence("market:0", 8, true); err != nil {
		t.Errorf("duplicate replay rejected: %v", err)
	}
	if err := sv.ValidateSequence("market:0", 8, false); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("out of order: got %v", err)
	}
	if err := sv.ValidateSequence("market:0", 11, false); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("gap: got %v", err)
	}
	if got := sv.GetExpectedSequence("market:0"); got != 9 {
		t.Errorf("expected: got %d, want 9", got)
	}

	m := sv.Metrics()
	if m.GetGaps("market:0") != 1 || m.GetOutOfOrder("market:0") != 1 {
		t.Errorf("gaps %d out of order %d", m.GetGaps("market:0"), m.GetOutOfOrder("market:0"))
	}

	// partitions are independent
	if err := sv.ValidateSequence("market:1", 100, false); err != nil {
		t.Error(err)
	}

	restored := core.NewSequenceValidator(nil)
	for p, next := range sv.GetAllPartitions() {
		restored.RestorePartition(p, next)
	}
	if err := restored.ValidateSequence("market:1", 101, false); err != nil {
		t.Errorf("restored partition: %v", err)
	}
}

func TestSequenceValidator_OracleTolerance(t *testing.T) {
	sv := core.NewSequenceValidator(nil)
	for _, seq := range []int64{3, 4, 9} {
		if err := sv.ValidatePriceSequence(2, seq); err != nil {
			t.Fatalf("seq %d: %v", seq, err)
		}
	}
	if err := sv.ValidatePriceSequence(2, 9); !errors.Is(err, errs.ErrStaleOracle) {
		t.Errorf("replayed reading: got %v", err)
	}
	if gaps := sv.Metrics().GetGaps("oracle:2"); gaps != 1 {
		t.Errorf("gaps: got %d, want 1", gaps)
	}
}

// ============================================================================
// Test: Hash chain
// ============================================================================

func TestStateHasher_Chain(t *testing.T) {
	h := core.NewStateHasher()
	if h.GetPrevHash() != core.GenesisHash() {
		t.Fatal("fresh hasher not at genesis")
	}
	first := h.ComputeHash(1, []byte("a"))
	if want := core.ChainHash(core.GenesisHash(), 1, []byte("a")); first != want {
		t.Error("ComputeHash disagrees with ChainHash")
	}
	second := h.ComputeHash(2, []byte("b"))
	if second == core.ChainHash(core.GenesisHash(), 2, []byte("b")) {
		t.Error("hash does not depend on the previous tip")
	}
	if h.GetPrevHash() != second {
		t.Error("tip not advanced")
	}
}
