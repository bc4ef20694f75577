package core

import (
	"context"

	"VammLedger/internal/event"
	"VammLedger/internal/ledger"
	"VammLedger/internal/state"

	"github.com/google/uuid"
)

// txn is one command in flight: the locks it holds and private copies of
// everything it mutates. Nothing is visible to other commands until commit.
type txn struct {
	e   *Engine
	evt event.Event
	now int64

	marketSlot *state.MarketSlot
	market     *state.Market
	newMarket  bool

	userSlot *state.AccountSlot
	user     *state.UserAccount
	newUser  bool

	vaultLocked bool
	vault       state.InsuranceVault

	// journal legs, written once the sequence is known
	legs []func(b *ledger.Batch)
	// custody transfers run after validation and before commit
	custody []func(ctx context.Context) error
	// side effects on shared caches, run at install time
	onCommit []func()

	unlocks []func()
}

func (e *Engine) begin(evt event.Event) *txn {
	return &txn{e: e, evt: evt, now: evt.OccurredAt()}
}

// lockMarket must be called before lockUser and lockVault.
func (tx *txn) lockMarket(marketIndex uint16) error {
	slot, err := tx.e.markets.Get(marketIndex)
	if err != nil {
		return err
	}
	slot.Lock()
	tx.unlocks = append(tx.unlocks, slot.Unlock)
	tx.marketSlot = slot
	tx.market = slot.Market().Clone()
	return nil
}

func (tx *txn) lockUser(userID uuid.UUID) error {
	slot, err := tx.e.accounts.Get(userID)
	if err != nil {
		return err
	}
	slot.Lock()
	tx.unlocks = append(tx.unlocks, slot.Unlock)
	tx.userSlot = slot
	tx.user = slot.Account().Clone()
	return nil
}

func (tx *txn) lockVault() {
	tx.e.vaultMu.Lock()
	tx.unlocks = append(tx.unlocks, tx.e.vaultMu.Unlock)
	tx.vaultLocked = true
	tx.vault = tx.e.vault
}

func (tx *txn) release() {
	for i := len(tx.unlocks) - 1; i >= 0; i-- {
		tx.unlocks[i]()
	}
	tx.unlocks = nil
}

func (tx *txn) journal(leg func(b *ledger.Batch)) {
	tx.legs = append(tx.legs, leg)
}

// view resolves margin inputs: the working copy for the locked market and
// published risk for every other market.
func (tx *txn) view() state.MarketView {
	return txView{tx: tx}
}

type txView struct{ tx *txn }

func (v txView) MarketRisk(marketIndex uint16) (state.MarketRisk, error) {
	if m := v.tx.market; m != nil && m.MarketIndex == marketIndex {
		return m.Risk()
	}
	return v.tx.e.markets.MarketRisk(marketIndex)
}
