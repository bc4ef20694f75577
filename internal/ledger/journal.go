package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeDeposit JournalType = iota
	JournalTypeWithdrawal
	JournalTypePnlSettle
	JournalTypeMarketToInsurance
	JournalTypeInsuranceWithdrawal
	JournalTypeInsuranceToMarket
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeDeposit:
		return "deposit"
	case JournalTypeWithdrawal:
		return "withdrawal"
	case JournalTypePnlSettle:
		return "pnl_settle"
	case JournalTypeMarketToInsurance:
		return "market_to_insurance"
	case JournalTypeInsuranceWithdrawal:
		return "insurance_withdrawal"
	case JournalTypeInsuranceToMarket:
		return "insurance_to_market"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Derived from the batch and leg index
	BatchID       uuid.UUID   // Groups balanced entries
	EventRef      string      // Idempotency key of source event
	Sequence      int64       // Global event sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	AssetID       AssetID     // Asset being transferred
	Amount        int64       // Fixed-point amount (ALWAYS positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Command timestamp (unix seconds)
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// batchNamespace scopes batch ids so that replaying an event yields the
// same ids.
var batchNamespace = uuid.MustParse("6f1c52e4-0d7a-4c1e-9b55-2f0c8d1a7e30")

// NewBatch opens an empty batch for one event.
func NewBatch(eventRef string, sequence, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.NewSHA1(batchNamespace, []byte(fmt.Sprintf("%s/%d", eventRef, sequence))),
		EventRef:  eventRef,
		Sequence:  sequence,
		Timestamp: timestamp,
	}
}

// Transfer appends a leg moving amount from credit to debit. Zero amounts
// are skipped and negative amounts reverse the direction.
func (b *Batch) Transfer(debit, credit AccountKey, amount int64, jt JournalType) {
	if amount == 0 {
		return
	}
	if amount < 0 {
		debit, credit, amount = credit, debit, -amount
	}
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.NewSHA1(b.BatchID, []byte{byte(len(b.Journals)), byte(len(b.Journals) >> 8)}),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       debit.AssetID,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// IsEmpty reports whether no leg was added.
func (b *Batch) IsEmpty() bool { return len(b.Journals) == 0 }

// Validate ensures the batch is well-formed.
// Each journal entry is a balanced transfer by construction (a single
// positive amount moves from credit account to debit account), so
// Σ debits == Σ credits holds per entry.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}

		if j.DebitAccount.AssetID != j.CreditAccount.AssetID {
			return fmt.Errorf("journal %s moves between assets", j.JournalID)
		}
	}

	return nil
}
