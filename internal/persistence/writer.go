package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"VammLedger/internal/core"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EventLogWriter appends the durable log: one event row per committed
// command plus its journal rows.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow is one event_log.events row.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	MarketIndex    sql.NullInt32
	Payload        []byte // JSON-encoded command
	StateHash      []byte
	PrevHash       []byte
	Timestamp      int64
	SourceSequence int64
}

// JournalRow is one event_log.journal row.
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   string
	Timestamp     int64
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// RowsFromOutput flattens one committed command into its log rows.
func RowsFromOutput(out core.CoreOutput) (EventRow, []JournalRow) {
	env := out.Envelope
	row := EventRow{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Payload:        env.Payload,
		StateHash:      append([]byte(nil), env.StateHash[:]...),
		PrevHash:       append([]byte(nil), env.PrevHash[:]...),
		Timestamp:      env.Timestamp,
		SourceSequence: env.SourceSequence,
	}
	if env.MarketIndex != nil {
		row.MarketIndex = sql.NullInt32{Int32: int32(*env.MarketIndex), Valid: true}
	}

	if out.Batch == nil {
		return row, nil
	}
	journals := make([]JournalRow, 0, len(out.Batch.Journals))
	for _, j := range out.Batch.Journals {
		journals = append(journals, JournalRow{
			JournalID:     j.JournalID.String(),
			BatchID:       j.BatchID.String(),
			EventRef:      j.EventRef,
			Sequence:      j.Sequence,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			AssetID:       uint16(j.AssetID),
			Amount:        j.Amount,
			JournalType:   j.JournalType.String(),
			Timestamp:     j.Timestamp,
		})
	}
	return row, journals
}

// maxParams is Postgres' bind parameter limit per statement.
const maxParams = 65535

// insertRows writes rows with multi-row INSERTs, splitting so no statement
// exceeds maxParams. Conflicting rows are skipped, which makes a retried
// batch a no-op.
func insertRows(ctx context.Context, ex execer, table string, cols []string, conflict string, rows [][]any) error {
	width := len(cols)
	per := maxParams / width
	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, strings.Join(cols, ", "))
	tail := fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", conflict)

	for start := 0; start < len(rows); start += per {
		chunk := rows[start:min(start+per, len(rows))]

		var b strings.Builder
		b.WriteString(head)
		args := make([]any, 0, len(chunk)*width)
		for i, row := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('(')
			for c := range width {
				if c > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "$%d", i*width+c+1)
			}
			b.WriteByte(')')
			args = append(args, row...)
		}
		b.WriteString(tail)

		if _, err := ex.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

var eventColumns = []string{
	"sequence", "event_type", "idempotency_key", "market_index", "payload",
	"state_hash", "prev_hash", "ts", "source_sequence",
}

// WriteEventBatch appends committed commands to event_log.events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = []any{
			e.Sequence, e.EventType, e.IdempotencyKey, e.MarketIndex, e.Payload,
			e.StateHash, e.PrevHash, e.Timestamp, e.SourceSequence,
		}
	}
	return insertRows(ctx, ex, "event_log.events", eventColumns, "sequence", rows)
}

var journalColumns = []string{
	"journal_id", "batch_id", "event_ref", "sequence", "debit_account",
	"credit_account", "asset_id", "amount", "journal_type", "ts",
}

// WriteJournalBatch appends double-entry rows to event_log.journal.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, ex execer, journals []JournalRow) error {
	rows := make([][]any, len(journals))
	for i, j := range journals {
		rows[i] = []any{
			j.JournalID, j.BatchID, j.EventRef, j.Sequence, j.DebitAccount,
			j.CreditAccount, int32(j.AssetID), j.Amount, j.JournalType, j.Timestamp,
		}
	}
	return insertRows(ctx, ex, "event_log.journal", journalColumns, "journal_id", rows)
}
