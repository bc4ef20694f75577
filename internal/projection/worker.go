package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"VammLedger/internal/core"
	"VammLedger/internal/ledger"
	"VammLedger/internal/observability"
	"VammLedger/internal/state"

	"github.com/rs/zerolog"
)

const workerID = "main"

// ProjectionWorker updates projection tables from committed commands. The
// engine feeds it through a dropping channel, so the tables are eventually
// consistent and can be rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	metrics   *observability.Metrics
	log       zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan core.CoreOutput, metrics *observability.Metrics) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       observability.NewLogger("projection"),
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}
			seq := output.Envelope.Sequence
			if seq <= pw.lastSeq {
				continue
			}
			start := time.Now()
			if err := pw.apply(ctx, output); err != nil {
				pw.log.Warn().Err(err).Int64("sequence", seq).Msg("projection update failed")
				continue
			}
			if pw.metrics != nil {
				pw.metrics.ProjectionUpdateDur.WithLabelValues(output.Envelope.EventType.String()).
					Observe(time.Since(start).Seconds())
			}
			pw.lastSeq = seq
		}
	}
}

func (pw *ProjectionWorker) apply(ctx context.Context, out core.CoreOutput) error {
	seq := out.Envelope.Sequence

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if out.Batch != nil {
		for _, j := range out.Batch.Journals {
			if err := applyJournal(ctx, tx, j, seq); err != nil {
				return fmt.Errorf("balance projection: %w", err)
			}
		}
	}
	if out.Market != nil {
		if err := upsertMarket(ctx, tx, out.Market, seq); err != nil {
			return fmt.Errorf("market projection: %w", err)
		}
	}
	if out.Account != nil {
		if err := upsertAccount(ctx, tx, out.Account, seq); err != nil {
			return fmt.Errorf("account projection: %w", err)
		}
	}
	if out.Funding != nil {
		if err := insertFunding(ctx, tx, out.Funding, seq); err != nil {
			return fmt.Errorf("funding projection: %w", err)
		}
	}
	if out.Vault != nil {
		if err := upsertVault(ctx, tx, out.Vault, seq); err != nil {
			return fmt.Errorf("vault projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $2, updated_at = NOW()
	`, workerID, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}
	return tx.Commit()
}

// applyJournal mirrors the ledger: the debit side grows, the credit side
// shrinks.
func applyJournal(ctx context.Context, tx *sql.Tx, j ledger.Journal, seq int64) error {
	const upsert = `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`
	if _, err := tx.ExecContext(ctx, upsert, j.DebitAccount.AccountPath(), int32(j.AssetID), j.Amount, seq); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, upsert, j.CreditAccount.AccountPath(), int32(j.AssetID), -j.Amount, seq)
	return err
}

func upsertMarket(ctx context.Context, tx *sql.Tx, m *state.Market, seq int64) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	price, err := m.AMM.MarkPrice()
	if err != nil {
		return err
	}
	a := &m.AMM
	_, err = tx.ExecContext(ctx, `
		INSERT INTO projections.markets (
			market_index, name, base_asset_reserve, quote_asset_reserve, sqrt_k,
			peg_multiplier, mark_price, user_lp_shares, base_asset_amount_with_amm,
			total_fee_minus_distributions, pnl_pool, number_of_users, data, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (market_index) DO UPDATE SET
			name = $2, base_asset_reserve = $3, quote_asset_reserve = $4, sqrt_k = $5,
			peg_multiplier = $6, mark_price = $7, user_lp_shares = $8,
			base_asset_amount_with_amm = $9, total_fee_minus_distributions = $10,
			pnl_pool = $11, number_of_users = $12, data = $13, last_sequence = $14
	`, int32(m.MarketIndex), m.Name, a.BaseAssetReserve, a.QuoteAssetReserve, a.SqrtK,
		a.PegMultiplier, price, a.UserLpShares, a.BaseAssetAmountWithAmm,
		a.TotalFeeMinusDistributions, m.PnlPool, m.NumberOfUsers, string(data), seq)
	return err
}

// upsertAccount replaces the user's row and all of their position rows, so
// pruned positions disappear from the projection too.
func upsertAccount(ctx context.Context, tx *sql.Tx, u *state.UserAccount, seq int64) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.accounts (
			user_id, collateral, total_deposits, total_withdrawals, total_fee_paid, data, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			collateral = $2, total_deposits = $3, total_withdrawals = $4,
			total_fee_paid = $5, data = $6, last_sequence = $7
	`, u.UserID, u.CollateralValue(), u.TotalDeposits, u.TotalWithdrawals, u.TotalFeePaid, string(data), seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM projections.positions WHERE user_id = $1`, u.UserID); err != nil {
		return err
	}
	for _, p := range u.Positions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.positions (
				user_id, market_index, base_asset_amount, quote_asset_amount,
				quote_entry_amount, lp_shares, settled_pnl, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, u.UserID, int32(p.MarketIndex), p.BaseAssetAmount, p.QuoteAssetAmount,
			p.QuoteEntryAmount, p.LpShares, p.SettledPnl, seq); err != nil {
			return err
		}
	}
	return nil
}

func upsertVault(ctx context.Context, tx *sql.Tx, v *state.InsuranceVault, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.insurance_vault (id, balance, total_deposited, total_withdrawn, last_sequence)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			balance = $1, total_deposited = $2, total_withdrawn = $3, last_sequence = $4
	`, v.Balance, v.TotalDeposited, v.TotalWithdrawn, seq)
	return err
}

// RebuildBalances recomputes projections.balances from the journal. Market,
// account and funding rows are refreshed by the next command touching them
// or by replaying the log through a fresh worker.
func RebuildBalances(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE projections.balances`); err != nil {
		return fmt.Errorf("truncate balances: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT account_path, asset_id, SUM(delta), MAX(sequence)
		FROM (
			SELECT debit_account AS account_path, asset_id, amount AS delta, sequence
			FROM event_log.journal
			UNION ALL
			SELECT credit_account, asset_id, -amount, sequence
			FROM event_log.journal
		) legs
		GROUP BY account_path, asset_id
	`); err != nil {
		return fmt.Errorf("rebuild balances: %w", err)
	}
	return tx.Commit()
}
