package projection

import (
	"context"
	"database/sql"

	"VammLedger/internal/state"
)

// insertFunding appends one funding period. Epochs are unique per market,
// so a redelivered output is a no-op.
func insertFunding(ctx context.Context, tx *sql.Tx, rec *state.FundingRecord, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.funding_history (
			market_index, epoch_id, rate, long_rate, short_rate, amm_payment, capped,
			mark_price_twap, oracle_price_twap, ts, sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (market_index, epoch_id) DO NOTHING
	`, int32(rec.MarketIndex), rec.EpochID, rec.Rate, rec.LongRate, rec.ShortRate,
		rec.AmmPayment, rec.Capped, rec.MarkPriceTwap, rec.OraclePriceTwap, rec.Ts, seq)
	return err
}
