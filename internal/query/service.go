package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"VammLedger/internal/errs"
	fpmath "VammLedger/internal/math"
	"VammLedger/internal/observability"

	"github.com/google/uuid"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// QueryService provides read-only access to the projection tables. Every
// response carries as_of_sequence, the projection watermark it was read at.
type QueryService struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewQueryService(db *sql.DB, metrics *observability.Metrics) *QueryService {
	return &QueryService{db: db, metrics: metrics}
}

// observe records one request; call as defer qs.observe("x", time.Now(), &err).
func (qs *QueryService) observe(endpoint string, start time.Time, err *error) {
	if qs.metrics == nil {
		return
	}
	status := "ok"
	if *err != nil {
		status = "error"
	}
	qs.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
	qs.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

const marketColumns = `
	market_index, name, base_asset_reserve, quote_asset_reserve, sqrt_k,
	peg_multiplier, mark_price, user_lp_shares, base_asset_amount_with_amm,
	total_fee_minus_distributions, pnl_pool, number_of_users`

type scanner interface {
	Scan(dest ...any) error
}

func scanMarket(s scanner, asOf int64) (MarketResponse, error) {
	var m MarketResponse
	if err := s.Scan(&m.MarketIndex, &m.Name, &m.BaseAssetReserve, &m.QuoteAssetReserve,
		&m.SqrtK, &m.PegMultiplier, &m.MarkPrice, &m.UserLpShares,
		&m.BaseAssetAmountWithAmm, &m.TotalFeeMinusDistributions, &m.PnlPool,
		&m.NumberOfUsers); err != nil {
		return m, err
	}
	m.MarkPriceDisplay = fpmath.FormatPrice(m.MarkPrice)
	m.PnlPoolDisplay = fpmath.FormatQuote(m.PnlPool)
	m.AsOfSequence = asOf
	return m, nil
}

// GetMarket returns one projected market.
func (qs *QueryService) GetMarket(ctx context.Context, marketIndex uint16) (resp *MarketResponse, err error) {
	defer qs.observe("get_market", time.Now(), &err)

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	row := qs.db.QueryRowContext(ctx,
		`SELECT `+marketColumns+` FROM projections.markets WHERE market_index = $1`, int32(marketIndex))
	m, err := scanMarket(row, asOf)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.CodeMarketNotFound, "market %d", marketIndex)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMarkets returns every projected market by index.
func (qs *QueryService) ListMarkets(ctx context.Context) (out []MarketResponse, err error) {
	defer qs.observe("list_markets", time.Now(), &err)

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	rows, err := qs.db.QueryContext(ctx,
		`SELECT `+marketColumns+` FROM projections.markets ORDER BY market_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMarket(rows, asOf)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetAccount returns a user's collateral summary and ledger balances.
func (qs *QueryService) GetAccount(ctx context.Context, userID uuid.UUID) (resp *AccountResponse, err error) {
	defer qs.observe("get_account", time.Now(), &err)

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	a := &AccountResponse{UserID: userID, AsOfSequence: asOf}
	err = qs.db.QueryRowContext(ctx, `
		SELECT collateral, total_deposits, total_withdrawals, total_fee_paid
		FROM projections.accounts WHERE user_id = $1
	`, userID).Scan(&a.Collateral, &a.TotalDeposits, &a.TotalWithdrawals, &a.TotalFeePaid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.CodeUserAccountNotFound, "user %s", userID)
	}
	if err != nil {
		return nil, err
	}
	a.CollateralDisplay = fpmath.FormatQuote(a.Collateral)

	if a.Balances, err = qs.GetBalances(ctx, userID); err != nil {
		return nil, err
	}
	return a, nil
}

// GetPositions returns all positions for a user.
func (qs *QueryService) GetPositions(ctx context.Context, userID uuid.UUID) (positions []PositionResponse, err error) {
	defer qs.observe("get_positions", time.Now(), &err)

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT market_index, base_asset_amount, quote_asset_amount,
		       quote_entry_amount, lp_shares, settled_pnl
		FROM projections.positions
		WHERE user_id = $1
		ORDER BY market_index
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p := PositionResponse{UserID: userID, AsOfSequence: asOfSeq}
		if err := rows.Scan(
			&p.MarketIndex, &p.BaseAssetAmount, &p.QuoteAssetAmount,
			&p.QuoteEntryAmount, &p.LpShares, &p.SettledPnl,
		); err != nil {
			return nil, err
		}
		p.BaseAssetAmountDisplay = fpmath.FormatBase(p.BaseAssetAmount)
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

// GetFundingHistory returns a market's funding periods newest first.
// beforeEpoch is an exclusive cursor for the next page.
func (qs *QueryService) GetFundingHistory(
	ctx context.Context,
	marketIndex uint16,
	limit int,
	beforeEpoch *int64,
) (history []FundingHistoryResponse, err error) {
	defer qs.observe("get_funding_history", time.Now(), &err)

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT market_index, epoch_id, rate, long_rate, short_rate, amm_payment, capped,
		       mark_price_twap, oracle_price_twap, ts, sequence
		FROM projections.funding_history
		WHERE market_index = $1
	`
	args := []any{int32(marketIndex)}
	argIdx := 2

	if beforeEpoch != nil {
		query += fmt.Sprintf(" AND epoch_id < $%d", argIdx)
		args = append(args, *beforeEpoch)
		argIdx++
	}

	query += " ORDER BY epoch_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, clampLimit(limit))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		h := FundingHistoryResponse{AsOfSequence: asOfSeq}
		if err := rows.Scan(
			&h.MarketIndex, &h.EpochID, &h.Rate, &h.LongRate, &h.ShortRate,
			&h.AmmPayment, &h.Capped, &h.MarkPriceTwap, &h.OraclePriceTwap,
			&h.Timestamp, &h.Sequence,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// GetInsuranceVault returns the projected vault, zero before the first
// insurance command.
func (qs *QueryService) GetInsuranceVault(ctx context.Context) (resp *InsuranceVaultResponse, err error) {
	defer qs.observe("get_insurance_vault", time.Now(), &err)

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	v := &InsuranceVaultResponse{AsOfSequence: asOf}
	err = qs.db.QueryRowContext(ctx, `
		SELECT balance, total_deposited, total_withdrawn
		FROM projections.insurance_vault WHERE id = 1
	`).Scan(&v.Balance, &v.TotalDeposited, &v.TotalWithdrawn)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	v.BalanceDisplay = fpmath.FormatQuote(v.Balance)
	return v, nil
}

// GetJournalHistory returns journal entries touching the user, newest
// first. beforeSequence is an exclusive cursor.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	beforeSequence *int64,
) (entries []JournalHistoryEntry, err error) {
	defer qs.observe("get_journal_history", time.Now(), &err)

	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, ts
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []any{accountPrefix}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, clampLimit(limit))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		e.AmountDisplay = fpmath.FormatQuote(e.Amount)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks the hash chain, sequence continuity and the
// global ledger balance.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (report *IntegrityReport, err error) {
	defer qs.observe("verify_integrity", time.Now(), &err)
	report = &IntegrityReport{}

	if report.HashChainBreaks, err = qs.int64s(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash <> e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`); err != nil {
		return nil, err
	}

	if report.SequenceGaps, err = qs.int64s(ctx, `
		SELECT e1.sequence + 1
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence + 1
		WHERE e2.sequence IS NULL
		  AND e1.sequence < (SELECT MAX(sequence) FROM event_log.events)
		ORDER BY e1.sequence
		LIMIT 10
	`); err != nil {
		return nil, err
	}

	// every journal debits and credits the same amount, so each asset sums
	// to zero across all accounts
	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) AS total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) <> 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var u UnbalancedAsset
		if err := balanceRows.Scan(&u.AssetID, &u.Imbalance); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, u)
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 &&
		len(report.SequenceGaps) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) int64s(ctx context.Context, query string) ([]int64, error) {
	rows, err := qs.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}
