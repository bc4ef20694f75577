package query

import (
	"context"
	"fmt"

	fpmath "VammLedger/internal/math"

	"github.com/google/uuid"
)

// Balance is one projected ledger account.
type Balance struct {
	AccountPath string `json:"account_path"`
	AssetID     uint16 `json:"asset_id"`
	Balance     int64  `json:"balance"`
	Display     string `json:"display"`
}

// GetBalances lists every ledger account owned by the user.
func (qs *QueryService) GetBalances(ctx context.Context, userID uuid.UUID) ([]Balance, error) {
	return qs.balancesLike(ctx, fmt.Sprintf("user:%s:%%", userID))
}

// GetSystemBalances lists the market pnl pools and the insurance vault.
func (qs *QueryService) GetSystemBalances(ctx context.Context) ([]Balance, error) {
	return qs.balancesLike(ctx, "system:%")
}

func (qs *QueryService) balancesLike(ctx context.Context, pattern string) ([]Balance, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT account_path, asset_id, balance
		FROM projections.balances
		WHERE account_path LIKE $1
		ORDER BY account_path, asset_id
	`, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.AccountPath, &b.AssetID, &b.Balance); err != nil {
			return nil, err
		}
		b.Display = fpmath.FormatQuote(b.Balance)
		out = append(out, b)
	}
	return out, rows.Err()
}
