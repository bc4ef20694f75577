package query

import "github.com/google/uuid"

// Amounts are returned both as raw fixed-point integers and as decimal
// strings at the value's own precision.

// MarketResponse is the projected state of one market.
type MarketResponse struct {
	MarketIndex                uint16 `json:"market_index"`
	Name                       string `json:"name"`
	BaseAssetReserve           int64  `json:"base_asset_reserve"`
	QuoteAssetReserve          int64  `json:"quote_asset_reserve"`
	SqrtK                      int64  `json:"sqrt_k"`
	PegMultiplier              int64  `json:"peg_multiplier"`
	MarkPrice                  int64  `json:"mark_price"`
	MarkPriceDisplay           string `json:"mark_price_display"`
	UserLpShares               int64  `json:"user_lp_shares"`
	BaseAssetAmountWithAmm     int64  `json:"base_asset_amount_with_amm"`
	TotalFeeMinusDistributions int64  `json:"total_fee_minus_distributions"`
	PnlPool                    int64  `json:"pnl_pool"`
	PnlPoolDisplay             string `json:"pnl_pool_display"`
	NumberOfUsers              int64  `json:"number_of_users"`
	AsOfSequence               int64  `json:"as_of_sequence"`
}

// AccountResponse is a user's projected collateral and lifetime totals.
type AccountResponse struct {
	UserID            uuid.UUID `json:"user_id"`
	Collateral        int64     `json:"collateral"`
	CollateralDisplay string    `json:"collateral_display"`
	TotalDeposits     int64     `json:"total_deposits"`
	TotalWithdrawals  int64     `json:"total_withdrawals"`
	TotalFeePaid      int64     `json:"total_fee_paid"`
	Balances          []Balance `json:"balances"`
	AsOfSequence      int64     `json:"as_of_sequence"`
}

// PositionResponse represents a position for API queries.
type PositionResponse struct {
	UserID                 uuid.UUID `json:"user_id"`
	MarketIndex            uint16    `json:"market_index"`
	BaseAssetAmount        int64     `json:"base_asset_amount"`
	BaseAssetAmountDisplay string    `json:"base_asset_amount_display"`
	QuoteAssetAmount       int64     `json:"quote_asset_amount"`
	QuoteEntryAmount       int64     `json:"quote_entry_amount"`
	LpShares               int64     `json:"lp_shares"`
	SettledPnl             int64     `json:"settled_pnl"`
	AsOfSequence           int64     `json:"as_of_sequence"`
}

// FundingHistoryResponse is one market funding period.
type FundingHistoryResponse struct {
	MarketIndex     uint16 `json:"market_index"`
	EpochID         int64  `json:"epoch_id"`
	Rate            int64  `json:"rate"`
	LongRate        int64  `json:"long_rate"`
	ShortRate       int64  `json:"short_rate"`
	AmmPayment      int64  `json:"amm_payment"`
	Capped          bool   `json:"capped"`
	MarkPriceTwap   int64  `json:"mark_price_twap"`
	OraclePriceTwap int64  `json:"oracle_price_twap"`
	Timestamp       int64  `json:"timestamp"`
	Sequence        int64  `json:"sequence"`
	AsOfSequence    int64  `json:"as_of_sequence"`
}

// InsuranceVaultResponse is the projected insurance vault.
type InsuranceVaultResponse struct {
	Balance        int64  `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
	TotalDeposited int64  `json:"total_deposited"`
	TotalWithdrawn int64  `json:"total_withdrawn"`
	AsOfSequence   int64  `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	AmountDisplay string `json:"amount_display"`
	JournalType   string `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
	SequenceGaps     []int64           `json:"sequence_gaps,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
