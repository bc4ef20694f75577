package server

import (
	"encoding/json"

	"VammLedger/internal/core"
	"VammLedger/internal/state"
)

type SubmitRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type SubmitResponse struct {
	Sequence  int64        `json:"sequence"`
	Duplicate bool         `json:"duplicate"`
	StateHash string       `json:"state_hash,omitempty"`
	Result    *core.Result `json:"result,omitempty"`
}

type GetMarketRequest struct {
	MarketIndex uint16 `json:"market_index"`
}

// MarketView is a live market with display prices.
type MarketView struct {
	Market       state.Market `json:"market"`
	MarkPrice    string       `json:"mark_price"`
	OraclePrice  string       `json:"oracle_price,omitempty"`
	BidPrice     string       `json:"bid_price"`
	AskPrice     string       `json:"ask_price"`
	AsOfSequence int64        `json:"as_of_sequence"`
}

type ListMarketsResponse struct {
	Markets      []MarketView `json:"markets"`
	AsOfSequence int64        `json:"as_of_sequence"`
}

type GetPositionRequest struct {
	UserID      string `json:"user_id"`
	MarketIndex uint16 `json:"market_index"`
}

type PositionView struct {
	Position      state.UserPosition `json:"position"`
	BaseDisplay   string             `json:"base_asset_amount_display"`
	UnrealizedPnl int64              `json:"unrealized_pnl"`
	AsOfSequence  int64              `json:"as_of_sequence"`
}

type GetMarginRequest struct {
	UserID string `json:"user_id"`
}

type MarginView struct {
	Margin            state.MarginSummary `json:"margin"`
	CollateralDisplay string              `json:"collateral_display"`
	FreeCollateral    int64               `json:"free_collateral"`
	Status            string              `json:"status"`
	AsOfSequence      int64               `json:"as_of_sequence"`
}

type ListFundingHistoryRequest struct {
	MarketIndex uint16 `json:"market_index"`
	Limit       int    `json:"limit"`
}

type ListFundingHistoryResponse struct {
	Records      []state.FundingRecord `json:"records"`
	AsOfSequence int64                 `json:"as_of_sequence"`
}
