package event

import (
	"fmt"

	"VammLedger/internal/amm"
	"VammLedger/internal/state"
)

// InitializeMarket creates a market with its genesis curve.
type InitializeMarket struct {
	Header
	MarketRef
	Name string `json:"name"`

	BaseAssetReserve        int64                 `json:"base_asset_reserve"`
	QuoteAssetReserve       int64                 `json:"quote_asset_reserve"`
	PegMultiplier           int64                 `json:"peg_multiplier"`
	FundingPeriod           int64                 `json:"funding_period"`
	BaseAssetAmountStepSize int64                 `json:"base_asset_amount_step_size"`
	MaxBaseAssetAmountRatio int64                 `json:"max_base_asset_amount_ratio"`
	FeeNumerator            int64                 `json:"fee_numerator"`
	FeeDenominator          int64                 `json:"fee_denominator"`
	BaseSpread              int64                 `json:"base_spread"`
	LpCooldownTime          int64                 `json:"lp_cooldown_time"`
	LpQuoteSettlement       amm.LpQuoteSettlement `json:"lp_quote_settlement"`
	MarginRatios            state.MarginRatios    `json:"margin_ratios"`
}

func (e *InitializeMarket) EventType() EventType { return EventTypeInitializeMarket }

// MarketConfig converts the command to genesis parameters.
func (e *InitializeMarket) MarketConfig() state.MarketConfig {
	return state.MarketConfig{
		MarketIndex: e.Market,
		Name:        e.Name,
		AMM: amm.Config{
			BaseAssetReserve:        e.BaseAssetReserve,
			QuoteAssetReserve:       e.QuoteAssetReserve,
			PegMultiplier:           e.PegMultiplier,
			FundingPeriod:           e.FundingPeriod,
			BaseAssetAmountStepSize: e.BaseAssetAmountStepSize,
			MaxBaseAssetAmountRatio: e.MaxBaseAssetAmountRatio,
			FeeNumerator:            e.FeeNumerator,
			FeeDenominator:          e.FeeDenominator,
			BaseSpread:              e.BaseSpread,
			LpCooldownTime:          e.LpCooldownTime,
			LpQuoteSettlement:       e.LpQuoteSettlement,
		},
		MarginRatios: e.MarginRatios,
	}
}

// UpdateMarketParams changes admin knobs of a market. Unset fields stay.
type UpdateMarketParams struct {
	Header
	MarketRef
	Params state.MarketParamsUpdate `json:"params"`
}

func (e *UpdateMarketParams) EventType() EventType { return EventTypeUpdateMarketParams }

// OraclePriceUpdate carries an external price reading.
// Idempotency key: "{market}:oracle:{sequence}".
type OraclePriceUpdate struct {
	MarketRef
	Price    int64 `json:"price"` // Fixed-point: mark price precision
	Sequence int64 `json:"sequence"`
	Ts       int64 `json:"ts"` // Unix seconds (versioned input)
}

func (e *OraclePriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%d:oracle:%d", e.Market, e.Sequence)
}

func (e *OraclePriceUpdate) EventType() EventType { return EventTypeOraclePriceUpdate }

func (e *OraclePriceUpdate) SourceSequence() int64 { return e.Sequence }

func (e *OraclePriceUpdate) OccurredAt() int64 { return e.Ts }

func (e *OraclePriceUpdate) Stamp(ts int64) {
	if e.Ts == 0 {
		e.Ts = ts
	}
}

// UpdateFundingRate is the permissionless funding crank. It does nothing
// until the market's funding period has elapsed.
type UpdateFundingRate struct {
	Header
	MarketRef
}

func (e *UpdateFundingRate) EventType() EventType { return EventTypeUpdateFundingRate }

// RepegCurve moves the peg, either to an explicit value or to the peg that
// puts the mark at TargetPrice.
type RepegCurve struct {
	Header
	MarketRef
	PegMultiplier int64 `json:"peg_multiplier,omitempty"`
	TargetPrice   int64 `json:"target_price,omitempty"`
}

func (e *RepegCurve) EventType() EventType { return EventTypeRepegCurve }

// UpdateK resizes the curve depth.
type UpdateK struct {
	Header
	MarketRef
	SqrtK int64 `json:"sqrt_k"`
}

func (e *UpdateK) EventType() EventType { return EventTypeUpdateK }
