package state

import (
	"fmt"

	"VammLedger/internal/amm"
	"VammLedger/internal/errs"
	fpmath "VammLedger/internal/math"
)

// MarginRatios defines margin requirements per market in MarginPrecision.
type MarginRatios struct {
	Initial     int64 `json:"initial" yaml:"initial"`
	Partial     int64 `json:"partial" yaml:"partial"`
	Maintenance int64 `json:"maintenance" yaml:"maintenance"`
}

const (
	DefaultMarginRatioInitial     int64 = 2000 // 20%
	DefaultMarginRatioPartial     int64 = 625
	DefaultMarginRatioMaintenance int64 = 500 // 5%
)

func DefaultMarginRatios() MarginRatios {
	return MarginRatios{
		Initial:     DefaultMarginRatioInitial,
		Partial:     DefaultMarginRatioPartial,
		Maintenance: DefaultMarginRatioMaintenance,
	}
}

// ValidateMarginRatios checks 0 < maintenance <= partial <= initial <= 100%.
func ValidateMarginRatios(r MarginRatios) error {
	if r.Maintenance <= 0 {
		return errs.New(errs.CodeInvalidArgument, "maintenance ratio must be > 0, got %d", r.Maintenance)
	}
	if r.Partial < r.Maintenance {
		return errs.New(errs.CodeInvalidArgument, "partial ratio (%d) must be >= maintenance ratio (%d)", r.Partial, r.Maintenance)
	}
	if r.Initial < r.Partial {
		return errs.New(errs.CodeInvalidArgument, "initial ratio (%d) must be >= partial ratio (%d)", r.Initial, r.Partial)
	}
	if r.Initial > fpmath.MarginPrecision {
		return errs.New(errs.CodeInvalidArgument, "initial ratio must be <= %d, got %d", fpmath.MarginPrecision, r.Initial)
	}
	return nil
}

// MarketParamsUpdate carries the admin-tunable knobs of a market. Nil fields
// are left unchanged.
type MarketParamsUpdate struct {
	MarginRatios            *MarginRatios          `json:"margin_ratios,omitempty"`
	FeeNumerator            *int64                 `json:"fee_numerator,omitempty"`
	FeeDenominator          *int64                 `json:"fee_denominator,omitempty"`
	BaseSpread              *int64                 `json:"base_spread,omitempty"`
	LpCooldownTime          *int64                 `json:"lp_cooldown_time,omitempty"`
	MaxBaseAssetAmountRatio *int64                 `json:"max_base_asset_amount_ratio,omitempty"`
	BaseAssetAmountStepSize *int64                 `json:"base_asset_amount_step_size,omitempty"`
	FundingPeriod           *int64                 `json:"funding_period,omitempty"`
	LpQuoteSettlement       *amm.LpQuoteSettlement `json:"lp_quote_settlement,omitempty"`
}

// ApplyMarketParams validates an update and applies it to m. Nothing is
// applied when any field is invalid.
func ApplyMarketParams(m *Market, u MarketParamsUpdate) error {
	next := *m
	if u.MarginRatios != nil {
		if err := ValidateMarginRatios(*u.MarginRatios); err != nil {
			return fmt.Errorf("invalid margin ratios for market %d: %w", m.MarketIndex, err)
		}
		next.MarginRatios = *u.MarginRatios
	}
	if u.FeeNumerator != nil {
		next.AMM.FeeNumerator = *u.FeeNumerator
	}
	if u.FeeDenominator != nil {
		next.AMM.FeeDenominator = *u.FeeDenominator
	}
	if next.AMM.FeeNumerator < 0 || next.AMM.FeeDenominator <= 0 || next.AMM.FeeNumerator >= next.AMM.FeeDenominator {
		return errs.New(errs.CodeInvalidArgument, "fee %d/%d out of range", next.AMM.FeeNumerator, next.AMM.FeeDenominator)
	}
	if u.BaseSpread != nil {
		if err := next.AMM.SetBaseSpread(*u.BaseSpread); err != nil {
			return err
		}
	}
	if u.LpCooldownTime != nil {
		if *u.LpCooldownTime < 0 {
			return errs.New(errs.CodeInvalidArgument, "lp cooldown must be >= 0")
		}
		next.AMM.LpCooldownTime = *u.LpCooldownTime
	}
	if u.MaxBaseAssetAmountRatio != nil {
		if *u.MaxBaseAssetAmountRatio < 0 {
			return errs.New(errs.CodeInvalidArgument, "max base ratio must be >= 0")
		}
		next.AMM.MaxBaseAssetAmountRatio = *u.MaxBaseAssetAmountRatio
	}
	if u.BaseAssetAmountStepSize != nil {
		if *u.BaseAssetAmountStepSize <= 0 {
			return errs.New(errs.CodeInvalidArgument, "step size must be > 0")
		}
		next.AMM.BaseAssetAmountStepSize = *u.BaseAssetAmountStepSize
	}
	if u.FundingPeriod != nil {
		if *u.FundingPeriod < 0 {
			return errs.New(errs.CodeInvalidArgument, "funding period must be >= 0")
		}
		next.AMM.FundingPeriod = *u.FundingPeriod
	}
	if u.LpQuoteSettlement != nil {
		if *u.LpQuoteSettlement > amm.LpQuoteSettlementProRata {
			return errs.New(errs.CodeInvalidArgument, "unknown lp quote settlement %d", *u.LpQuoteSettlement)
		}
		next.AMM.LpQuoteSettlement = *u.LpQuoteSettlement
	}
	*m = next
	return nil
}
