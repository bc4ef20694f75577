package state

import (
	"math"

	"VammLedger/internal/errs"
	fpmath "VammLedger/internal/math"
)

// MarketView resolves the prices and ratios margin needs for a market.
type MarketView interface {
	MarketRisk(marketIndex uint16) (MarketRisk, error)
}

// MarketRiskMap is a fixed MarketView.
type MarketRiskMap map[uint16]MarketRisk

func (m MarketRiskMap) MarketRisk(marketIndex uint16) (MarketRisk, error) {
	r, ok := m[marketIndex]
	if !ok {
		return MarketRisk{}, errs.New(errs.CodeMarketNotFound, "market %d", marketIndex)
	}
	return r, nil
}

type MarginRequirementType uint8

const (
	MarginRequirementInitial MarginRequirementType = iota
	MarginRequirementPartial
	MarginRequirementMaintenance
)

// MarginSummary is a derived view of one account. Amounts are in quote
// precision, Leverage in MarginPrecision.
type MarginSummary struct {
	CollateralValue int64 `json:"collateral_value"`
	// funding and trade pnl not yet moved to the bank
	UnsettledPnl                 int64 `json:"unsettled_pnl"`
	TotalCollateral              int64 `json:"total_collateral"`
	TotalNotional                int64 `json:"total_notional"`
	InitialMarginRequirement     int64 `json:"initial_margin_requirement"`
	PartialMarginRequirement     int64 `json:"partial_margin_requirement"`
	MaintenanceMarginRequirement int64 `json:"maintenance_margin_requirement"`
	Leverage                     int64 `json:"leverage"`
}

// CalculateMargin sums requirements across every position of acct. LP
// shares count as notional at the mark price.
func CalculateMargin(acct *UserAccount, view MarketView) (MarginSummary, error) {
	s := MarginSummary{CollateralValue: acct.CollateralValue()}

	for i := range acct.Positions {
		pos := &acct.Positions[i]
		if pos.BaseAssetAmount == 0 && pos.QuoteAssetAmount == 0 && pos.LpShares == 0 {
			continue
		}
		risk, err := view.MarketRisk(pos.MarketIndex)
		if err != nil {
			return MarginSummary{}, err
		}

		pnl, err := pos.UnsettledPnL(risk.MarkPrice)
		if err != nil {
			return MarginSummary{}, err
		}
		funding, err := pos.PendingFunding(risk.CumulativeFundingRateLong, risk.CumulativeFundingRateShort)
		if err != nil {
			return MarginSummary{}, err
		}
		if pnl, err = fpmath.CheckedAdd(pnl, funding); err != nil {
			return MarginSummary{}, err
		}
		if s.UnsettledPnl, err = fpmath.CheckedAdd(s.UnsettledPnl, pnl); err != nil {
			return MarginSummary{}, err
		}

		notional, err := fpmath.BaseNotional(pos.BaseAssetAmount, risk.MarkPrice)
		if err != nil {
			return MarginSummary{}, err
		}
		lpNotional, err := fpmath.BaseNotional(pos.LpShares, risk.MarkPrice)
		if err != nil {
			return MarginSummary{}, err
		}
		exposure, err := fpmath.CheckedAdd(notional, lpNotional)
		if err != nil {
			return MarginSummary{}, err
		}
		if s.TotalNotional, err = fpmath.CheckedAdd(s.TotalNotional, notional); err != nil {
			return MarginSummary{}, err
		}

		for _, req := range []struct {
			total *int64
			ratio int64
		}{
			{&s.InitialMarginRequirement, risk.MarginRatios.Initial},
			{&s.PartialMarginRequirement, risk.MarginRatios.Partial},
			{&s.MaintenanceMarginRequirement, risk.MarginRatios.Maintenance},
		} {
			contribution, err := fpmath.MulDiv(exposure, req.ratio, fpmath.MarginPrecision)
			if err != nil {
				return MarginSummary{}, err
			}
			if *req.total, err = fpmath.CheckedAdd(*req.total, contribution); err != nil {
				return MarginSummary{}, err
			}
		}
	}

	var err error
	if s.TotalCollateral, err = fpmath.CheckedAdd(s.CollateralValue, s.UnsettledPnl); err != nil {
		return MarginSummary{}, err
	}

	switch {
	case s.TotalNotional == 0:
		s.Leverage = 0
	case s.TotalCollateral <= 0:
		s.Leverage = math.MaxInt64
	default:
		if s.Leverage, err = fpmath.MulDiv(s.TotalNotional, fpmath.MarginPrecision, s.TotalCollateral); err != nil {
			return MarginSummary{}, err
		}
	}
	return s, nil
}

func (s MarginSummary) Requirement(t MarginRequirementType) int64 {
	switch t {
	case MarginRequirementPartial:
		return s.PartialMarginRequirement
	case MarginRequirementMaintenance:
		return s.MaintenanceMarginRequirement
	default:
		return s.InitialMarginRequirement
	}
}

// Meets reports whether total collateral covers the requirement.
func (s MarginSummary) Meets(t MarginRequirementType) bool {
	return s.TotalCollateral >= s.Requirement(t)
}

// FreeCollateral is what remains above the initial requirement.
func (s MarginSummary) FreeCollateral() int64 {
	return fpmath.Max(s.TotalCollateral-s.InitialMarginRequirement, 0)
}

// Status returns the margin health of the account.
func (s MarginSummary) Status() MarginStatus {
	if !s.Meets(MarginRequirementMaintenance) {
		return MarginStatusLiquidatable
	}
	if !s.Meets(MarginRequirementInitial) {
		return MarginStatusAtRisk
	}
	return MarginStatusHealthy
}

// CheckTradeRisk enforces the post-trade margin rule. A risk-increasing
// trade must leave the initial requirement met. A reducing trade may leave
// the account under initial but must not take a healthy account below
// maintenance.
func CheckTradeRisk(before, after MarginSummary, riskIncreasing bool) error {
	if riskIncreasing {
		if !after.Meets(MarginRequirementInitial) {
			return errs.New(errs.CodeInsufficientMargin,
				"total collateral %d below initial requirement %d",
				after.TotalCollateral, after.InitialMarginRequirement)
		}
		return nil
	}
	if before.Meets(MarginRequirementMaintenance) && !after.Meets(MarginRequirementMaintenance) {
		return errs.New(errs.CodeInsufficientMargin,
			"total collateral %d below maintenance requirement %d",
			after.TotalCollateral, after.MaintenanceMarginRequirement)
	}
	return nil
}

// MarginStatus represents user's margin health
type MarginStatus int

const (
	MarginStatusHealthy MarginStatus = iota
	MarginStatusAtRisk
	MarginStatusLiquidatable
)

func (ms MarginStatus) String() string {
	switch ms {
	case MarginStatusHealthy:
		return "Healthy"
	case MarginStatusAtRisk:
		return "AtRisk"
	case MarginStatusLiquidatable:
		return "Liquidatable"
	default:
		return "Unknown"
	}
}
