package state

import (
	"VammLedger/internal/amm"
	"VammLedger/internal/errs"
)

// Market is one perpetual market: its curve, margin ratios and the pool that
// backs pnl settlement.
type Market struct {
	MarketIndex  uint16       `json:"market_index"`
	Name         string       `json:"name"`
	AMM          amm.AMM      `json:"amm"`
	MarginRatios MarginRatios `json:"margin_ratios"`
	// quote settled losers paid in minus winners paid out; may go negative
	// after an insurance top-up is withdrawn
	PnlPool       int64 `json:"pnl_pool"`
	NumberOfUsers int64 `json:"number_of_users"`
	InitializedAt int64 `json:"initialized_at"`
}

// MarketConfig carries the genesis parameters of a market.
type MarketConfig struct {
	MarketIndex  uint16
	Name         string
	AMM          amm.Config
	MarginRatios MarginRatios
}

func NewMarket(cfg MarketConfig, now int64) (*Market, error) {
	ratios := cfg.MarginRatios
	if ratios == (MarginRatios{}) {
		ratios = DefaultMarginRatios()
	}
	if err := ValidateMarginRatios(ratios); err != nil {
		return nil, err
	}
	curve, err := amm.New(cfg.AMM, now)
	if err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		return nil, errs.New(errs.CodeInvalidArgument, "market %d needs a name", cfg.MarketIndex)
	}
	return &Market{
		MarketIndex:   cfg.MarketIndex,
		Name:          name,
		AMM:           curve,
		MarginRatios:  ratios,
		InitializedAt: now,
	}, nil
}

// Clone returns a copy safe to mutate. AMM holds no references.
func (m *Market) Clone() *Market {
	c := *m
	return &c
}

// MarketRisk is the read-only view of a market that margin checks need.
type MarketRisk struct {
	MarketIndex                uint16       `json:"market_index"`
	MarkPrice                  int64        `json:"mark_price"`
	MarginRatios               MarginRatios `json:"margin_ratios"`
	CumulativeFundingRateLong  int64        `json:"cumulative_funding_rate_long"`
	CumulativeFundingRateShort int64        `json:"cumulative_funding_rate_short"`
}

func (m *Market) Risk() (MarketRisk, error) {
	price, err := m.AMM.MarkPrice()
	if err != nil {
		return MarketRisk{}, err
	}
	return MarketRisk{
		MarketIndex:                m.MarketIndex,
		MarkPrice:                  price,
		MarginRatios:               m.MarginRatios,
		CumulativeFundingRateLong:  m.AMM.CumulativeFundingRateLong,
		CumulativeFundingRateShort: m.AMM.CumulativeFundingRateShort,
	}, nil
}

// CanonicalBytes for deterministic hashing
func (m *Market) CanonicalBytes() []byte {
	a := &m.AMM
	buf := make([]byte, 0, 400)
	buf = append(buf, byte(m.MarketIndex), byte(m.MarketIndex>>8))
	buf = append(buf, byte(len(m.Name)))
	buf = append(buf, []byte(m.Name)...)
	buf = appendInt64sLE(buf,
		a.BaseAssetReserve,
		a.QuoteAssetReserve,
		a.SqrtK,
		a.PegMultiplier,
		a.NetBaseAssetAmount,
		a.BaseAssetAmountWithAmm,
		a.NetUnsettledLpBaseAssetAmount,
		a.BaseAssetAmountLong,
		a.BaseAssetAmountShort,
		a.LastOraclePrice,
		a.LastOraclePriceTwap,
		a.LastOraclePriceTwapTs,
		a.LastMarkPriceTwap,
		a.LastBidPriceTwap,
		a.LastAskPriceTwap,
		a.LastMarkPriceTwapTs,
		a.BaseSpread,
		a.FeeNumerator,
		a.FeeDenominator,
		a.TotalFee,
		a.TotalFeeMinusDistributions,
		a.TotalFeeWithdrawn,
		a.UserLpShares,
		a.MarketPositionPerLp.BaseAssetAmount,
		a.MarketPositionPerLp.QuoteAssetAmount,
		a.LpCooldownTime,
		int64(a.LpQuoteSettlement),
		a.BaseAssetAmountStepSize,
		a.MaxBaseAssetAmountRatio,
		a.FundingPeriod,
		a.LastFundingRate,
		a.LastFundingRateTs,
		a.CumulativeFundingRateLong,
		a.CumulativeFundingRateShort,
		m.MarginRatios.Initial,
		m.MarginRatios.Partial,
		m.MarginRatios.Maintenance,
		m.PnlPool,
		m.NumberOfUsers,
	)
	return buf
}
