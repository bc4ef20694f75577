package amm

import (
	"fmt"
	"math"
	"math/big"

	"VammLedger/internal/errs"
	fpmath "VammLedger/internal/math"
)

// Direction is the side a trader takes against the curve.
type Direction uint8

const (
	DirectionLong Direction = iota
	DirectionShort
)

func (d Direction) String() string {
	if d == DirectionShort {
		return "short"
	}
	return "long"
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "long":
		*d = DirectionLong
	case "short":
		*d = DirectionShort
	default:
		return fmt.Errorf("unknown direction %q", b)
	}
	return nil
}

// Opposite returns the closing direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// SwapDirection is relative to the base reserve: Add puts base into the pool
// (trader sells), Remove takes base out (trader buys).
type SwapDirection uint8

const (
	SwapDirectionAdd SwapDirection = iota
	SwapDirectionRemove
)

// SwapDirectionFor maps a base-denominated trade to the reserve movement.
func SwapDirectionFor(d Direction) SwapDirection {
	if d == DirectionLong {
		return SwapDirectionRemove
	}
	return SwapDirectionAdd
}

// LpQuoteSettlement selects how the quote side of an LP settlement is
// apportioned when base is standardized to the step size.
type LpQuoteSettlement uint8

const (
	// LpQuoteSettlementFull settles the whole raw quote delta.
	LpQuoteSettlementFull LpQuoteSettlement = iota
	// LpQuoteSettlementProRata settles quote in the same ratio as base and
	// carries the rest as remainder.
	LpQuoteSettlementProRata
)

func (s LpQuoteSettlement) String() string {
	if s == LpQuoteSettlementProRata {
		return "pro_rata"
	}
	return "full"
}

func (s LpQuoteSettlement) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *LpQuoteSettlement) UnmarshalText(b []byte) error {
	switch string(b) {
	case "", "full":
		*s = LpQuoteSettlementFull
	case "pro_rata":
		*s = LpQuoteSettlementProRata
	default:
		return fmt.Errorf("unknown lp quote settlement %q", b)
	}
	return nil
}

// MarketPositionPerLp is the cumulative per-share index of counter-flow the
// pool absorbed on behalf of LPs.
type MarketPositionPerLp struct {
	BaseAssetAmount  int64 `json:"base_asset_amount"`
	QuoteAssetAmount int64 `json:"quote_asset_amount"`
}

// AMM holds the synthetic reserves and the running accounting of one market.
//
// Reserves, sqrtK, base amounts and LP shares use AmmReservePrecision; fee and
// quote figures use QuotePrecision; prices use MarkPricePrecision.
type AMM struct {
	BaseAssetReserve  int64 `json:"base_asset_reserve"`
	QuoteAssetReserve int64 `json:"quote_asset_reserve"`
	SqrtK             int64 `json:"sqrt_k"`
	PegMultiplier     int64 `json:"peg_multiplier"`

	// sum of trader base deltas routed through the curve
	NetBaseAssetAmount int64 `json:"net_base_asset_amount"`
	// trader flow minus what LPs absorbed; the curve's own counterparty exposure is the negation
	BaseAssetAmountWithAmm        int64 `json:"base_asset_amount_with_amm"`
	NetUnsettledLpBaseAssetAmount int64 `json:"net_unsettled_lp_base_asset_amount"`
	BaseAssetAmountLong           int64 `json:"base_asset_amount_long"`
	BaseAssetAmountShort          int64 `json:"base_asset_amount_short"`

	LastOraclePrice       int64 `json:"last_oracle_price"`
	LastOraclePriceTwap   int64 `json:"last_oracle_price_twap"`
	LastOraclePriceTwapTs int64 `json:"last_oracle_price_twap_ts"`
	LastMarkPriceTwap     int64 `json:"last_mark_price_twap"`
	LastBidPriceTwap      int64 `json:"last_bid_price_twap"`
	LastAskPriceTwap      int64 `json:"last_ask_price_twap"`
	LastMarkPriceTwapTs   int64 `json:"last_mark_price_twap_ts"`

	BaseSpread  int64 `json:"base_spread"`
	LongSpread  int64 `json:"long_spread"`
	ShortSpread int64 `json:"short_spread"`

	FeeNumerator               int64 `json:"fee_numerator"`
	FeeDenominator             int64 `json:"fee_denominator"`
	TotalFee                   int64 `json:"total_fee"`
	TotalFeeMinusDistributions int64 `json:"total_fee_minus_distributions"`
	TotalFeeWithdrawn          int64 `json:"total_fee_withdrawn"`

	UserLpShares        int64               `json:"user_lp_shares"`
	MarketPositionPerLp MarketPositionPerLp `json:"market_position_per_lp"`
	LpCooldownTime      int64               `json:"lp_cooldown_time"`
	LpQuoteSettlement   LpQuoteSettlement   `json:"lp_quote_settlement"`

	BaseAssetAmountStepSize int64 `json:"base_asset_amount_step_size"`
	MaxBaseAssetAmountRatio int64 `json:"max_base_asset_amount_ratio"`

	FundingPeriod              int64 `json:"funding_period"`
	LastFundingRate            int64 `json:"last_funding_rate"`
	LastFundingRateTs          int64 `json:"last_funding_rate_ts"`
	CumulativeFundingRateLong  int64 `json:"cumulative_funding_rate_long"`
	CumulativeFundingRateShort int64 `json:"cumulative_funding_rate_short"`
}

// Config carries the genesis parameters of a curve.
type Config struct {
	BaseAssetReserve        int64
	QuoteAssetReserve       int64
	PegMultiplier           int64
	FundingPeriod           int64
	BaseAssetAmountStepSize int64
	MaxBaseAssetAmountRatio int64
	FeeNumerator            int64
	FeeDenominator          int64
	BaseSpread              int64
	LpCooldownTime          int64
	LpQuoteSettlement       LpQuoteSettlement
}

const (
	DefaultFeeNumerator   int64 = 10
	DefaultFeeDenominator int64 = 10_000
	DefaultStepSize       int64 = 1

	// MaxReserve caps genesis reserves and sqrtK at half the int64 range,
	// leaving room for one LP mint as deep as the curve itself.
	MaxReserve int64 = math.MaxInt64 / 2
)

// New builds a curve from genesis parameters. The initial mark price seeds
// every TWAP.
func New(cfg Config, now int64) (AMM, error) {
	if cfg.BaseAssetReserve <= 0 || cfg.QuoteAssetReserve <= 0 {
		return AMM{}, errs.New(errs.CodeInvalidArgument, "reserves must be positive")
	}
	if cfg.BaseAssetReserve > MaxReserve || cfg.QuoteAssetReserve > MaxReserve {
		return AMM{}, errs.New(errs.CodeInvalidArgument, "reserves above %d leave no headroom for liquidity", MaxReserve)
	}
	if cfg.PegMultiplier == 0 {
		cfg.PegMultiplier = fpmath.PegPrecision
	}
	if cfg.PegMultiplier < 0 {
		return AMM{}, errs.New(errs.CodeInvalidArgument, "peg must be positive")
	}
	if cfg.FeeDenominator == 0 {
		cfg.FeeNumerator, cfg.FeeDenominator = DefaultFeeNumerator, DefaultFeeDenominator
	}
	if cfg.BaseAssetAmountStepSize <= 0 {
		cfg.BaseAssetAmountStepSize = DefaultStepSize
	}
	if cfg.FundingPeriod < 0 || cfg.MaxBaseAssetAmountRatio < 0 || cfg.LpCooldownTime < 0 || cfg.BaseSpread < 0 {
		return AMM{}, errs.New(errs.CodeInvalidArgument, "negative market parameter")
	}

	sqrtK, err := fpmath.SqrtProduct(cfg.BaseAssetReserve, cfg.QuoteAssetReserve)
	if err != nil {
		return AMM{}, err
	}

	a := AMM{
		BaseAssetReserve:        cfg.BaseAssetReserve,
		QuoteAssetReserve:       cfg.QuoteAssetReserve,
		SqrtK:                   sqrtK,
		PegMultiplier:           cfg.PegMultiplier,
		BaseSpread:              cfg.BaseSpread,
		LongSpread:              cfg.BaseSpread / 2,
		ShortSpread:             cfg.BaseSpread / 2,
		FeeNumerator:            cfg.FeeNumerator,
		FeeDenominator:          cfg.FeeDenominator,
		LpCooldownTime:          cfg.LpCooldownTime,
		LpQuoteSettlement:       cfg.LpQuoteSettlement,
		BaseAssetAmountStepSize: cfg.BaseAssetAmountStepSize,
		MaxBaseAssetAmountRatio: cfg.MaxBaseAssetAmountRatio,
		FundingPeriod:           cfg.FundingPeriod,
		LastFundingRateTs:       now,
		LastMarkPriceTwapTs:     now,
	}

	price, err := a.MarkPrice()
	if err != nil {
		return AMM{}, err
	}
	a.LastMarkPriceTwap = price
	a.LastBidPriceTwap = price
	a.LastAskPriceTwap = price
	a.LastOraclePrice = price
	a.LastOraclePriceTwap = price
	a.LastOraclePriceTwapTs = now
	return a, nil
}

// CalculatePrice returns quote*peg/base in MarkPricePrecision.
func CalculatePrice(quoteAssetReserve, baseAssetReserve, pegMultiplier int64) (int64, error) {
	if baseAssetReserve <= 0 {
		return 0, errs.Overflow("price with empty base reserve")
	}
	num := new(big.Int).Mul(big.NewInt(quoteAssetReserve), big.NewInt(pegMultiplier))
	num.Mul(num, big.NewInt(fpmath.PriceToPegPrecisionRatio))
	q, err := fpmath.QuoRound(num, big.NewInt(baseAssetReserve), fpmath.RoundDown)
	if err != nil {
		return 0, err
	}
	return fpmath.ToInt64(q)
}

// MarkPrice is the instantaneous curve price.
func (a *AMM) MarkPrice() (int64, error) {
	return CalculatePrice(a.QuoteAssetReserve, a.BaseAssetReserve, a.PegMultiplier)
}

// BidAskPrice applies the informational spreads around the mark price.
func (a *AMM) BidAskPrice() (bid, ask int64, err error) {
	mark, err := a.MarkPrice()
	if err != nil {
		return 0, 0, err
	}
	bid, err = fpmath.MulDiv(mark, fpmath.SpreadPrecision-a.ShortSpread, fpmath.SpreadPrecision)
	if err != nil {
		return 0, 0, err
	}
	ask, err = fpmath.MulDivRound(mark, fpmath.SpreadPrecision+a.LongSpread, fpmath.SpreadPrecision, fpmath.RoundUp)
	if err != nil {
		return 0, 0, err
	}
	return bid, ask, nil
}

// SetBaseSpread updates the spread and splits it evenly across sides.
func (a *AMM) SetBaseSpread(spread int64) error {
	if spread < 0 || spread >= fpmath.SpreadPrecision {
		return errs.New(errs.CodeInvalidArgument, "spread %d out of range", spread)
	}
	a.BaseSpread = spread
	a.LongSpread = spread / 2
	a.ShortSpread = spread / 2
	return nil
}

// CalculateFee charges the trade fee on a quote notional, truncated.
func (a *AMM) CalculateFee(quoteAssetAmount int64) (int64, error) {
	if a.FeeDenominator == 0 {
		return 0, nil
	}
	return fpmath.MulDiv(quoteAssetAmount, a.FeeNumerator, a.FeeDenominator)
}

// InvariantHolds reports whether B*Q is within tolerance truncation steps of
// sqrtK^2. One truncated unit in either reserve moves the product by at most
// the other reserve.
func (a *AMM) InvariantHolds(tolerance int64) bool {
	k := fpmath.Square(a.SqrtK)
	diff := new(big.Int).Mul(big.NewInt(a.BaseAssetReserve), big.NewInt(a.QuoteAssetReserve))
	diff.Sub(diff, k)
	diff.Abs(diff)
	bound := new(big.Int).Mul(big.NewInt(a.BaseAssetReserve+a.QuoteAssetReserve), big.NewInt(tolerance))
	return diff.Cmp(bound) <= 0
}
