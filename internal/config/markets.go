package config

import (
	"errors"
	"fmt"
	"os"

	"VammLedger/internal/amm"
	"VammLedger/internal/event"
	fpmath "VammLedger/internal/math"
	"VammLedger/internal/state"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// genesisNamespace derives stable command ids for genesis markets, so
// re-applying the file on restart is an idempotent no-op.
var genesisNamespace = uuid.MustParse("6f0c6a2e-5d1b-4e0a-9a55-3b7f2a9c1d40")

// MarketsFile is the genesis file listing markets to initialize at startup.
// Amounts are decimal strings in display units.
type MarketsFile struct {
	Markets []MarketDef `yaml:"markets"`
}

type MarketDef struct {
	MarketIndex       uint16 `yaml:"market_index"`
	Name              string `yaml:"name"`
	BaseAssetReserve  string `yaml:"base_asset_reserve"`
	QuoteAssetReserve string `yaml:"quote_asset_reserve"`
	// quote per base, e.g. "150.250"; empty means 1
	Peg           string `yaml:"peg"`
	FundingPeriod int64  `yaml:"funding_period"`
	// smallest tradable base, e.g. "0.001"
	StepSize                string             `yaml:"step_size"`
	MaxBaseAssetAmountRatio int64              `yaml:"max_base_asset_amount_ratio"`
	FeeNumerator            int64              `yaml:"fee_numerator"`
	FeeDenominator          int64              `yaml:"fee_denominator"`
	BaseSpread              int64              `yaml:"base_spread"`
	LpCooldownTime          int64              `yaml:"lp_cooldown_time"`
	LpQuoteSettlement       string             `yaml:"lp_quote_settlement"`
	MarginRatios            state.MarginRatios `yaml:"margin_ratios"`
}

// LoadMarkets reads a genesis file after expanding ${VAR} references.
func LoadMarkets(path string) (*MarketsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markets file: %w", err)
	}
	return ParseMarkets([]byte(os.ExpandEnv(string(data))))
}

func ParseMarkets(data []byte) (*MarketsFile, error) {
	var f MarketsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse markets yaml: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks that every market converts to a well-formed command.
func (f *MarketsFile) Validate() error {
	var problems []error
	seen := make(map[uint16]bool)
	for _, m := range f.Markets {
		if seen[m.MarketIndex] {
			problems = append(problems, fmt.Errorf("market %d listed twice", m.MarketIndex))
			continue
		}
		seen[m.MarketIndex] = true
		if _, err := m.Command(); err != nil {
			problems = append(problems, err)
		}
	}
	return errors.Join(problems...)
}

// Commands returns one InitializeMarket per market in file order.
func (f *MarketsFile) Commands() ([]*event.InitializeMarket, error) {
	out := make([]*event.InitializeMarket, 0, len(f.Markets))
	for _, m := range f.Markets {
		cmd, err := m.Command()
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, nil
}

// Command converts the definition into an InitializeMarket with a command id
// derived from the market index.
func (m MarketDef) Command() (*event.InitializeMarket, error) {
	wrap := func(field string, err error) error {
		return fmt.Errorf("market %d %s: %w", m.MarketIndex, field, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("market %d: name is required", m.MarketIndex)
	}
	base, err := fpmath.ParseFixed(m.BaseAssetReserve, fpmath.AmmReservePrecision)
	if err != nil {
		return nil, wrap("base_asset_reserve", err)
	}
	quote, err := fpmath.ParseFixed(m.QuoteAssetReserve, fpmath.AmmReservePrecision)
	if err != nil {
		return nil, wrap("quote_asset_reserve", err)
	}
	if base <= 0 || quote <= 0 {
		return nil, fmt.Errorf("market %d: reserves must be positive", m.MarketIndex)
	}
	if base > amm.MaxReserve || quote > amm.MaxReserve {
		return nil, fmt.Errorf("market %d: reserves above %s leave no headroom for liquidity",
			m.MarketIndex, fpmath.FormatFixed(amm.MaxReserve, fpmath.AmmReservePrecision))
	}
	var peg, step int64
	if m.Peg != "" {
		if peg, err = fpmath.ParseFixed(m.Peg, fpmath.PegPrecision); err != nil {
			return nil, wrap("peg", err)
		}
	}
	if m.StepSize != "" {
		if step, err = fpmath.ParseFixed(m.StepSize, fpmath.BaseAssetPrecision); err != nil {
			return nil, wrap("step_size", err)
		}
	}
	var settlement amm.LpQuoteSettlement
	if err := settlement.UnmarshalText([]byte(m.LpQuoteSettlement)); err != nil {
		return nil, wrap("lp_quote_settlement", err)
	}
	if m.MarginRatios != (state.MarginRatios{}) {
		if err := state.ValidateMarginRatios(m.MarginRatios); err != nil {
			return nil, wrap("margin_ratios", err)
		}
	}

	mi := m.MarketIndex
	return &event.InitializeMarket{
		Header:                  event.Header{CommandID: uuid.NewSHA1(genesisNamespace, fmt.Appendf(nil, "market:%d", mi))},
		MarketRef:               event.MarketRef{Market: mi},
		Name:                    m.Name,
		BaseAssetReserve:        base,
		QuoteAssetReserve:       quote,
		PegMultiplier:           peg,
		FundingPeriod:           m.FundingPeriod,
		BaseAssetAmountStepSize: step,
		MaxBaseAssetAmountRatio: m.MaxBaseAssetAmountRatio,
		FeeNumerator:            m.FeeNumerator,
		FeeDenominator:          m.FeeDenominator,
		BaseSpread:              m.BaseSpread,
		LpCooldownTime:          m.LpCooldownTime,
		LpQuoteSettlement:       settlement,
		MarginRatios:            m.MarginRatios,
	}, nil
}
