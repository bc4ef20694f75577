package cli

import (
	"fmt"

	"VammLedger/internal/amm"
	"VammLedger/internal/config"
	fpmath "VammLedger/internal/math"
	"VammLedger/internal/state"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var quoteFlags struct {
	marketsFile string
	market      uint16
	base        string
	quote       string
	peg         string
	direction   string
	amount      string
}

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Preview a swap against a curve without touching any state",
	Long: `quote simulates one market order against a curve taken either from a
genesis file (--markets, --market) or from explicit reserves (--base, --quote).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		curve, err := quoteCurve()
		if err != nil {
			return err
		}
		var dir amm.Direction
		if err := dir.UnmarshalText([]byte(quoteFlags.direction)); err != nil {
			return err
		}
		size, err := fpmath.ParseFixed(quoteFlags.amount, fpmath.BaseAssetPrecision)
		if err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		bid, ask, err := curve.BidAskPrice()
		if err != nil {
			return err
		}
		swap, err := curve.SwapBase(dir, size, 0)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "direction     %s\n", dir)
		fmt.Fprintf(out, "base          %s\n", fpmath.FormatBase(swap.BaseAssetAmount))
		fmt.Fprintf(out, "quote         %s\n", fpmath.FormatQuote(swap.QuoteAssetAmount))
		fmt.Fprintf(out, "fee           %s\n", fpmath.FormatQuote(swap.Fee))
		fmt.Fprintf(out, "bid/ask       %s / %s\n", fpmath.FormatPrice(bid), fpmath.FormatPrice(ask))
		fmt.Fprintf(out, "mark before   %s\n", fpmath.FormatPrice(swap.PriceBefore))
		fmt.Fprintf(out, "mark after    %s\n", fpmath.FormatPrice(swap.PriceAfter))
		fmt.Fprintf(out, "price impact  %s%%\n", priceImpact(swap.PriceBefore, swap.PriceAfter))
		return nil
	},
}

func quoteCurve() (*amm.AMM, error) {
	if quoteFlags.marketsFile != "" {
		f, err := config.LoadMarkets(quoteFlags.marketsFile)
		if err != nil {
			return nil, err
		}
		for _, def := range f.Markets {
			if def.MarketIndex != quoteFlags.market {
				continue
			}
			c, err := def.Command()
			if err != nil {
				return nil, err
			}
			m, err := state.NewMarket(c.MarketConfig(), 0)
			if err != nil {
				return nil, err
			}
			return &m.AMM, nil
		}
		return nil, fmt.Errorf("market %d not in %s", quoteFlags.market, quoteFlags.marketsFile)
	}

	def := config.MarketDef{
		Name:              "quote",
		BaseAssetReserve:  quoteFlags.base,
		QuoteAssetReserve: quoteFlags.quote,
		Peg:               quoteFlags.peg,
	}
	c, err := def.Command()
	if err != nil {
		return nil, err
	}
	curve, err := amm.New(c.MarketConfig().AMM, 0)
	if err != nil {
		return nil, err
	}
	return &curve, nil
}

// priceImpact is the relative mark move in percent, four places.
func priceImpact(before, after int64) string {
	if before == 0 {
		return "0"
	}
	b, a := decimal.NewFromInt(before), decimal.NewFromInt(after)
	return a.Sub(b).Div(b).Mul(decimal.NewFromInt(100)).StringFixed(4)
}

func init() {
	f := quoteCmd.Flags()
	f.StringVar(&quoteFlags.marketsFile, "markets", "", "genesis file to take the curve from")
	f.Uint16Var(&quoteFlags.market, "market", 0, "market index in the genesis file")
	f.StringVar(&quoteFlags.base, "base", "1000", "base asset reserve")
	f.StringVar(&quoteFlags.quote, "quote", "1000", "quote asset reserve")
	f.StringVar(&quoteFlags.peg, "peg", "", "peg multiplier in quote per base")
	f.StringVar(&quoteFlags.direction, "direction", "long", "long or short")
	f.StringVar(&quoteFlags.amount, "amount", "1", "base amount to trade")
	rootCmd.AddCommand(quoteCmd)
}
