package cli

import (
	"fmt"

	"VammLedger/internal/config"
	fpmath "VammLedger/internal/math"
	"VammLedger/internal/state"

	"github.com/spf13/cobra"
)

var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "Inspect market genesis files",
}

var marketsValidateCmd = &cobra.Command{
	Use:   "validate <markets.yaml>",
	Short: "Check a genesis file and print the initial curve of each market",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := config.LoadMarkets(args[0])
		if err != nil {
			return err
		}
		cmds, err := f.Commands()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, c := range cmds {
			m, err := state.NewMarket(c.MarketConfig(), 0)
			if err != nil {
				return fmt.Errorf("market %d: %w", c.Market, err)
			}
			mark, err := m.AMM.MarkPrice()
			if err != nil {
				return fmt.Errorf("market %d: %w", c.Market, err)
			}
			fmt.Fprintf(out, "%d\t%s\tmark=%s\tbase=%s\tquote=%s\tcommand=%s\n",
				m.MarketIndex, m.Name, fpmath.FormatPrice(mark),
				fpmath.FormatBase(m.AMM.BaseAssetReserve), fpmath.FormatBase(m.AMM.QuoteAssetReserve),
				c.CommandID)
		}
		fmt.Fprintf(out, "%d markets ok\n", len(cmds))
		return nil
	},
}

func init() {
	marketsCmd.AddCommand(marketsValidateCmd)
	rootCmd.AddCommand(marketsCmd)
}
