package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var tradesAsset string

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List open positions",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadContainer()
		if err != nil {
			return err
		}
		defer c.Close()

		positions, err := c.Ledger().OpenPositions(context.Background())
		if err != nil {
			return err
		}
		if len(positions) == 0 {
			fmt.Println("No open positions")
			return nil
		}

		fmt.Printf("%-20s %-8s %14s %14s\n", "ASSET", "SYMBOL", "QUANTITY", "AVG COST")
		for _, p := range positions {
			fmt.Printf("%-20s %-8s %14.8g %14.2f\n", p.AssetID, p.Symbol, p.Quantity, p.AvgCostUSD)
		}
		return nil
	},
}

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "Show trade history",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadContainer()
		if err != nil {
			return err
		}
		defer c.Close()

		trades, err := c.Ledger().TradeHistory(context.Background(), tradesAsset)
		if err != nil {
			return err
		}
		if len(trades) == 0 {
			fmt.Println("No trades recorded")
			return nil
		}

		fmt.Printf("%-27s %-20s %-5s %12s %12s %12s\n", "TRADE", "ASSET", "SIDE", "QTY", "PRICE", "PNL")
		for _, t := range trades {
			pnl := "-"
			if t.RealizedPnLUSD != nil {
				pnl = fmt.Sprintf("%.2f", *t.RealizedPnLUSD)
			}
			fmt.Printf("%-27s %-20s %-5s %12.8g %12.2f %12s\n",
				t.TradeID, t.AssetID, t.Side, t.Quantity, t.PriceUSD, pnl)
		}
		return nil
	},
}

var pnlCmd = &cobra.Command{
	Use:   "pnl",
	Short: "Show realized P&L summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadContainer()
		if err != nil {
			return err
		}
		defer c.Close()

		ctx := context.Background()
		summary, err := c.Ledger().RealizedPnLSummary(ctx)
		if err != nil {
			return err
		}
		portfolio, err := c.Ledger().PortfolioSummary(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Realized P&L: $%.2f over %d trades (%d buys, %d sells, $%.2f fees)\n",
			summary.TotalRealizedPnLUSD, summary.TotalTrades, summary.TotalBuys,
			summary.TotalSells, summary.TotalFeesUSD)
		fmt.Printf("Open positions: %d, cost basis $%.2f\n",
			portfolio.TotalPositions, portfolio.TotalCostBasisUSD)
		for _, a := range summary.ByAsset {
			fmt.Printf("  %-20s pnl $%.2f, %d trades, bought $%.2f, sold $%.2f\n",
				a.AssetID, a.RealizedPnLUSD, a.TradeCount, a.TotalBoughtUSD, a.TotalSoldUSD)
		}
		return nil
	},
}

func init() {
	tradesCmd.Flags().StringVar(&tradesAsset, "asset", "", "filter by asset id")
	rootCmd.AddCommand(positionsCmd, tradesCmd, pnlCmd)
}
