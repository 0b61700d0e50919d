package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	tradeFees float64
	tradeTime string
)

var buyCmd = &cobra.Command{
	Use:   "buy ASSET SYMBOL QTY PRICE",
	Short: "Record a buy trade",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return recordTrade(args, true)
	},
}

var sellCmd = &cobra.Command{
	Use:   "sell ASSET SYMBOL QTY PRICE",
	Short: "Record a sell trade and realize P&L",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return recordTrade(args, false)
	},
}

func recordTrade(args []string, buy bool) error {
	qty, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("invalid quantity %q: %w", args[2], err)
	}
	price, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", args[3], err)
	}

	executedAt := time.Now().UTC()
	if tradeTime != "" {
		executedAt, err = time.Parse(time.RFC3339, tradeTime)
		if err != nil {
			return fmt.Errorf("invalid --time %q: %w", tradeTime, err)
		}
	}

	c, err := loadContainer()
	if err != nil {
		return err
	}
	defer c.Close()

	ledger := c.Ledger()
	ctx := context.Background()

	var tradeID string
	if buy {
		tradeID, err = ledger.RecordBuy(ctx, args[0], args[1], qty, price, executedAt, tradeFees)
	} else {
		tradeID, err = ledger.RecordSell(ctx, args[0], args[1], qty, price, executedAt, tradeFees)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Recorded trade %s\n", tradeID)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{buyCmd, sellCmd} {
		c.Flags().Float64Var(&tradeFees, "fees", 0, "transaction fees in USD")
		c.Flags().StringVar(&tradeTime, "time", "", "execution time (RFC3339, default now)")
		rootCmd.AddCommand(c)
	}
}
