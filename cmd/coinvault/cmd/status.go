package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ingestion progress and run state",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadContainer()
		if err != nil {
			return err
		}
		defer c.Close()

		summary, err := c.MarketStore().Summary(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("Stage:                 %s\n", summary.CurrentStage)
		fmt.Printf("Status:                %s\n", summary.RunStatus)
		if summary.LastUpdated > 0 {
			fmt.Printf("Last updated:          %s\n", time.Unix(summary.LastUpdated, 0).UTC().Format(time.RFC3339))
		}
		fmt.Printf("Total instruments:     %d\n", summary.TotalInstruments)
		fmt.Printf("Instruments with data: %d\n", summary.InstrumentsWithData)
		fmt.Printf("Instruments pending:   %d\n", summary.InstrumentsPending)
		fmt.Printf("Total data points:     %d\n", summary.TotalDataPoints)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
