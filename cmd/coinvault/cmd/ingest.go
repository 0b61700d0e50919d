package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion cycle",
	Long: `Fetches the instrument listing, computes the per-instrument work queue from
persisted progress, and backfills or extends each instrument's time series.
Safe to re-run at any time; already-current instruments are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadContainer()
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary, err := c.Ingestor().Run(ctx)
		if err != nil {
			return err
		}

		fmt.Println("Ingestion complete!")
		fmt.Printf("  Total instruments:     %d\n", summary.TotalInstruments)
		fmt.Printf("  Instruments with data: %d\n", summary.InstrumentsWithData)
		fmt.Printf("  Instruments pending:   %d\n", summary.InstrumentsPending)
		fmt.Printf("  Total data points:     %d\n", summary.TotalDataPoints)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
