package cmd

import (
	"github.com/spf13/cobra"

	"coinvault/internal/infrastructure/config"
	"coinvault/internal/infrastructure/container"
	"coinvault/internal/infrastructure/logger"
)

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "coinvault",
	Short: "Resumable market data ingestion and trade ledger",
	Long: `Coinvault ingests time-ordered market data from the CoinGecko API into a
local analytical store and maintains an append-only ledger of buy/sell trades
with derived positions and realized P&L.

Ingestion is restartable: per-instrument progress is persisted with each
committed batch, so an interrupted run resumes exactly where it left off.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetDebug()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "configs/config.toml", "path to config.toml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func loadContainer() (*container.Container, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return container.New(cfg)
}
