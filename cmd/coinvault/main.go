package main

import (
	"os"

	"github.com/joho/godotenv"

	"coinvault/cmd/coinvault/cmd"
	"coinvault/internal/infrastructure/logger"
)

func main() {
	logger.Setup()
	// optional .env for COINGECKO_API_KEY and friends
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
