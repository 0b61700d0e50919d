package config

import (
	"errors"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	CoinGecko struct {
		BaseURL       string `toml:"base_url"`
		APIKey        string `toml:"api_key"` // COINGECKO_API_KEY env wins
		VSCurrency    string `toml:"vs_currency"`
		PerPage       int    `toml:"per_page"`
		BackfillDays  int    `toml:"backfill_days"`
		StalenessSecs int64  `toml:"staleness_secs"`
		TimeoutSecs   int    `toml:"timeout_secs"`
		MaxRetries    int    `toml:"max_retries"`
		RetryWaitSecs int    `toml:"retry_wait_secs"`
	} `toml:"coingecko"`

	Storage struct {
		Driver string `toml:"driver"` // "sqlite" or "postgres"

		SQLite struct {
			Path string `toml:"path"`
		} `toml:"sqlite"`

		Postgres struct {
			DSN string `toml:"dsn"`
		} `toml:"postgres"`
	} `toml:"storage"`

	Redis struct {
		Enabled  bool   `toml:"enabled"`
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		Prefix   string `toml:"prefix"`
		TTLSecs  int    `toml:"ttl_secs"`
	} `toml:"redis"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.CoinGecko.BaseURL == "" {
		cfg.CoinGecko.BaseURL = "https://pro-api.coingecko.com/api/v3"
	}
	if key := os.Getenv("COINGECKO_API_KEY"); key != "" {
		cfg.CoinGecko.APIKey = key
	}
	if cfg.CoinGecko.VSCurrency == "" {
		cfg.CoinGecko.VSCurrency = "usd"
	}
	if cfg.CoinGecko.PerPage <= 0 {
		cfg.CoinGecko.PerPage = 250
	}
	if cfg.CoinGecko.BackfillDays <= 0 {
		cfg.CoinGecko.BackfillDays = 729
	}
	if cfg.CoinGecko.StalenessSecs <= 0 {
		cfg.CoinGecko.StalenessSecs = 3600
	}
	if cfg.CoinGecko.TimeoutSecs <= 0 {
		cfg.CoinGecko.TimeoutSecs = 30
	}
	if cfg.CoinGecko.MaxRetries <= 0 {
		cfg.CoinGecko.MaxRetries = 3
	}
	if cfg.CoinGecko.RetryWaitSecs <= 0 {
		cfg.CoinGecko.RetryWaitSecs = 60
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/coinvault.db"
	}

	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "coinvault"
	}
	if cfg.Redis.TTLSecs <= 0 {
		cfg.Redis.TTLSecs = 3600
	}
}

func validate(cfg *Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "sqlite":
		cfg.Storage.Driver = "sqlite"
	case "postgres":
		cfg.Storage.Driver = "postgres"
		if strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
			return errors.New("storage.postgres.dsn empty but driver is postgres")
		}
	default:
		return errors.New("storage.driver must be sqlite or postgres")
	}

	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	return nil
}
