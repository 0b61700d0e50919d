package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"coinvault/internal/application/port"
	"coinvault/internal/application/service"
	"coinvault/internal/infrastructure/coingecko"
	"coinvault/internal/infrastructure/config"
	pgrepo "coinvault/internal/infrastructure/storage/postgres"
	rediscache "coinvault/internal/infrastructure/storage/redis"
	sqliterepo "coinvault/internal/infrastructure/storage/sqlite"
)

// Container wires the configured store, price source, cache and services.
type Container struct {
	cfg *config.Config

	marketStore port.MarketStore
	ledgerStore port.LedgerStore
	cache       port.StatusCache
	source      port.PriceSource

	closeOnce sync.Once
	closers   []func() error
}

func New(cfg *config.Config) (*Container, error) {
	c := &Container{cfg: cfg}

	if err := c.initStorage(); err != nil {
		_ = c.Close()
		return nil, err
	}
	if cfg.Redis.Enabled {
		if err := c.initRedis(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("redis init failed: %w", err)
		}
	}

	c.source = coingecko.New(coingecko.Options{
		BaseURL:    cfg.CoinGecko.BaseURL,
		APIKey:     cfg.CoinGecko.APIKey,
		VSCurrency: cfg.CoinGecko.VSCurrency,
		PerPage:    cfg.CoinGecko.PerPage,
		Timeout:    time.Duration(cfg.CoinGecko.TimeoutSecs) * time.Second,
		MaxRetries: cfg.CoinGecko.MaxRetries,
		RetryWait:  time.Duration(cfg.CoinGecko.RetryWaitSecs) * time.Second,
	})

	return c, nil
}

func (c *Container) initStorage() error {
	switch c.cfg.Storage.Driver {
	case "postgres":
		repo, err := pgrepo.New(c.cfg.Storage.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		c.marketStore, c.ledgerStore = repo, repo
		c.closers = append(c.closers, repo.Close)
		log.Info().Msg("postgres initialized")
	default:
		repo, err := sqliterepo.New(c.cfg.Storage.SQLite.Path)
		if err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
		c.marketStore, c.ledgerStore = repo, repo
		c.closers = append(c.closers, repo.Close)
		log.Info().Str("path", c.cfg.Storage.SQLite.Path).Msg("sqlite initialized")
	}
	return nil
}

func (c *Container) initRedis() error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Redis.Addr,
		Password: c.cfg.Redis.Password,
		DB:       c.cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	c.cache = rediscache.New(rdb, c.cfg.Redis.Prefix, time.Duration(c.cfg.Redis.TTLSecs)*time.Second)
	c.closers = append(c.closers, rdb.Close)

	log.Info().Str("addr", c.cfg.Redis.Addr).Int("db", c.cfg.Redis.DB).Msg("redis initialized")
	return nil
}

func (c *Container) Ingestor() *service.Ingestor {
	return service.NewIngestor(service.IngestorDeps{
		Store:         c.marketStore,
		Source:        c.source,
		Cache:         c.cache,
		BackfillDays:  c.cfg.CoinGecko.BackfillDays,
		StalenessSecs: c.cfg.CoinGecko.StalenessSecs,
	})
}

func (c *Container) Ledger() *service.Ledger {
	return service.NewLedger(c.ledgerStore)
}

func (c *Container) MarketStore() port.MarketStore { return c.marketStore }
func (c *Container) LedgerStore() port.LedgerStore { return c.ledgerStore }

func (c *Container) Close() error {
	var firstErr error
	c.closeOnce.Do(func() {
		for i := len(c.closers) - 1; i >= 0; i-- {
			if err := c.closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}
