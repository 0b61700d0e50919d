package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"coinvault/internal/application/port"
)

// Cache mirrors ingestion status into Redis for external observability. The
// durable store stays authoritative; anything here may expire or be lost.
type Cache struct {
	rdb       *redis.Client
	prefix    string
	ttl       time.Duration
	keyLatest string // prefix + ":latest"
	keyState  string // prefix + ":run_state"
	stateChan string
}

type latestPrice struct {
	AssetID string  `json:"asset_id"`
	Price   float64 `json:"price"`
	Ts      int64   `json:"ts"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{
		rdb:       rdb,
		prefix:    prefix,
		ttl:       ttl,
		keyLatest: prefix + ":latest",
		keyState:  prefix + ":run_state",
		stateChan: prefix + ":run_state:pub",
	}
}

func (c *Cache) SetRunState(ctx context.Context, stage, status string) error {
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, c.keyState, map[string]any{
		"current_stage": stage,
		"run_status":    status,
		"last_updated":  time.Now().Unix(),
	})
	if c.ttl > 0 {
		pipe.Expire(ctx, c.keyState, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	msg := fmt.Sprintf(`{"current_stage":%q,"run_status":%q}`, stage, status)
	return c.rdb.Publish(ctx, c.stateChan, msg).Err()
}

func (c *Cache) CacheLatestPrice(ctx context.Context, assetID string, price float64, ts int64) error {
	if price <= 0 {
		return nil
	}
	b, _ := json.Marshal(latestPrice{AssetID: assetID, Price: price, Ts: ts})

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, c.keyLatest, assetID, string(b))
	if c.ttl > 0 {
		pipe.Expire(ctx, c.keyLatest, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

var _ port.StatusCache = (*Cache)(nil)
