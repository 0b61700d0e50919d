package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"coinvault/internal/application/port"
)

// Repo is the postgres-backed store, selected with storage.driver = "postgres".
// Same contract as the sqlite repo; useful when the collector shares its data
// with other consumers.
type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repo) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// one statement per Exec: pgx's extended protocol rejects batched DDL strings
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS instruments (
  asset_id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  name TEXT NOT NULL,
  market_cap_rank INTEGER,
  first_seen_ts BIGINT NOT NULL,
  last_updated_ts BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_instruments_rank ON instruments(market_cap_rank)`,
	`CREATE TABLE IF NOT EXISTS ingestion_progress (
  asset_id TEXT PRIMARY KEY,
  last_collected_ts BIGINT,
  first_collected_ts BIGINT,
  is_backfill_complete BOOLEAN NOT NULL DEFAULT FALSE,
  last_query_ts BIGINT
)`,
	`CREATE TABLE IF NOT EXISTS market_data (
  asset_id TEXT NOT NULL,
  timestamp_unix BIGINT NOT NULL,
  price_usd DOUBLE PRECISION,
  market_cap_usd DOUBLE PRECISION,
  volume_usd DOUBLE PRECISION,
  ingested_at BIGINT NOT NULL,
  PRIMARY KEY (asset_id, timestamp_unix)
)`,
	`CREATE INDEX IF NOT EXISTS idx_market_data_ts ON market_data(timestamp_unix)`,
	`CREATE TABLE IF NOT EXISTS run_state (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  current_stage TEXT NOT NULL DEFAULT 'none',
  run_status TEXT NOT NULL DEFAULT 'idle',
  last_updated_ts BIGINT NOT NULL DEFAULT 0
)`,
	`INSERT INTO run_state (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS positions (
  asset_id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
  avg_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
  market_value_usd DOUBLE PRECISION,
  unrealized_pnl_usd DOUBLE PRECISION,
  opened_at BIGINT NOT NULL,
  last_updated_at BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS trades (
  trade_id TEXT PRIMARY KEY,
  asset_id TEXT NOT NULL,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  quantity DOUBLE PRECISION NOT NULL,
  price_usd DOUBLE PRECISION NOT NULL,
  trade_value_usd DOUBLE PRECISION NOT NULL,
  executed_at BIGINT NOT NULL,
  fees_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
  realized_pnl_usd DOUBLE PRECISION,
  created_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_asset ON trades(asset_id)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_executed ON trades(executed_at)`,
}

func (r *Repo) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ port.MarketStore = (*Repo)(nil)
	_ port.LedgerStore = (*Repo)(nil)
)
