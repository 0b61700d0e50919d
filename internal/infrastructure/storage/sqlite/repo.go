package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"coinvault/internal/application/port"
)

// Repo is the sqlite-backed store. One Repo serves both the market-data and
// the ledger ports, sharing a single database file.
type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) GetDB() *sql.DB {
	return r.db
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so every write helper works
// inside and outside an explicit transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction. Any error from fn rolls everything
// back and is returned to the caller.
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

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS instruments (
  asset_id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  name TEXT NOT NULL,
  market_cap_rank INTEGER,
  first_seen_ts INTEGER NOT NULL,
  last_updated_ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_instruments_rank ON instruments(market_cap_rank);

CREATE TABLE IF NOT EXISTS ingestion_progress (
  asset_id TEXT PRIMARY KEY,
  last_collected_ts INTEGER,
  first_collected_ts INTEGER,
  is_backfill_complete INTEGER NOT NULL DEFAULT 0,
  last_query_ts INTEGER
);

CREATE TABLE IF NOT EXISTS market_data (
  asset_id TEXT NOT NULL,
  timestamp_unix INTEGER NOT NULL,
  price_usd REAL,
  market_cap_usd REAL,
  volume_usd REAL,
  ingested_at INTEGER NOT NULL,
  PRIMARY KEY (asset_id, timestamp_unix)
);
CREATE INDEX IF NOT EXISTS idx_market_data_ts ON market_data(timestamp_unix);

CREATE TABLE IF NOT EXISTS run_state (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  current_stage TEXT NOT NULL DEFAULT 'none',
  run_status TEXT NOT NULL DEFAULT 'idle',
  last_updated_ts INTEGER NOT NULL DEFAULT 0
);
INSERT INTO run_state (id) SELECT 1 WHERE NOT EXISTS (SELECT 1 FROM run_state WHERE id = 1);

CREATE TABLE IF NOT EXISTS positions (
  asset_id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  quantity REAL NOT NULL DEFAULT 0,
  avg_cost_usd REAL NOT NULL DEFAULT 0,
  market_value_usd REAL,
  unrealized_pnl_usd REAL,
  opened_at INTEGER NOT NULL,
  last_updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_quantity ON positions(quantity);

CREATE TABLE IF NOT EXISTS trades (
  trade_id TEXT PRIMARY KEY,
  asset_id TEXT NOT NULL,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  quantity REAL NOT NULL,
  price_usd REAL NOT NULL,
  trade_value_usd REAL NOT NULL,
  executed_at INTEGER NOT NULL,
  fees_usd REAL NOT NULL DEFAULT 0,
  realized_pnl_usd REAL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_asset ON trades(asset_id);
CREATE INDEX IF NOT EXISTS idx_trades_executed ON trades(executed_at);
CREATE INDEX IF NOT EXISTS idx_trades_side ON trades(side);
`)
	return err
}

var (
	_ port.MarketStore = (*Repo)(nil)
	_ port.LedgerStore = (*Repo)(nil)
)
