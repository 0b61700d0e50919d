package port

import (
	"context"

	"coinvault/internal/domain/model"
)

// ProgressUpdate carries the fields of an instrument's ingestion progress
// that should change after a fetch cycle. Nil fields are left untouched;
// last_query_ts is always stamped.
type ProgressUpdate struct {
	LastCollectedTS    *int64
	FirstCollectedTS   *int64
	IsBackfillComplete *bool
}

// MarketStore persists instruments, ingestion progress, market data and the
// singleton run state. Implementations own durability and idempotent upsert
// semantics; they hold no business logic.
type MarketStore interface {
	// UpsertInstruments inserts or updates instrument metadata by asset id.
	// first_seen_ts is kept on update; mutable fields and last_updated_ts are
	// overwritten.
	UpsertInstruments(ctx context.Context, instruments []model.Instrument) error

	// InitProgress creates empty progress rows for the given assets. Existing
	// rows are never touched.
	InitProgress(ctx context.Context, assetIDs []string) error

	// Progress returns the progress row for one asset, or nil when untracked.
	Progress(ctx context.Context, assetID string) (*model.IngestionProgress, error)

	// AssetsNeedingUpdate returns assets with no collected data or whose
	// last collected timestamp is older than threshold seconds, ordered by
	// market-cap rank ascending with nulls last.
	AssetsNeedingUpdate(ctx context.Context, now, threshold int64) ([]string, error)

	InstrumentCount(ctx context.Context) (int, error)

	// UpsertMarketData inserts or overwrites points at (asset, timestamp).
	// No-op on an empty slice.
	UpsertMarketData(ctx context.Context, assetID string, points []model.MarketDataPoint) error

	// SaveFetchResult persists the points and applies the progress update in
	// one transaction: either both commit or neither does.
	SaveFetchResult(ctx context.Context, assetID string, points []model.MarketDataPoint, upd ProgressUpdate) error

	// MarkQueried stamps last_query_ts for a failed or empty attempt.
	MarkQueried(ctx context.Context, assetID string) error

	SetRunState(ctx context.Context, stage, status string) error
	RunState(ctx context.Context) (*model.RunState, error)

	Summary(ctx context.Context) (*model.IngestionSummary, error)
	DataPointCount(ctx context.Context, assetID string) (int, error)

	Close() error
}

// LedgerStore persists the append-only trade ledger and derived positions.
type LedgerStore interface {
	// RecordTrade inserts the trade and applies the position change in one
	// transaction. When closePosition is true the position row is deleted;
	// otherwise pos is upserted.
	RecordTrade(ctx context.Context, trade model.Trade, pos *model.Position, closePosition bool) error

	// Position returns the open position for an asset, or nil when flat.
	Position(ctx context.Context, assetID string) (*model.Position, error)

	// OpenPositions returns all positions with quantity > 0, largest first.
	OpenPositions(ctx context.Context) ([]model.Position, error)

	// TradeHistory returns trades newest first, optionally filtered by asset
	// (empty assetID means all).
	TradeHistory(ctx context.Context, assetID string) ([]model.Trade, error)

	RealizedPnLSummary(ctx context.Context) (*model.PnLSummary, error)
	PortfolioSummary(ctx context.Context) (*model.PortfolioSummary, error)

	Close() error
}
