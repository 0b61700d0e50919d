package port

import (
	"context"

	"coinvault/internal/domain/model"
)

// PriceSource fetches instrument listings and historical time series from an
// external price API. Implementations normalize payloads into domain records;
// rate-limit retries happen inside the implementation, every other failure is
// returned to the caller.
type PriceSource interface {
	// Markets returns the ranked instrument listing (first page only).
	Markets(ctx context.Context) ([]model.Instrument, error)

	// MarketChartRange returns the ordered data points for one asset in the
	// [from, to] unix-second window.
	MarketChartRange(ctx context.Context, assetID string, from, to int64) ([]model.MarketDataPoint, error)
}

// StatusCache mirrors run status and latest prices into a fast external view.
// It is observability only: callers must tolerate and log failures without
// affecting the run.
type StatusCache interface {
	SetRunState(ctx context.Context, stage, status string) error
	CacheLatestPrice(ctx context.Context, assetID string, price float64, ts int64) error
}
