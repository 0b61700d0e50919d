package model

import "time"

// Trade sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Position is the net holding for one instrument. A position row exists only
// while quantity > 0; selling flat deletes it.
type Position struct {
	AssetID          string    `json:"asset_id"`
	Symbol           string    `json:"symbol"`
	Quantity         float64   `json:"quantity"`
	AvgCostUSD       float64   `json:"avg_cost_usd"` // weighted-average cost per unit
	MarketValueUSD   *float64  `json:"market_value_usd"`
	UnrealizedPnLUSD *float64  `json:"unrealized_pnl_usd"`
	OpenedAt         time.Time `json:"opened_at"`
	LastUpdatedAt    time.Time `json:"last_updated_at"`
}

// Trade is one immutable ledger entry. Never updated or deleted after insert.
type Trade struct {
	TradeID        string    `json:"trade_id"`
	AssetID        string    `json:"asset_id"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	Quantity       float64   `json:"quantity"`
	PriceUSD       float64   `json:"price_usd"`
	TradeValueUSD  float64   `json:"trade_value_usd"`
	ExecutedAt     time.Time `json:"executed_at"`
	FeesUSD        float64   `json:"fees_usd"`
	RealizedPnLUSD *float64  `json:"realized_pnl_usd"` // populated only for SELL
	CreatedAt      time.Time `json:"created_at"`
}

// AssetPnL is the per-instrument slice of the realized P&L summary.
type AssetPnL struct {
	AssetID        string  `json:"asset_id"`
	RealizedPnLUSD float64 `json:"realized_pnl_usd"`
	TradeCount     int     `json:"trade_count"`
	TotalBoughtUSD float64 `json:"total_bought_usd"`
	TotalSoldUSD   float64 `json:"total_sold_usd"`
}

// PnLSummary aggregates realized gains across the trade ledger.
type PnLSummary struct {
	TotalRealizedPnLUSD float64    `json:"total_realized_pnl_usd"`
	TotalTrades         int        `json:"total_trades"`
	TotalBuys           int        `json:"total_buys"`
	TotalSells          int        `json:"total_sells"`
	TotalFeesUSD        float64    `json:"total_fees_usd"`
	ByAsset             []AssetPnL `json:"by_asset"`
}

// PortfolioSummary is the high-level portfolio overview.
type PortfolioSummary struct {
	TotalPositions      int     `json:"total_positions"`
	TotalCostBasisUSD   float64 `json:"total_cost_basis_usd"`
	TotalRealizedPnLUSD float64 `json:"total_realized_pnl_usd"`
	TotalTrades         int     `json:"total_trades"`
}
