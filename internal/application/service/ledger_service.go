package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"coinvault/internal/application/port"
	"coinvault/internal/domain/model"
)

// ErrInvalidTrade marks caller-input validation failures: non-positive
// quantity or price, selling with no position, selling more than held. No
// side effect ever accompanies it.
var ErrInvalidTrade = errors.New("ledger: invalid trade")

// Ledger records buys and sells against the append-only trade ledger and
// keeps the derived per-instrument position in sync. Cost basis uses the
// weighted-average method: O(1) state, no lot tracking.
type Ledger struct {
	store port.LedgerStore
	now   func() time.Time
	newID func() string
}

func NewLedger(store port.LedgerStore) *Ledger {
	return &Ledger{
		store: store,
		now:   time.Now,
		newID: func() string { return ulid.Make().String() },
	}
}

// RecordBuy validates and records a buy, creating or growing the position.
// Returns the generated trade id.
func (l *Ledger) RecordBuy(ctx context.Context, assetID, symbol string, quantity, priceUSD float64, executedAt time.Time, feesUSD float64) (string, error) {
	if err := validateTrade(quantity, priceUSD); err != nil {
		return "", err
	}

	pos, err := l.store.Position(ctx, assetID)
	if err != nil {
		return "", err
	}

	now := l.now().UTC()
	trade := model.Trade{
		TradeID:       l.newID(),
		AssetID:       assetID,
		Symbol:        symbol,
		Side:          model.SideBuy,
		Quantity:      quantity,
		PriceUSD:      priceUSD,
		TradeValueUSD: quantity * priceUSD,
		ExecutedAt:    executedAt,
		FeesUSD:       feesUSD,
		CreatedAt:     now,
	}

	var next model.Position
	if pos == nil {
		next = model.Position{
			AssetID:       assetID,
			Symbol:        symbol,
			Quantity:      quantity,
			AvgCostUSD:    priceUSD,
			OpenedAt:      now,
			LastUpdatedAt: now,
		}
	} else {
		totalCost := pos.Quantity*pos.AvgCostUSD + quantity*priceUSD
		next = *pos
		next.Quantity = pos.Quantity + quantity
		next.AvgCostUSD = totalCost / next.Quantity
		next.LastUpdatedAt = now
	}

	if err := l.store.RecordTrade(ctx, trade, &next, false); err != nil {
		return "", err
	}

	log.Info().Str("trade", trade.TradeID).Str("asset", assetID).
		Float64("qty", quantity).Float64("price", priceUSD).Msg("recorded buy")
	return trade.TradeID, nil
}

// RecordSell validates and records a sell, computing realized P&L against the
// position's current average cost. Selling the full quantity deletes the
// position row. Returns the generated trade id.
func (l *Ledger) RecordSell(ctx context.Context, assetID, symbol string, quantity, priceUSD float64, executedAt time.Time, feesUSD float64) (string, error) {
	if err := validateTrade(quantity, priceUSD); err != nil {
		return "", err
	}

	pos, err := l.store.Position(ctx, assetID)
	if err != nil {
		return "", err
	}
	if pos == nil {
		return "", fmt.Errorf("%w: no position exists for %q", ErrInvalidTrade, assetID)
	}
	if quantity > pos.Quantity {
		return "", fmt.Errorf("%w: selling %v but only %v held for %q",
			ErrInvalidTrade, quantity, pos.Quantity, assetID)
	}

	// average cost method; the position's avg cost is unaffected by a sell
	realized := quantity*priceUSD - quantity*pos.AvgCostUSD - feesUSD

	now := l.now().UTC()
	trade := model.Trade{
		TradeID:        l.newID(),
		AssetID:        assetID,
		Symbol:         symbol,
		Side:           model.SideSell,
		Quantity:       quantity,
		PriceUSD:       priceUSD,
		TradeValueUSD:  quantity * priceUSD,
		ExecutedAt:     executedAt,
		FeesUSD:        feesUSD,
		RealizedPnLUSD: &realized,
		CreatedAt:      now,
	}

	remaining := pos.Quantity - quantity
	if remaining <= 0 {
		if err := l.store.RecordTrade(ctx, trade, nil, true); err != nil {
			return "", err
		}
		log.Info().Str("trade", trade.TradeID).Str("asset", assetID).
			Float64("realized_pnl", realized).Msg("recorded sell, position closed")
		return trade.TradeID, nil
	}

	next := *pos
	next.Quantity = remaining
	next.LastUpdatedAt = now
	if err := l.store.RecordTrade(ctx, trade, &next, false); err != nil {
		return "", err
	}

	log.Info().Str("trade", trade.TradeID).Str("asset", assetID).
		Float64("qty", quantity).Float64("realized_pnl", realized).Msg("recorded sell")
	return trade.TradeID, nil
}

func validateTrade(quantity, priceUSD float64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %v", ErrInvalidTrade, quantity)
	}
	if priceUSD <= 0 {
		return fmt.Errorf("%w: price must be positive, got %v", ErrInvalidTrade, priceUSD)
	}
	return nil
}

// Read views. Pure queries, safe to call concurrently with recording.

func (l *Ledger) OpenPositions(ctx context.Context) ([]model.Position, error) {
	return l.store.OpenPositions(ctx)
}

func (l *Ledger) PositionFor(ctx context.Context, assetID string) (*model.Position, error) {
	return l.store.Position(ctx, assetID)
}

func (l *Ledger) TradeHistory(ctx context.Context, assetID string) ([]model.Trade, error) {
	return l.store.TradeHistory(ctx, assetID)
}

func (l *Ledger) RealizedPnLSummary(ctx context.Context) (*model.PnLSummary, error) {
	return l.store.RealizedPnLSummary(ctx)
}

func (l *Ledger) PortfolioSummary(ctx context.Context) (*model.PortfolioSummary, error) {
	return l.store.PortfolioSummary(ctx)
}
