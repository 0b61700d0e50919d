package postgres

import (
	"context"
	"database/sql"
	"time"

	"coinvault/internal/domain/model"
)

func (r *Repo) RecordTrade(ctx context.Context, trade model.Trade, pos *model.Position, closePosition bool) error {
	return r.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trades(trade_id, asset_id, symbol, side, quantity, price_usd,
				trade_value_usd, executed_at, fees_usd, realized_pnl_usd, created_at)
			VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, trade.TradeID, trade.AssetID, trade.Symbol, trade.Side, trade.Quantity, trade.PriceUSD,
			trade.TradeValueUSD, trade.ExecutedAt.Unix(), trade.FeesUSD, trade.RealizedPnLUSD,
			trade.CreatedAt.Unix())
		if err != nil {
			return err
		}

		if closePosition {
			_, err = tx.ExecContext(ctx, `DELETE FROM positions WHERE asset_id = $1`, trade.AssetID)
			return err
		}
		if pos == nil {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO positions(asset_id, symbol, quantity, avg_cost_usd,
				market_value_usd, unrealized_pnl_usd, opened_at, last_updated_at)
			VALUES($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT(asset_id) DO UPDATE SET
			symbol=excluded.symbol, quantity=excluded.quantity, avg_cost_usd=excluded.avg_cost_usd,
			last_updated_at=excluded.last_updated_at
		`, pos.AssetID, pos.Symbol, pos.Quantity, pos.AvgCostUSD,
			pos.MarketValueUSD, pos.UnrealizedPnLUSD, pos.OpenedAt.Unix(), pos.LastUpdatedAt.Unix())
		return err
	})
}

func (r *Repo) Position(ctx context.Context, assetID string) (*model.Position, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT asset_id, symbol, quantity, avg_cost_usd, market_value_usd, unrealized_pnl_usd,
		       opened_at, last_updated_at
		FROM positions WHERE asset_id = $1
	`, assetID)
	pos, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return pos, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*model.Position, error) {
	var p model.Position
	var mv, upnl sql.NullFloat64
	var opened, updated int64
	if err := row.Scan(&p.AssetID, &p.Symbol, &p.Quantity, &p.AvgCostUSD, &mv, &upnl, &opened, &updated); err != nil {
		return nil, err
	}
	if mv.Valid {
		p.MarketValueUSD = &mv.Float64
	}
	if upnl.Valid {
		p.UnrealizedPnLUSD = &upnl.Float64
	}
	p.OpenedAt = time.Unix(opened, 0).UTC()
	p.LastUpdatedAt = time.Unix(updated, 0).UTC()
	return &p, nil
}

func (r *Repo) OpenPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT asset_id, symbol, quantity, avg_cost_usd, market_value_usd, unrealized_pnl_usd,
		       opened_at, last_updated_at
		FROM positions WHERE quantity > 0 ORDER BY quantity DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func (r *Repo) TradeHistory(ctx context.Context, assetID string) ([]model.Trade, error) {
	query := `
		SELECT trade_id, asset_id, symbol, side, quantity, price_usd, trade_value_usd,
		       executed_at, fees_usd, realized_pnl_usd, created_at
		FROM trades`
	args := []any{}
	if assetID != "" {
		query += ` WHERE asset_id = $1`
		args = append(args, assetID)
	}
	query += ` ORDER BY executed_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var pnl sql.NullFloat64
		var executed, created int64
		if err := rows.Scan(&t.TradeID, &t.AssetID, &t.Symbol, &t.Side, &t.Quantity, &t.PriceUSD,
			&t.TradeValueUSD, &executed, &t.FeesUSD, &pnl, &created); err != nil {
			return nil, err
		}
		if pnl.Valid {
			t.RealizedPnLUSD = &pnl.Float64
		}
		t.ExecutedAt = time.Unix(executed, 0).UTC()
		t.CreatedAt = time.Unix(created, 0).UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (r *Repo) RealizedPnLSummary(ctx context.Context) (*model.PnLSummary, error) {
	var sum model.PnLSummary
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(realized_pnl_usd), 0),
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN side = 'BUY' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN side = 'SELL' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(fees_usd), 0)
		FROM trades
	`).Scan(&sum.TotalRealizedPnLUSD, &sum.TotalTrades, &sum.TotalBuys, &sum.TotalSells, &sum.TotalFeesUSD)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT asset_id,
		       COALESCE(SUM(realized_pnl_usd), 0),
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN side = 'BUY' THEN trade_value_usd ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN side = 'SELL' THEN trade_value_usd ELSE 0 END), 0)
		FROM trades
		GROUP BY asset_id
		ORDER BY 2 DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a model.AssetPnL
		if err := rows.Scan(&a.AssetID, &a.RealizedPnLUSD, &a.TradeCount, &a.TotalBoughtUSD, &a.TotalSoldUSD); err != nil {
			return nil, err
		}
		sum.ByAsset = append(sum.ByAsset, a)
	}
	return &sum, rows.Err()
}

func (r *Repo) PortfolioSummary(ctx context.Context) (*model.PortfolioSummary, error) {
	var sum model.PortfolioSummary
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(quantity * avg_cost_usd), 0)
		FROM positions WHERE quantity > 0
	`).Scan(&sum.TotalPositions, &sum.TotalCostBasisUSD)
	if err != nil {
		return nil, err
	}
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(realized_pnl_usd), 0) FROM trades
	`).Scan(&sum.TotalTrades, &sum.TotalRealizedPnLUSD)
	if err != nil {
		return nil, err
	}
	return &sum, nil
}
