package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"coinvault/internal/application/port"
	"coinvault/internal/domain/model"
)

func (r *Repo) UpsertInstruments(ctx context.Context, instruments []model.Instrument) error {
	now := time.Now().Unix()
	for _, inst := range instruments {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO instruments(asset_id, symbol, name, market_cap_rank, first_seen_ts, last_updated_ts)
			VALUES($1, $2, $3, $4, $5, $6)
			ON CONFLICT(asset_id) DO UPDATE SET
			symbol=excluded.symbol, name=excluded.name,
			market_cap_rank=excluded.market_cap_rank, last_updated_ts=excluded.last_updated_ts
		`, inst.AssetID, inst.Symbol, inst.Name, inst.MarketCapRank, now, now)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) InitProgress(ctx context.Context, assetIDs []string) error {
	for _, id := range assetIDs {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO ingestion_progress(asset_id, is_backfill_complete)
			VALUES($1, FALSE)
			ON CONFLICT(asset_id) DO NOTHING
		`, id)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) Progress(ctx context.Context, assetID string) (*model.IngestionProgress, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT asset_id, last_collected_ts, first_collected_ts, is_backfill_complete, last_query_ts
		FROM ingestion_progress WHERE asset_id = $1
	`, assetID)

	var p model.IngestionProgress
	var last, first, queried sql.NullInt64
	if err := row.Scan(&p.AssetID, &last, &first, &p.IsBackfillComplete, &queried); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if last.Valid {
		p.LastCollectedTS = &last.Int64
	}
	if first.Valid {
		p.FirstCollectedTS = &first.Int64
	}
	if queried.Valid {
		p.LastQueryTS = &queried.Int64
	}
	return &p, nil
}

func (r *Repo) AssetsNeedingUpdate(ctx context.Context, now, threshold int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.asset_id
		FROM ingestion_progress p
		JOIN instruments i ON p.asset_id = i.asset_id
		WHERE p.last_collected_ts IS NULL
		   OR ($1 - p.last_collected_ts) > $2
		ORDER BY i.market_cap_rank ASC NULLS LAST
	`, now, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repo) InstrumentCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM instruments`).Scan(&n)
	return n, err
}

func (r *Repo) UpsertMarketData(ctx context.Context, assetID string, points []model.MarketDataPoint) error {
	return upsertMarketData(ctx, r.db, assetID, points)
}

func upsertMarketData(ctx context.Context, q dbtx, assetID string, points []model.MarketDataPoint) error {
	if len(points) == 0 {
		return nil
	}
	now := time.Now().Unix()
	for _, dp := range points {
		_, err := q.ExecContext(ctx, `
			INSERT INTO market_data(asset_id, timestamp_unix, price_usd, market_cap_usd, volume_usd, ingested_at)
			VALUES($1, $2, $3, $4, $5, $6)
			ON CONFLICT(asset_id, timestamp_unix) DO UPDATE SET
			price_usd=excluded.price_usd, market_cap_usd=excluded.market_cap_usd,
			volume_usd=excluded.volume_usd, ingested_at=excluded.ingested_at
		`, assetID, dp.TimestampUnix, dp.PriceUSD, dp.MarketCapUSD, dp.VolumeUSD, now)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) SaveFetchResult(ctx context.Context, assetID string, points []model.MarketDataPoint, upd port.ProgressUpdate) error {
	return r.WithTx(ctx, func(tx *sql.Tx) error {
		if err := upsertMarketData(ctx, tx, assetID, points); err != nil {
			return err
		}
		return updateProgress(ctx, tx, assetID, upd)
	})
}

func updateProgress(ctx context.Context, q dbtx, assetID string, upd port.ProgressUpdate) error {
	sets := []string{"last_query_ts = $1"}
	args := []any{time.Now().Unix()}

	if upd.LastCollectedTS != nil {
		args = append(args, *upd.LastCollectedTS)
		sets = append(sets, "last_collected_ts = $"+strconv.Itoa(len(args)))
	}
	if upd.FirstCollectedTS != nil {
		args = append(args, *upd.FirstCollectedTS)
		sets = append(sets, "first_collected_ts = $"+strconv.Itoa(len(args)))
	}
	if upd.IsBackfillComplete != nil {
		args = append(args, *upd.IsBackfillComplete)
		sets = append(sets, "is_backfill_complete = $"+strconv.Itoa(len(args)))
	}
	args = append(args, assetID)

	_, err := q.ExecContext(ctx,
		"UPDATE ingestion_progress SET "+strings.Join(sets, ", ")+" WHERE asset_id = $"+strconv.Itoa(len(args)),
		args...)
	return err
}

func (r *Repo) MarkQueried(ctx context.Context, assetID string) error {
	return updateProgress(ctx, r.db, assetID, port.ProgressUpdate{})
}

func (r *Repo) SetRunState(ctx context.Context, stage, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE run_state SET current_stage = $1, run_status = $2, last_updated_ts = $3 WHERE id = 1
	`, stage, status, time.Now().Unix())
	return err
}

func (r *Repo) RunState(ctx context.Context) (*model.RunState, error) {
	var s model.RunState
	err := r.db.QueryRowContext(ctx, `
		SELECT current_stage, run_status, last_updated_ts FROM run_state WHERE id = 1
	`).Scan(&s.CurrentStage, &s.RunStatus, &s.LastUpdatedTS)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) Summary(ctx context.Context) (*model.IngestionSummary, error) {
	var sum model.IngestionSummary

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM instruments`).Scan(&sum.TotalInstruments); err != nil {
		return nil, err
	}
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ingestion_progress WHERE last_collected_ts IS NOT NULL
	`).Scan(&sum.InstrumentsWithData); err != nil {
		return nil, err
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM market_data`).Scan(&sum.TotalDataPoints); err != nil {
		return nil, err
	}
	sum.InstrumentsPending = sum.TotalInstruments - sum.InstrumentsWithData

	state, err := r.RunState(ctx)
	if err != nil {
		return nil, err
	}
	sum.CurrentStage = state.CurrentStage
	sum.RunStatus = state.RunStatus
	sum.LastUpdated = state.LastUpdatedTS
	return &sum, nil
}

func (r *Repo) DataPointCount(ctx context.Context, assetID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM market_data WHERE asset_id = $1
	`, assetID).Scan(&n)
	return n, err
}
