package model

// Instrument is a tracked tradable asset from the markets listing.
type Instrument struct {
	AssetID       string `json:"asset_id"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	MarketCapRank *int   `json:"market_cap_rank"` // nil when the source omits a rank
	FirstSeenTS   int64  `json:"first_seen_ts"`
	LastUpdatedTS int64  `json:"last_updated_ts"`
}

// IngestionProgress tracks how much history has been collected per instrument.
// Invariant: FirstCollectedTS <= LastCollectedTS whenever both are set.
type IngestionProgress struct {
	AssetID            string `json:"asset_id"`
	LastCollectedTS    *int64 `json:"last_collected_ts"`  // high-water mark, unix seconds
	FirstCollectedTS   *int64 `json:"first_collected_ts"` // low-water mark, set once
	IsBackfillComplete bool   `json:"is_backfill_complete"`
	LastQueryTS        *int64 `json:"last_query_ts"` // last attempt, for observability
}

// Processing stages for the singleton run state.
const (
	StageNone       = "none"
	StageListing    = "listing"
	StageTimeseries = "timeseries"
)

// Run statuses for the singleton run state.
const (
	StatusIdle        = "idle"
	StatusRunning     = "running"
	StatusRateLimited = "rate_limited"
	StatusError       = "error"
)

// RunState is the singleton observability row. Correctness of the work queue
// derives from per-instrument progress, not from this row.
type RunState struct {
	CurrentStage  string `json:"current_stage"`
	RunStatus     string `json:"run_status"`
	LastUpdatedTS int64  `json:"last_updated_ts"`
}

// IngestionSummary is the result of one ingestion cycle.
type IngestionSummary struct {
	TotalInstruments    int    `json:"total_instruments"`
	InstrumentsWithData int    `json:"instruments_with_data"`
	InstrumentsPending  int    `json:"instruments_pending"`
	TotalDataPoints     int    `json:"total_data_points"`
	CurrentStage        string `json:"current_stage"`
	RunStatus           string `json:"run_status"`
	LastUpdated         int64  `json:"last_updated"`
}
