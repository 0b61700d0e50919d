package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"coinvault/internal/application/port"
	"coinvault/internal/domain/model"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }
func iptr(v int) *int        { return &v }

func TestUpsertInstrumentsKeepsFirstSeen(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	insts := []model.Instrument{
		{AssetID: "bitcoin", Symbol: "btc", Name: "Bitcoin", MarketCapRank: iptr(1)},
	}
	if err := repo.UpsertInstruments(ctx, insts); err != nil {
		t.Fatalf("UpsertInstruments failed: %v", err)
	}

	var firstSeen int64
	if err := repo.GetDB().QueryRow(`SELECT first_seen_ts FROM instruments WHERE asset_id='bitcoin'`).Scan(&firstSeen); err != nil {
		t.Fatalf("query first_seen: %v", err)
	}

	// re-upsert with drifted rank and name
	insts[0].Name = "Bitcoin Core"
	insts[0].MarketCapRank = iptr(2)
	if err := repo.UpsertInstruments(ctx, insts); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	var name string
	var rank int
	var firstSeen2 int64
	err := repo.GetDB().QueryRow(`SELECT name, market_cap_rank, first_seen_ts FROM instruments WHERE asset_id='bitcoin'`).
		Scan(&name, &rank, &firstSeen2)
	if err != nil {
		t.Fatalf("query instrument: %v", err)
	}
	if name != "Bitcoin Core" || rank != 2 {
		t.Errorf("mutable fields not updated: name=%q rank=%d", name, rank)
	}
	if firstSeen2 != firstSeen {
		t.Errorf("first_seen changed on update: %d -> %d", firstSeen, firstSeen2)
	}
}

func TestUpsertMarketDataIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.UpsertMarketData(ctx, "bitcoin", []model.MarketDataPoint{
		{TimestampUnix: 1700000000, PriceUSD: f64(35000)},
	}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := repo.UpsertMarketData(ctx, "bitcoin", []model.MarketDataPoint{
		{TimestampUnix: 1700000000, PriceUSD: f64(40000)},
	}); err != nil {
		t.Fatalf("second insert failed: %v", err)
	}

	var count int
	var price float64
	if err := repo.GetDB().QueryRow(`SELECT COUNT(*) FROM market_data WHERE asset_id='bitcoin'`).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if err := repo.GetDB().QueryRow(`SELECT price_usd FROM market_data WHERE asset_id='bitcoin' AND timestamp_unix=1700000000`).Scan(&price); err != nil {
		t.Fatalf("price query: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}
	if price != 40000 {
		t.Errorf("expected last write to win (40000), got %v", price)
	}
}

func TestUpsertMarketDataOverlapMerge(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	const t0 = int64(1700000000)
	const hour = int64(3600)

	first := make([]model.MarketDataPoint, 0, 4)
	for i := int64(0); i < 4; i++ {
		first = append(first, model.MarketDataPoint{TimestampUnix: t0 + i*hour, PriceUSD: f64(100)})
	}
	second := make([]model.MarketDataPoint, 0, 4)
	for i := int64(2); i < 6; i++ {
		second = append(second, model.MarketDataPoint{TimestampUnix: t0 + i*hour, PriceUSD: f64(200)})
	}

	if err := repo.UpsertMarketData(ctx, "bitcoin", first); err != nil {
		t.Fatalf("first range failed: %v", err)
	}
	if err := repo.UpsertMarketData(ctx, "bitcoin", second); err != nil {
		t.Fatalf("second range failed: %v", err)
	}

	count, err := repo.DataPointCount(ctx, "bitcoin")
	if err != nil {
		t.Fatalf("DataPointCount failed: %v", err)
	}
	if count != 6 {
		t.Errorf("expected 6 distinct rows, got %d", count)
	}

	// shared timestamps hold the second insert's values
	var price float64
	if err := repo.GetDB().QueryRow(`SELECT price_usd FROM market_data WHERE asset_id='bitcoin' AND timestamp_unix=?`, t0+2*hour).Scan(&price); err != nil {
		t.Fatalf("price query: %v", err)
	}
	if price != 200 {
		t.Errorf("overlap row should hold second insert's value, got %v", price)
	}
}

func TestUpsertMarketDataEmptyNoop(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.UpsertMarketData(context.Background(), "bitcoin", nil); err != nil {
		t.Fatalf("empty upsert should be a no-op, got %v", err)
	}
}

func TestInitProgressNeverResets(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.InitProgress(ctx, []string{"bitcoin"}); err != nil {
		t.Fatalf("InitProgress failed: %v", err)
	}
	last := int64(1700000000)
	if err := repo.SaveFetchResult(ctx, "bitcoin", nil, port.ProgressUpdate{LastCollectedTS: &last}); err != nil {
		t.Fatalf("SaveFetchResult failed: %v", err)
	}

	// re-init must not touch the existing row
	if err := repo.InitProgress(ctx, []string{"bitcoin"}); err != nil {
		t.Fatalf("second InitProgress failed: %v", err)
	}

	prog, err := repo.Progress(ctx, "bitcoin")
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if prog == nil || prog.LastCollectedTS == nil || *prog.LastCollectedTS != last {
		t.Errorf("progress was reset: %+v", prog)
	}
}

func TestAssetsNeedingUpdateOrderingAndStaleness(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := int64(1700000000)
	insts := []model.Instrument{
		{AssetID: "unranked", Symbol: "unr", Name: "Unranked"},
		{AssetID: "ethereum", Symbol: "eth", Name: "Ethereum", MarketCapRank: iptr(2)},
		{AssetID: "bitcoin", Symbol: "btc", Name: "Bitcoin", MarketCapRank: iptr(1)},
		{AssetID: "fresh", Symbol: "frs", Name: "Fresh", MarketCapRank: iptr(3)},
	}
	if err := repo.UpsertInstruments(ctx, insts); err != nil {
		t.Fatalf("UpsertInstruments failed: %v", err)
	}
	ids := []string{"unranked", "ethereum", "bitcoin", "fresh"}
	if err := repo.InitProgress(ctx, ids); err != nil {
		t.Fatalf("InitProgress failed: %v", err)
	}

	// fresh was collected moments ago, everything else is stale or new
	recent := now - 10
	if err := repo.SaveFetchResult(ctx, "fresh", nil, port.ProgressUpdate{LastCollectedTS: &recent}); err != nil {
		t.Fatalf("SaveFetchResult failed: %v", err)
	}
	old := now - 7200
	if err := repo.SaveFetchResult(ctx, "ethereum", nil, port.ProgressUpdate{LastCollectedTS: &old}); err != nil {
		t.Fatalf("SaveFetchResult failed: %v", err)
	}

	queue, err := repo.AssetsNeedingUpdate(ctx, now, 3600)
	if err != nil {
		t.Fatalf("AssetsNeedingUpdate failed: %v", err)
	}

	want := []string{"bitcoin", "ethereum", "unranked"}
	if len(queue) != len(want) {
		t.Fatalf("expected queue %v, got %v", want, queue)
	}
	for i := range want {
		if queue[i] != want[i] {
			t.Errorf("queue[%d] = %q, want %q (rank asc, nulls last)", i, queue[i], want[i])
		}
	}
}

func TestSaveFetchResultAtomic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.InitProgress(ctx, []string{"bitcoin"}); err != nil {
		t.Fatalf("InitProgress failed: %v", err)
	}

	last := int64(1700003600)
	first := int64(1700000000)
	points := []model.MarketDataPoint{
		{TimestampUnix: first, PriceUSD: f64(100)},
		{TimestampUnix: last, PriceUSD: f64(110)},
	}
	done := true
	upd := port.ProgressUpdate{LastCollectedTS: &last, FirstCollectedTS: &first, IsBackfillComplete: &done}
	if err := repo.SaveFetchResult(ctx, "bitcoin", points, upd); err != nil {
		t.Fatalf("SaveFetchResult failed: %v", err)
	}

	prog, err := repo.Progress(ctx, "bitcoin")
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if prog.LastCollectedTS == nil || *prog.LastCollectedTS != last {
		t.Errorf("last_collected_ts not advanced: %+v", prog)
	}
	if prog.FirstCollectedTS == nil || *prog.FirstCollectedTS != first {
		t.Errorf("first_collected_ts not set: %+v", prog)
	}
	if !prog.IsBackfillComplete {
		t.Error("backfill flag not set")
	}
	if prog.LastQueryTS == nil {
		t.Error("last_query_ts not stamped")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := upsertMarketData(ctx, tx, "bitcoin", []model.MarketDataPoint{
			{TimestampUnix: 1700000000, PriceUSD: f64(100)},
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}

	count, err := repo.DataPointCount(ctx, "bitcoin")
	if err != nil {
		t.Fatalf("DataPointCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("rollback left %d rows behind", count)
	}
}

func TestRunStateSingleton(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	state, err := repo.RunState(ctx)
	if err != nil {
		t.Fatalf("RunState failed: %v", err)
	}
	if state.RunStatus != model.StatusIdle || state.CurrentStage != model.StageNone {
		t.Errorf("expected seeded idle/none state, got %+v", state)
	}

	if err := repo.SetRunState(ctx, model.StageTimeseries, model.StatusRunning); err != nil {
		t.Fatalf("SetRunState failed: %v", err)
	}
	if err := repo.SetRunState(ctx, model.StageTimeseries, model.StatusIdle); err != nil {
		t.Fatalf("second SetRunState failed: %v", err)
	}

	var count int
	if err := repo.GetDB().QueryRow(`SELECT COUNT(*) FROM run_state`).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 1 {
		t.Errorf("run_state must stay a singleton, got %d rows", count)
	}

	state, err = repo.RunState(ctx)
	if err != nil {
		t.Fatalf("RunState failed: %v", err)
	}
	if state.RunStatus != model.StatusIdle || state.CurrentStage != model.StageTimeseries {
		t.Errorf("unexpected state after updates: %+v", state)
	}
}

func TestSummaryCounts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	insts := []model.Instrument{
		{AssetID: "bitcoin", Symbol: "btc", Name: "Bitcoin", MarketCapRank: iptr(1)},
		{AssetID: "ethereum", Symbol: "eth", Name: "Ethereum", MarketCapRank: iptr(2)},
	}
	if err := repo.UpsertInstruments(ctx, insts); err != nil {
		t.Fatalf("UpsertInstruments failed: %v", err)
	}
	if err := repo.InitProgress(ctx, []string{"bitcoin", "ethereum"}); err != nil {
		t.Fatalf("InitProgress failed: %v", err)
	}
	if err := repo.SaveFetchResult(ctx, "bitcoin", []model.MarketDataPoint{
		{TimestampUnix: 1700000000, PriceUSD: f64(35000)},
		{TimestampUnix: 1700003600, PriceUSD: f64(35100)},
	}, port.ProgressUpdate{LastCollectedTS: i64(1700003600)}); err != nil {
		t.Fatalf("SaveFetchResult failed: %v", err)
	}

	sum, err := repo.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if sum.TotalInstruments != 2 || sum.InstrumentsWithData != 1 || sum.InstrumentsPending != 1 {
		t.Errorf("unexpected instrument counts: %+v", sum)
	}
	if sum.TotalDataPoints != 2 {
		t.Errorf("expected 2 data points, got %d", sum.TotalDataPoints)
	}
}
