package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinvault/internal/application/port"
	"coinvault/internal/domain/model"
	"coinvault/internal/infrastructure/storage/sqlite"
)

// fakeSource serves a fixed instrument universe and synthesizes hourly data
// points for any requested window.
type fakeSource struct {
	instruments []model.Instrument
	listErr     error
	chartErr    map[string]error
	chartCalls  map[string]int
}

func rank(v int) *int { return &v }

func newFakeSource(ids ...string) *fakeSource {
	src := &fakeSource{chartErr: map[string]error{}, chartCalls: map[string]int{}}
	for i, id := range ids {
		src.instruments = append(src.instruments, model.Instrument{
			AssetID:       id,
			Symbol:        id[:3],
			Name:          id,
			MarketCapRank: rank(i + 1),
		})
	}
	return src
}

func (f *fakeSource) Markets(ctx context.Context) ([]model.Instrument, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.instruments, nil
}

func (f *fakeSource) MarketChartRange(ctx context.Context, assetID string, from, to int64) ([]model.MarketDataPoint, error) {
	f.chartCalls[assetID]++
	if err := f.chartErr[assetID]; err != nil {
		return nil, err
	}
	var points []model.MarketDataPoint
	price := 100.0
	for ts := from; ts <= to; ts += 3600 {
		p := price
		points = append(points, model.MarketDataPoint{TimestampUnix: ts, PriceUSD: &p})
		price++
	}
	return points, nil
}

func newTestIngestor(t *testing.T, src *fakeSource, now time.Time) (*Ingestor, *sqlite.Repo) {
	t.Helper()
	repo, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	ing := NewIngestor(IngestorDeps{
		Store:        repo,
		Source:       src,
		BackfillDays: 2, // keep synthesized series small
		Now:          func() time.Time { return now },
	})
	return ing, repo
}

func TestIngestorInitialRun(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	src := newFakeSource("bitcoin", "ethereum")
	ing, repo := newTestIngestor(t, src, now)

	sum, err := ing.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.TotalInstruments)
	assert.Equal(t, 2, sum.InstrumentsWithData)
	assert.Equal(t, 0, sum.InstrumentsPending)
	assert.Equal(t, model.StatusIdle, sum.RunStatus)
	assert.Equal(t, model.StageTimeseries, sum.CurrentStage)
	// 2 backfill days of hourly points, endpoints inclusive
	assert.Equal(t, 2*49, sum.TotalDataPoints)

	prog, err := repo.Progress(context.Background(), "bitcoin")
	require.NoError(t, err)
	require.NotNil(t, prog)
	assert.True(t, prog.IsBackfillComplete)
	require.NotNil(t, prog.LastCollectedTS)
	assert.Equal(t, now.Unix(), *prog.LastCollectedTS)
	require.NotNil(t, prog.FirstCollectedTS)
	assert.Equal(t, now.Unix()-2*24*3600, *prog.FirstCollectedTS)
}

func TestIngestorRunIsIdempotentWhenFresh(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	src := newFakeSource("bitcoin")
	ing, _ := newTestIngestor(t, src, now)
	ctx := context.Background()

	first, err := ing.Run(ctx)
	require.NoError(t, err)

	// everything is fresh, so the second cycle fetches no charts
	second, err := ing.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.TotalDataPoints, second.TotalDataPoints)
	assert.Equal(t, 1, src.chartCalls["bitcoin"])
}

func TestIngestorResumesFromLastCollected(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	src := newFakeSource("bitcoin")
	ing, repo := newTestIngestor(t, src, start)
	ctx := context.Background()

	_, err := ing.Run(ctx)
	require.NoError(t, err)
	progBefore, err := repo.Progress(ctx, "bitcoin")
	require.NoError(t, err)

	// two hours later the instrument is stale again
	later := start.Add(2 * time.Hour)
	ing2 := NewIngestor(IngestorDeps{
		Store:        repo,
		Source:       src,
		BackfillDays: 2,
		Now:          func() time.Time { return later },
	})
	_, err = ing2.Run(ctx)
	require.NoError(t, err)

	progAfter, err := repo.Progress(ctx, "bitcoin")
	require.NoError(t, err)
	require.NotNil(t, progAfter.LastCollectedTS)
	assert.Equal(t, later.Unix(), *progAfter.LastCollectedTS)
	assert.Greater(t, *progAfter.LastCollectedTS, *progBefore.LastCollectedTS)
	// the earliest point never moves once recorded
	assert.Equal(t, *progBefore.FirstCollectedTS, *progAfter.FirstCollectedTS)
	assert.Equal(t, 2, src.chartCalls["bitcoin"])
}

func TestIngestorIsolatesInstrumentFailures(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	src := newFakeSource("bitcoin", "broken", "ethereum")
	src.chartErr["broken"] = errors.New("upstream exploded")
	ing, repo := newTestIngestor(t, src, now)
	ctx := context.Background()

	sum, err := ing.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.TotalInstruments)
	assert.Equal(t, 2, sum.InstrumentsWithData)
	assert.Equal(t, 1, sum.InstrumentsPending)
	assert.Equal(t, model.StatusIdle, sum.RunStatus)

	count, err := repo.DataPointCount(ctx, "broken")
	require.NoError(t, err)
	assert.Zero(t, count)

	// the failed attempt is still stamped, so staleness accounting works
	prog, err := repo.Progress(ctx, "broken")
	require.NoError(t, err)
	require.NotNil(t, prog)
	assert.NotNil(t, prog.LastQueryTS)
	assert.Nil(t, prog.LastCollectedTS)
	assert.False(t, prog.IsBackfillComplete)
}

func TestIngestorListingFailureIsFatal(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	src := newFakeSource("bitcoin")
	src.listErr = errors.New("api down")
	ing, repo := newTestIngestor(t, src, now)
	ctx := context.Background()

	_, err := ing.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing sync")

	state, err := repo.RunState(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, state.RunStatus)
	assert.Equal(t, model.StageListing, state.CurrentStage)
}

func TestIngestorEmptyListingIsNotFatal(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	src := &fakeSource{chartErr: map[string]error{}, chartCalls: map[string]int{}}
	ing, _ := newTestIngestor(t, src, now)

	sum, err := ing.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.TotalInstruments)
	assert.Equal(t, model.StatusIdle, sum.RunStatus)
}

func TestIngestAssetSkipsDegenerateWindow(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	src := newFakeSource("bitcoin")
	ing, repo := newTestIngestor(t, src, now)
	ctx := context.Background()

	require.NoError(t, repo.InitProgress(ctx, []string{"bitcoin"}))
	future := now.Unix() + 3600
	require.NoError(t, repo.SaveFetchResult(ctx, "bitcoin", nil, port.ProgressUpdate{LastCollectedTS: &future}))

	require.NoError(t, ing.ingestAsset(ctx, "bitcoin", now.Unix()))
	assert.Zero(t, src.chartCalls["bitcoin"])
}

func TestIngestAssetBackfillToleranceFlag(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	src := newFakeSource("bitcoin")
	ing, repo := newTestIngestor(t, src, now)
	ctx := context.Background()

	require.NoError(t, repo.InitProgress(ctx, []string{"bitcoin"}))
	require.NoError(t, ing.ingestAsset(ctx, "bitcoin", now.Unix()))

	// fake source serves the full window, so the earliest point sits on the
	// horizon and backfill flips complete
	prog, err := repo.Progress(ctx, "bitcoin")
	require.NoError(t, err)
	assert.True(t, prog.IsBackfillComplete)
}
