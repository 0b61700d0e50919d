package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"coinvault/internal/application/port"
	"coinvault/internal/domain/model"
)

const (
	// DefaultBackfillDays is the historical horizon loaded for a newly
	// discovered instrument (~2 years).
	DefaultBackfillDays = 729

	// DefaultStalenessSecs is the minimum age since the last collected point
	// before an instrument is re-queued.
	DefaultStalenessSecs = 3600

	// backfillToleranceSecs: backfill counts as complete when the earliest
	// collected point is within one hour of the horizon. The source rarely
	// has data at the exact boundary.
	backfillToleranceSecs = 3600
)

// IngestorDeps wires the orchestrator. Cache is optional.
type IngestorDeps struct {
	Store         port.MarketStore
	Source        port.PriceSource
	Cache         port.StatusCache
	BackfillDays  int
	StalenessSecs int64
	Now           func() time.Time
}

// Ingestor drives one resumable ingestion cycle: refresh the instrument
// universe, compute the work queue from persisted progress, then fetch and
// persist each instrument independently. All state lives in the store, so a
// crash at any point resumes cleanly on the next run.
type Ingestor struct {
	store         port.MarketStore
	source        port.PriceSource
	cache         port.StatusCache
	backfillDays  int
	stalenessSecs int64
	now           func() time.Time
}

func NewIngestor(deps IngestorDeps) *Ingestor {
	if deps.BackfillDays <= 0 {
		deps.BackfillDays = DefaultBackfillDays
	}
	if deps.StalenessSecs <= 0 {
		deps.StalenessSecs = DefaultStalenessSecs
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Ingestor{
		store:         deps.Store,
		source:        deps.Source,
		cache:         deps.Cache,
		backfillDays:  deps.BackfillDays,
		stalenessSecs: deps.StalenessSecs,
		now:           deps.Now,
	}
}

// Run executes one full cycle and returns the resulting summary. A listing
// failure is fatal to the run; per-instrument chart failures are counted and
// skipped.
func (s *Ingestor) Run(ctx context.Context) (*model.IngestionSummary, error) {
	if err := s.setRunState(ctx, model.StageListing, model.StatusRunning); err != nil {
		return nil, err
	}

	if err := s.syncListing(ctx); err != nil {
		_ = s.setRunState(ctx, model.StageListing, model.StatusError)
		return nil, fmt.Errorf("listing sync: %w", err)
	}

	if err := s.runChartIngestion(ctx); err != nil {
		_ = s.setRunState(ctx, model.StageTimeseries, model.StatusError)
		return nil, err
	}

	if err := s.setRunState(ctx, model.StageTimeseries, model.StatusIdle); err != nil {
		return nil, err
	}
	return s.store.Summary(ctx)
}

// syncListing refreshes instrument metadata and creates progress rows for
// instruments not seen before. Existing progress is never reset.
func (s *Ingestor) syncListing(ctx context.Context) error {
	count, err := s.store.InstrumentCount(ctx)
	if err != nil {
		return err
	}
	initial := count == 0
	if initial {
		log.Info().Msg("initial run, fetching instrument universe")
	} else {
		log.Info().Int("known", count).Msg("incremental run, refreshing listing")
	}

	instruments, err := s.source.Markets(ctx)
	if err != nil {
		return err
	}
	if len(instruments) == 0 {
		log.Warn().Msg("listing returned no instruments")
		return nil
	}

	if err := s.store.UpsertInstruments(ctx, instruments); err != nil {
		return err
	}
	ids := make([]string, len(instruments))
	for i, inst := range instruments {
		ids[i] = inst.AssetID
	}
	if err := s.store.InitProgress(ctx, ids); err != nil {
		return err
	}

	log.Info().Int("instruments", len(instruments)).Bool("initial", initial).Msg("listing synced")
	return nil
}

// runChartIngestion drains the work queue. A failure for one instrument never
// aborts the run; the API's failure modes are instrument-independent and the
// next cycle self-heals from persisted progress.
func (s *Ingestor) runChartIngestion(ctx context.Context) error {
	now := s.now().Unix()

	queue, err := s.store.AssetsNeedingUpdate(ctx, now, s.stalenessSecs)
	if err != nil {
		return err
	}
	if len(queue) == 0 {
		log.Info().Msg("all instruments up to date")
		return nil
	}

	if err := s.setRunState(ctx, model.StageTimeseries, model.StatusRunning); err != nil {
		return err
	}
	log.Info().Int("queued", len(queue)).Msg("processing instruments")

	processed, failed := 0, 0
	for _, assetID := range queue {
		if err := s.ingestAsset(ctx, assetID, now); err != nil {
			log.Error().Err(err).Str("asset", assetID).Msg("instrument ingestion failed")
			failed++
			continue
		}
		processed++
	}

	log.Info().Int("processed", processed).Int("failed", failed).Msg("chart ingestion complete")
	return nil
}

// ingestAsset fetches one instrument's missing window and commits the points
// together with the progress advance in a single transaction.
func (s *Ingestor) ingestAsset(ctx context.Context, assetID string, now int64) error {
	prog, err := s.store.Progress(ctx, assetID)
	if err != nil {
		return err
	}
	if prog == nil {
		return fmt.Errorf("no progress row for %s", assetID)
	}

	from := s.backfillStart(now)
	if prog.LastCollectedTS != nil {
		// re-fetch from the last collected point: the overlap is overwritten
		// by the composite-key upsert
		from = *prog.LastCollectedTS
	}
	to := now

	if from >= to {
		log.Debug().Str("asset", assetID).Msg("already current, skipping")
		return nil
	}

	points, err := s.source.MarketChartRange(ctx, assetID, from, to)
	if err != nil {
		_ = s.store.MarkQueried(ctx, assetID)
		return err
	}
	if len(points) == 0 {
		log.Warn().Str("asset", assetID).Msg("no data points returned")
		return s.store.MarkQueried(ctx, assetID)
	}

	minTS, maxTS := points[0].TimestampUnix, points[0].TimestampUnix
	for _, dp := range points[1:] {
		if dp.TimestampUnix < minTS {
			minTS = dp.TimestampUnix
		}
		if dp.TimestampUnix > maxTS {
			maxTS = dp.TimestampUnix
		}
	}

	upd := port.ProgressUpdate{LastCollectedTS: &maxTS}
	if prog.FirstCollectedTS == nil {
		upd.FirstCollectedTS = &minTS
	}
	if !prog.IsBackfillComplete && minTS <= s.backfillStart(now)+backfillToleranceSecs {
		done := true
		upd.IsBackfillComplete = &done
	}

	if err := s.store.SaveFetchResult(ctx, assetID, points, upd); err != nil {
		return err
	}
	s.cacheLatest(ctx, assetID, points)

	log.Info().Str("asset", assetID).Int("points", len(points)).
		Int64("from", from).Int64("to", to).Msg("stored data points")
	return nil
}

func (s *Ingestor) backfillStart(now int64) int64 {
	return now - int64(s.backfillDays)*24*3600
}

func (s *Ingestor) setRunState(ctx context.Context, stage, status string) error {
	if s.cache != nil {
		if err := s.cache.SetRunState(ctx, stage, status); err != nil {
			log.Warn().Err(err).Msg("run state cache update failed")
		}
	}
	return s.store.SetRunState(ctx, stage, status)
}

func (s *Ingestor) cacheLatest(ctx context.Context, assetID string, points []model.MarketDataPoint) {
	if s.cache == nil {
		return
	}
	last := points[len(points)-1]
	if last.PriceUSD == nil {
		return
	}
	if err := s.cache.CacheLatestPrice(ctx, assetID, *last.PriceUSD, last.TimestampUnix); err != nil {
		log.Warn().Err(err).Str("asset", assetID).Msg("latest price cache update failed")
	}
}
