// Package scanner runs one scan cycle: per instrument it selects the
// timeframes to examine, fetches candles, runs the crossover detector, and
// folds the results into the persisted trend state.
package scanner

import (
	"context"
	"errors"
	"time"

	"github.com/quantrail/trendscan/internal/detector"
	"github.com/quantrail/trendscan/internal/logger"
	"github.com/quantrail/trendscan/internal/marketdata"
	"github.com/quantrail/trendscan/internal/models"
	"github.com/quantrail/trendscan/internal/policy"
	"github.com/quantrail/trendscan/internal/storage"
)

// Config holds the detection parameters shared by all instruments.
type Config struct {
	FastPeriod       int
	SlowPeriod       int
	MinPrice         float64 // 0 disables the price floor
	VolumeMultiplier float64 // volume-surge threshold for strength labels
}

// CycleInput is everything one cycle needs from the outside world.
type CycleInput struct {
	Now         time.Time
	MarketOpen  bool
	Instruments []models.Instrument
	Timeframes  []models.Timeframe
	Waits       policy.WaitMatrix
}

// Scanner orchestrates detection across the configured instruments.
type Scanner struct {
	store    storage.Store
	provider marketdata.Provider
	cfg      Config
}

// New creates a scanner over the given store and market-data provider.
func New(store storage.Store, provider marketdata.Provider, cfg Config) *Scanner {
	return &Scanner{store: store, provider: provider, cfg: cfg}
}

// RunCycle processes every instrument once and returns the alert events in
// generation order. A closed market is a no-op: no fetches, no state
// changes. Failures for one instrument never abort the rest; fetch failures
// for one timeframe only suppress that timeframe's result.
func (s *Scanner) RunCycle(ctx context.Context, input CycleInput) ([]models.AlertEvent, error) {
	if !input.MarketOpen {
		logger.Debug("Market closed, skipping scan cycle")
		return nil, nil
	}

	var events []models.AlertEvent
	for _, instrument := range input.Instruments {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		events = append(events, s.scanInstrument(ctx, instrument, input)...)
	}
	return events, nil
}

func (s *Scanner) scanInstrument(ctx context.Context, instrument models.Instrument, input CycleInput) []models.AlertEvent {
	rec, err := s.activeRecord(instrument.Symbol)
	if err != nil {
		logger.Error("Failed to load trend state for %s: %v", instrument.Symbol, err)
		return nil
	}
	if rec != nil {
		logger.Debug("%s has an active %s trend up to %s (strength %d)",
			instrument.DisplayName(), rec.Direction, rec.MaxTimeframe, rec.TrendStrength)
	}

	timeframes := policy.Decide(rec, input.Timeframes, input.Waits, input.Now)
	logger.Debug("Examining %s on %v", instrument.DisplayName(), timeframes)

	minBars := s.cfg.SlowPeriod + 1
	results := make(map[models.Timeframe]models.Direction, len(timeframes))
	series := make(map[models.Timeframe]models.Series, len(timeframes))

	for _, tf := range timeframes {
		candles, err := s.provider.Fetch(ctx, instrument.Symbol, tf, minBars)
		if err != nil {
			if errors.Is(err, marketdata.ErrInsufficientData) {
				logger.Debug("Insufficient data for %s on %s", instrument.DisplayName(), tf)
			} else {
				logger.Warn("Fetch failed for %s on %s: %v", instrument.DisplayName(), tf, err)
			}
			continue
		}
		if s.cfg.MinPrice > 0 && candles.LastClose() < s.cfg.MinPrice {
			logger.Debug("%s trades below the %.2f price floor, skipping", instrument.DisplayName(), s.cfg.MinPrice)
			return nil
		}
		series[tf] = candles
		results[tf] = detector.Detect(candles.Closes(), s.cfg.FastPeriod, s.cfg.SlowPeriod)
		logger.Debug("%s %s: %s", instrument.DisplayName(), tf, results[tf])
	}

	out := policy.Apply(rec, instrument, results, input.Timeframes, input.Now)

	// Persist each mutation immediately so a failure later in the instrument
	// list never loses this instrument's outcome.
	if out.Put != nil {
		if err := s.store.Put(out.Put); err != nil {
			logger.Error("Failed to persist trend record for %s: %v", instrument.Symbol, err)
		}
	}
	if out.Delete != nil {
		if err := s.store.Delete(*out.Delete); err != nil {
			logger.Error("Failed to delete trend record %v: %v", *out.Delete, err)
		}
	}

	for i := range out.Events {
		ev := &out.Events[i]
		if ev.Kind == models.AlertNewTrend {
			if candles, ok := series[ev.Timeframe]; ok {
				ev.Strength = detector.VolumeStrength(candles.Volumes(), s.cfg.VolumeMultiplier)
			}
		}
	}
	return out.Events
}

// activeRecord returns the instrument's open trend record, bullish checked
// first. Both directions are tracked independently; when both somehow exist,
// the bullish one drives this cycle.
func (s *Scanner) activeRecord(symbol string) (*models.TrendRecord, error) {
	for _, dir := range []models.Direction{models.DirectionBullish, models.DirectionBearish} {
		rec, err := s.store.Get(symbol, dir)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}
	return nil, nil
}
