// Package policy implements the timeframe escalation state machine: which
// timeframes to examine each cycle, and how detection results move a trend
// record through its created → escalated → faded lifecycle.
package policy

import (
	"time"

	"github.com/google/uuid"

	"github.com/quantrail/trendscan/internal/models"
)

// DefaultWaitMinutes is the escalation wait applied to timeframe pairs that
// have no entry in the wait matrix.
const DefaultWaitMinutes = 10

// WaitMatrix maps a confirmed timeframe to the minutes that must elapse
// since first detection before the next timeframe is probed.
type WaitMatrix map[models.Timeframe]map[models.Timeframe]int

// Minutes returns the configured wait for the from→to pair, falling back to
// DefaultWaitMinutes only when the pair has no entry. An explicit zero means
// the next timeframe is probed immediately.
func (w WaitMatrix) Minutes(from, to models.Timeframe) int {
	if m, ok := w[from]; ok {
		if v, ok := m[to]; ok && v >= 0 {
			return v
		}
	}
	return DefaultWaitMinutes
}

// Decide selects the timeframes to examine this cycle for one instrument.
//
// No record: probe only the lowest timeframe. Record at the highest
// timeframe: confirmation only. Otherwise re-confirm the current level and,
// once the escalation wait has elapsed since first detection, probe the next
// level in the same cycle.
func Decide(rec *models.TrendRecord, seq []models.Timeframe, waits WaitMatrix, now time.Time) []models.Timeframe {
	if len(seq) == 0 {
		return nil
	}
	if rec == nil {
		return []models.Timeframe{models.Lowest(seq)}
	}

	current := rec.MaxTimeframe
	next := models.Next(seq, current)
	if next == "" {
		return []models.Timeframe{current}
	}

	wait := time.Duration(waits.Minutes(current, next)) * time.Minute
	if now.Sub(rec.FirstDetected) >= wait {
		return []models.Timeframe{current, next}
	}
	return []models.Timeframe{current}
}

// Outcome is the state mutation and the events produced by applying one
// cycle's detection results to a record.
type Outcome struct {
	Put    *models.TrendRecord
	Delete *models.TrendKey
	Events []models.AlertEvent
}

// Apply folds the detection results for the examined timeframes into the
// existing record (or its absence).
//
// Timeframes absent from results were not examined or had no usable data;
// they never create, escalate, or fade anything. An examined result of none
// or of the opposite direction at the record's own max timeframe fades the
// record, unless an escalation happened this cycle. Re-confirmation at the
// current max timeframe without an escalation is a silent no-op.
func Apply(rec *models.TrendRecord, instrument models.Instrument, results map[models.Timeframe]models.Direction, seq []models.Timeframe, now time.Time) Outcome {
	var out Outcome

	if rec == nil {
		lowest := models.Lowest(seq)
		dir, ok := results[lowest]
		if !ok || dir == models.DirectionNone {
			return out
		}
		created := &models.TrendRecord{
			Instrument:    instrument.Symbol,
			Direction:     dir,
			MaxTimeframe:  lowest,
			FirstDetected: now,
			LastUpdated:   now,
			TrendStrength: 1,
		}
		out.Put = created
		out.Events = append(out.Events, newEvent(models.AlertNewTrend, instrument, dir, lowest, now))
		return out
	}

	if next := models.Next(seq, rec.MaxTimeframe); next != "" {
		if dir, ok := results[next]; ok && dir == rec.Direction {
			escalated := *rec
			escalated.MaxTimeframe = next
			escalated.LastUpdated = now
			escalated.TrendStrength++
			out.Put = &escalated
			out.Events = append(out.Events, newEvent(models.AlertProgressing, instrument, rec.Direction, next, now))
			return out
		}
	}

	if dir, ok := results[rec.MaxTimeframe]; ok && dir != rec.Direction {
		key := rec.Key()
		out.Delete = &key
		out.Events = append(out.Events, newEvent(models.AlertFaded, instrument, rec.Direction, rec.MaxTimeframe, now))
	}
	return out
}

func newEvent(kind models.AlertKind, instrument models.Instrument, dir models.Direction, tf models.Timeframe, now time.Time) models.AlertEvent {
	return models.AlertEvent{
		ID:             uuid.New().String(),
		Timestamp:      now,
		Instrument:     instrument.Symbol,
		InstrumentName: instrument.DisplayName(),
		Kind:           kind,
		Direction:      dir,
		Timeframe:      tf,
	}
}
