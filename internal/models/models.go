// Package models defines the core domain entities: instruments, candles,
// trend records, and alert events.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Direction is the outcome of a crossover check on one timeframe.
type Direction string

const (
	DirectionNone    Direction = "none"
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
)

// Opposite returns the reverse direction. None maps to none.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBullish:
		return DirectionBearish
	case DirectionBearish:
		return DirectionBullish
	default:
		return DirectionNone
	}
}

// Instrument is one tradable symbol tracked by the scanner.
type Instrument struct {
	Symbol string `json:"symbol" mapstructure:"symbol"`
	Name   string `json:"name" mapstructure:"name"`
}

// DisplayName returns the human-facing name, falling back to the symbol.
func (i Instrument) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Symbol
}

// Candle is a single OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Series is a time-ordered sequence of candles.
type Series []Candle

// Closes returns the close prices in bar order.
func (s Series) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, c := range s {
		closes[i] = c.Close
	}
	return closes
}

// Volumes returns the traded volumes in bar order.
func (s Series) Volumes() []float64 {
	volumes := make([]float64, len(s))
	for i, c := range s {
		volumes[i] = c.Volume
	}
	return volumes
}

// LastClose returns the most recent close price, or 0 for an empty series.
func (s Series) LastClose() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].Close
}

// TrendKey identifies a trend record. At most one record exists per key.
type TrendKey struct {
	Instrument string
	Direction  Direction
}

// String renders the key in the persisted "{instrument}_{direction}" form.
func (k TrendKey) String() string {
	return fmt.Sprintf("%s_%s", k.Instrument, k.Direction)
}

// TrendRecord tracks one active escalation for an (instrument, direction)
// pair. MaxTimeframe only ever moves forward in the configured timeframe
// order; FirstDetected and Direction are immutable for the record's life.
type TrendRecord struct {
	Instrument    string    `json:"-"`
	Direction     Direction `json:"direction"`
	MaxTimeframe  Timeframe `json:"max_timeframe"`
	FirstDetected time.Time `json:"first_detected"`
	LastUpdated   time.Time `json:"last_updated"`
	TrendStrength int       `json:"trend_strength"`
}

// Key returns the record's composite key.
func (r *TrendRecord) Key() TrendKey {
	return TrendKey{Instrument: r.Instrument, Direction: r.Direction}
}

// Validate checks record field constraints against the configured
// timeframe sequence.
func (r *TrendRecord) Validate(seq []Timeframe) error {
	if r.Instrument == "" {
		return errors.New("instrument must not be empty")
	}
	if r.Direction != DirectionBullish && r.Direction != DirectionBearish {
		return fmt.Errorf("direction must be bullish or bearish, got %q", r.Direction)
	}
	if IndexOf(seq, r.MaxTimeframe) < 0 {
		return fmt.Errorf("max timeframe %q is not in the configured sequence", r.MaxTimeframe)
	}
	if r.FirstDetected.IsZero() {
		return errors.New("first detected must be set")
	}
	if r.LastUpdated.Before(r.FirstDetected) {
		return errors.New("last updated must not precede first detected")
	}
	if r.TrendStrength < 1 {
		return errors.New("trend strength must be at least 1")
	}
	return nil
}

// AlertKind classifies an alert event.
type AlertKind string

const (
	AlertNewTrend    AlertKind = "new_trend"
	AlertProgressing AlertKind = "progressing"
	AlertFaded       AlertKind = "faded"
)

// AlertEvent is one detection outcome produced by a scan cycle.
// Immutable once emitted.
type AlertEvent struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Instrument     string    `json:"instrument"`
	InstrumentName string    `json:"instrument_name,omitempty"`
	Kind           AlertKind `json:"kind"`
	Direction      Direction `json:"direction"`
	Timeframe      Timeframe `json:"timeframe"`
	Strength       string    `json:"strength,omitempty"`
	Message        string    `json:"message"`
}

// AlertRecord is the persisted alert-history row.
type AlertRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}
