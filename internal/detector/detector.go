// Package detector implements the EMA crossover check on a close-price series.
package detector

import (
	"github.com/quantrail/trendscan/internal/models"
)

// Signal strength labels attached to new-trend alerts based on volume
// confirmation.
const (
	StrengthStrong   = "STRONG"
	StrengthModerate = "MODERATE"
	StrengthWeak     = "WEAK"
)

// Detect classifies the two most recent bars of closes as a bullish or
// bearish crossover of the fast EMA over the slow EMA. It returns
// DirectionNone when the series is too short (fewer than slow+1 bars) or
// when the fast/slow ordering did not change between the previous and the
// current bar. A numeric tie on the previous bar counts as "not yet crossed".
func Detect(closes []float64, fastPeriod, slowPeriod int) models.Direction {
	if len(closes) < slowPeriod+1 {
		return models.DirectionNone
	}

	fast := ema(closes, fastPeriod)
	slow := ema(closes, slowPeriod)

	n := len(closes)
	prevFast, currFast := fast[n-2], fast[n-1]
	prevSlow, currSlow := slow[n-2], slow[n-1]

	switch {
	case prevFast <= prevSlow && currFast > currSlow:
		return models.DirectionBullish
	case prevFast >= prevSlow && currFast < currSlow:
		return models.DirectionBearish
	default:
		return models.DirectionNone
	}
}

// ema computes the recursive exponential moving average seeded with the
// first value of the window: ema[0] = x[0], ema[i] = α*x[i] + (1-α)*ema[i-1]
// with α = 2/(period+1).
func ema(series []float64, period int) []float64 {
	alpha := 2.0 / float64(period+1)
	out := make([]float64, len(series))
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = alpha*series[i] + (1-alpha)*out[i-1]
	}
	return out
}

// VolumeStrength grades recent volume as a confirming factor: the average of
// the last 3 bars against the average of the 20 bars before them. A surge
// beyond multiplier times the baseline is STRONG, anything above the
// baseline is MODERATE, everything else (including too little history)
// is WEAK. Volume never gates a signal, it only annotates it.
func VolumeStrength(volumes []float64, multiplier float64) string {
	const (
		recentBars   = 3
		baselineBars = 20
	)
	if len(volumes) < recentBars+baselineBars {
		return StrengthWeak
	}

	n := len(volumes)
	recent := mean(volumes[n-recentBars:])
	baseline := mean(volumes[n-recentBars-baselineBars : n-recentBars])

	switch {
	case recent > multiplier*baseline:
		return StrengthStrong
	case recent > baseline:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
