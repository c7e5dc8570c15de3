package models

// Timeframe is a bar aggregation interval, e.g. "5m" or "1h".
type Timeframe string

// IndexOf returns the position of tf in seq, or -1 if absent.
func IndexOf(seq []Timeframe, tf Timeframe) int {
	for i, t := range seq {
		if t == tf {
			return i
		}
	}
	return -1
}

// Next returns the timeframe directly above tf in seq, or "" when tf is
// already the highest (or not part of the sequence).
func Next(seq []Timeframe, tf Timeframe) Timeframe {
	i := IndexOf(seq, tf)
	if i < 0 || i == len(seq)-1 {
		return ""
	}
	return seq[i+1]
}

// Lowest returns the first timeframe of the sequence, or "" for an empty one.
func Lowest(seq []Timeframe) Timeframe {
	if len(seq) == 0 {
		return ""
	}
	return seq[0]
}

// Highest returns the last timeframe of the sequence, or "" for an empty one.
func Highest(seq []Timeframe) Timeframe {
	if len(seq) == 0 {
		return ""
	}
	return seq[len(seq)-1]
}
