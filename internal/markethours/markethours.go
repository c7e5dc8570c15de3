// Package markethours models the 24/5 commodity futures session. Trading runs
// continuously from Sunday 18:00 US Eastern through Friday close; Saturdays and
// most of Sunday are dark.
package markethours

import (
	"fmt"
	"time"
)

// SundayOpenHour is when the week's session starts, in US Eastern time.
const SundayOpenHour = 18

var eastern = loadEastern()

func loadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// No tzdata on the host. EST is close enough for a weekend gate.
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

// IsOpen reports whether commodity futures trade at t.
func IsOpen(t time.Time) bool {
	et := t.In(eastern)
	switch wd := et.Weekday(); {
	case wd >= time.Monday && wd <= time.Friday:
		return true
	case wd == time.Sunday:
		return et.Hour() >= SundayOpenHour
	default:
		return false
	}
}

// NextOpen returns the start of the next session at or after t. When the
// market is already open it returns t unchanged.
func NextOpen(t time.Time) time.Time {
	if IsOpen(t) {
		return t
	}
	et := t.In(eastern)
	open := time.Date(et.Year(), et.Month(), et.Day(), SundayOpenHour, 0, 0, 0, eastern)
	for open.Weekday() != time.Sunday || !open.After(et) {
		open = open.AddDate(0, 0, 1)
	}
	return open
}

// Status returns a one-line human-readable session summary for t.
func Status(t time.Time) string {
	et := t.In(eastern)
	if IsOpen(t) {
		return fmt.Sprintf("📊 Market ACTIVE (ET %s)", et.Format("Mon 15:04"))
	}
	next := NextOpen(t)
	return fmt.Sprintf("📊 Market CLOSED, reopens %s ET (in %s)",
		next.Format("Mon 15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
