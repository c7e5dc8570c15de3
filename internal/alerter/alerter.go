// Package alerter turns scan events into human-readable alerts, records them
// in the alert history, and delivers them to external channels.
package alerter

import (
	"context"
	"fmt"
	"strings"

	"github.com/quantrail/trendscan/internal/logger"
	"github.com/quantrail/trendscan/internal/models"
	"github.com/quantrail/trendscan/internal/storage"
)

// Notifier is the delivery contract for outbound alerts.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Alerter persists and dispatches alert events. The history write always
// happens; delivery is best-effort and never blocks the scan loop on failure.
type Alerter struct {
	store    storage.Store
	notifier Notifier
}

// New creates an Alerter. notifier may be nil, in which case events are only
// recorded in the history.
func New(store storage.Store, notifier Notifier) *Alerter {
	return &Alerter{store: store, notifier: notifier}
}

// Emit formats, records, and delivers every event in order. It returns an
// error only when the history write fails; delivery failures are logged and
// swallowed.
func (a *Alerter) Emit(ctx context.Context, events []models.AlertEvent) error {
	var firstErr error
	for _, ev := range events {
		msg := ev.Message
		if msg == "" {
			msg = Format(ev)
		}
		rec := models.AlertRecord{ID: ev.ID, Timestamp: ev.Timestamp, Message: msg}
		if err := a.store.AppendAlert(rec); err != nil {
			logger.Error("failed to record alert %s: %v", ev.ID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
		if a.notifier == nil {
			continue
		}
		if err := a.notifier.Send(ctx, msg); err != nil {
			logger.Warn("alert delivery failed for %s: %v", ev.ID, err)
		}
	}
	return firstErr
}

// Format renders one event as alert text.
func Format(ev models.AlertEvent) string {
	name := ev.InstrumentName
	if name == "" {
		name = ev.Instrument
	}
	switch ev.Kind {
	case models.AlertNewTrend:
		msg := fmt.Sprintf("🎯 NEW %s CROSSOVER: %s on %s",
			strings.ToUpper(string(ev.Direction)), name, ev.Timeframe)
		if ev.Strength != "" {
			msg += fmt.Sprintf(" (%s)", ev.Strength)
		}
		return msg
	case models.AlertProgressing:
		return fmt.Sprintf("🚀 %s %s trend progressing to %s",
			name, strings.ToUpper(string(ev.Direction)), ev.Timeframe)
	case models.AlertFaded:
		return fmt.Sprintf("⚠️ %s %s trend faded at %s",
			name, ev.Direction, ev.Timeframe)
	default:
		return fmt.Sprintf("%s %s %s on %s", name, ev.Direction, ev.Kind, ev.Timeframe)
	}
}
