package policy

import (
	"reflect"
	"testing"
	"time"

	"github.com/quantrail/trendscan/internal/models"
)

var (
	seq   = []models.Timeframe{"5m", "15m", "30m", "1h"}
	waits = WaitMatrix{
		"5m":  {"15m": 10},
		"15m": {"30m": 15},
		"30m": {"1h": 30},
	}
	gold = models.Instrument{Symbol: "GC=F", Name: "Gold"}
)

func record(dir models.Direction, maxTF models.Timeframe, firstDetected time.Time) *models.TrendRecord {
	return &models.TrendRecord{
		Instrument:    gold.Symbol,
		Direction:     dir,
		MaxTimeframe:  maxTF,
		FirstDetected: firstDetected,
		LastUpdated:   firstDetected,
		TrendStrength: 1,
	}
}

func TestDecide_NoRecordProbesLowestOnly(t *testing.T) {
	got := Decide(nil, seq, waits, time.Now())
	if !reflect.DeepEqual(got, []models.Timeframe{"5m"}) {
		t.Errorf("Decide(nil) = %v, want [5m]", got)
	}
}

func TestDecide_HighestTimeframeConfirmationOnly(t *testing.T) {
	rec := record(models.DirectionBullish, "1h", time.Now().Add(-24*time.Hour))
	got := Decide(rec, seq, waits, time.Now())
	if !reflect.DeepEqual(got, []models.Timeframe{"1h"}) {
		t.Errorf("Decide(at highest) = %v, want [1h]", got)
	}
}

func TestDecide_EscalationTiming(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rec := record(models.DirectionBullish, "15m", t0)

	// wait_matrix[15m][30m] = 15 minutes
	before := Decide(rec, seq, waits, t0.Add(14*time.Minute))
	if !reflect.DeepEqual(before, []models.Timeframe{"15m"}) {
		t.Errorf("Decide at +14min = %v, want [15m]", before)
	}

	after := Decide(rec, seq, waits, t0.Add(16*time.Minute))
	if !reflect.DeepEqual(after, []models.Timeframe{"15m", "30m"}) {
		t.Errorf("Decide at +16min = %v, want [15m 30m]", after)
	}
}

func TestDecide_UnconfiguredPairUsesDefaultWait(t *testing.T) {
	t0 := time.Now()
	rec := record(models.DirectionBearish, "5m", t0)
	sparse := WaitMatrix{}

	got := Decide(rec, seq, sparse, t0.Add(9*time.Minute))
	if !reflect.DeepEqual(got, []models.Timeframe{"5m"}) {
		t.Errorf("at +9min with default wait = %v, want [5m]", got)
	}
	got = Decide(rec, seq, sparse, t0.Add(DefaultWaitMinutes*time.Minute))
	if !reflect.DeepEqual(got, []models.Timeframe{"5m", "15m"}) {
		t.Errorf("at +10min with default wait = %v, want [5m 15m]", got)
	}
}

func TestApply_CreateNewTrend(t *testing.T) {
	now := time.Now()
	results := map[models.Timeframe]models.Direction{"5m": models.DirectionBullish}

	out := Apply(nil, gold, results, seq, now)

	if out.Put == nil {
		t.Fatal("expected a created record")
	}
	if out.Delete != nil {
		t.Error("unexpected deletion")
	}
	if out.Put.Direction != models.DirectionBullish || out.Put.MaxTimeframe != "5m" {
		t.Errorf("created record = %+v", out.Put)
	}
	if out.Put.TrendStrength != 1 {
		t.Errorf("trend strength = %d, want 1", out.Put.TrendStrength)
	}
	if !out.Put.FirstDetected.Equal(now) || !out.Put.LastUpdated.Equal(now) {
		t.Errorf("timestamps not set to now: %+v", out.Put)
	}
	if len(out.Events) != 1 || out.Events[0].Kind != models.AlertNewTrend {
		t.Fatalf("events = %+v, want one new_trend", out.Events)
	}
	if out.Events[0].Timeframe != "5m" || out.Events[0].Direction != models.DirectionBullish {
		t.Errorf("event = %+v", out.Events[0])
	}
	if out.Events[0].ID == "" {
		t.Error("event ID must be assigned")
	}
}

func TestApply_NoRecordNoDetectionIsNoop(t *testing.T) {
	out := Apply(nil, gold, map[models.Timeframe]models.Direction{"5m": models.DirectionNone}, seq, time.Now())
	if out.Put != nil || out.Delete != nil || len(out.Events) != 0 {
		t.Errorf("expected empty outcome, got %+v", out)
	}
}

func TestApply_Escalate(t *testing.T) {
	t0 := time.Now().Add(-30 * time.Minute)
	now := time.Now()
	rec := record(models.DirectionBullish, "5m", t0)
	results := map[models.Timeframe]models.Direction{
		"5m":  models.DirectionBullish,
		"15m": models.DirectionBullish,
	}

	out := Apply(rec, gold, results, seq, now)

	if out.Put == nil {
		t.Fatal("expected an escalated record")
	}
	if out.Put.MaxTimeframe != "15m" {
		t.Errorf("max timeframe = %q, want 15m", out.Put.MaxTimeframe)
	}
	if !out.Put.FirstDetected.Equal(t0) {
		t.Error("first detected must be immutable")
	}
	if !out.Put.LastUpdated.Equal(now) {
		t.Error("last updated must advance on escalation")
	}
	if out.Put.TrendStrength != 2 {
		t.Errorf("trend strength = %d, want 2", out.Put.TrendStrength)
	}
	if len(out.Events) != 1 || out.Events[0].Kind != models.AlertProgressing {
		t.Fatalf("events = %+v, want one progressing", out.Events)
	}
}

func TestApply_OppositeDirectionAtNextDoesNotEscalate(t *testing.T) {
	rec := record(models.DirectionBullish, "5m", time.Now().Add(-time.Hour))
	results := map[models.Timeframe]models.Direction{
		"5m":  models.DirectionBullish,
		"15m": models.DirectionBearish,
	}
	out := Apply(rec, gold, results, seq, time.Now())
	if out.Put != nil {
		t.Errorf("opposite-direction result at next timeframe escalated: %+v", out.Put)
	}
	if out.Delete != nil {
		t.Error("re-confirmed record must not fade")
	}
}

func TestApply_Fade(t *testing.T) {
	rec := record(models.DirectionBullish, "15m", time.Now().Add(-time.Hour))
	results := map[models.Timeframe]models.Direction{"15m": models.DirectionNone}

	out := Apply(rec, gold, results, seq, time.Now())

	if out.Delete == nil {
		t.Fatal("expected a deletion")
	}
	if *out.Delete != rec.Key() {
		t.Errorf("deleted key = %v, want %v", *out.Delete, rec.Key())
	}
	if out.Put != nil {
		t.Error("unexpected record mutation on fade")
	}
	if len(out.Events) != 1 || out.Events[0].Kind != models.AlertFaded {
		t.Fatalf("events = %+v, want one faded", out.Events)
	}
	if out.Events[0].Timeframe != "15m" {
		t.Errorf("faded event timeframe = %q, want 15m", out.Events[0].Timeframe)
	}
}

func TestApply_OppositeDirectionAtMaxFades(t *testing.T) {
	rec := record(models.DirectionBearish, "30m", time.Now().Add(-time.Hour))
	results := map[models.Timeframe]models.Direction{"30m": models.DirectionBullish}
	out := Apply(rec, gold, results, seq, time.Now())
	if out.Delete == nil {
		t.Fatal("opposite-direction result at max timeframe must fade the record")
	}
}

func TestApply_EscalationSuppressesFade(t *testing.T) {
	// The current level reads none but the next level confirms: escalation
	// wins and the record survives.
	rec := record(models.DirectionBullish, "5m", time.Now().Add(-time.Hour))
	results := map[models.Timeframe]models.Direction{
		"5m":  models.DirectionNone,
		"15m": models.DirectionBullish,
	}
	out := Apply(rec, gold, results, seq, time.Now())
	if out.Delete != nil {
		t.Error("record faded despite escalation in the same cycle")
	}
	if out.Put == nil || out.Put.MaxTimeframe != "15m" {
		t.Errorf("expected escalation to 15m, got %+v", out.Put)
	}
}

func TestApply_AbsentResultNeverFades(t *testing.T) {
	// A fetch failure leaves the timeframe out of the results map; lack of
	// data must not be read as loss of confirmation.
	rec := record(models.DirectionBullish, "15m", time.Now().Add(-time.Hour))
	out := Apply(rec, gold, map[models.Timeframe]models.Direction{}, seq, time.Now())
	if out.Put != nil || out.Delete != nil || len(out.Events) != 0 {
		t.Errorf("expected empty outcome on missing data, got %+v", out)
	}
}

func TestApply_ReconfirmationIsIdempotent(t *testing.T) {
	rec := record(models.DirectionBullish, "15m", time.Now().Add(-time.Hour))
	results := map[models.Timeframe]models.Direction{"15m": models.DirectionBullish}
	now := time.Now()

	first := Apply(rec, gold, results, seq, now)
	second := Apply(rec, gold, results, seq, now)

	for i, out := range []Outcome{first, second} {
		if out.Put != nil || out.Delete != nil || len(out.Events) != 0 {
			t.Errorf("apply #%d: re-confirmation produced a change: %+v", i+1, out)
		}
	}
}

func TestApply_MaxTimeframeIsMonotonic(t *testing.T) {
	rec := record(models.DirectionBullish, "5m", time.Now().Add(-2*time.Hour))
	now := time.Now()

	for _, next := range []models.Timeframe{"15m", "30m", "1h"} {
		results := map[models.Timeframe]models.Direction{
			rec.MaxTimeframe: models.DirectionBullish,
			next:             models.DirectionBullish,
		}
		out := Apply(rec, gold, results, seq, now)
		if out.Put == nil {
			t.Fatalf("expected escalation to %s", next)
		}
		if models.IndexOf(seq, out.Put.MaxTimeframe) <= models.IndexOf(seq, rec.MaxTimeframe) {
			t.Fatalf("max timeframe moved backwards: %s -> %s", rec.MaxTimeframe, out.Put.MaxTimeframe)
		}
		rec = out.Put
	}

	if rec.MaxTimeframe != "1h" || rec.TrendStrength != 4 {
		t.Errorf("final record = %+v", rec)
	}
}

func TestWaitMatrixMinutes(t *testing.T) {
	if got := waits.Minutes("5m", "15m"); got != 10 {
		t.Errorf("Minutes(5m,15m) = %d, want 10", got)
	}
	if got := waits.Minutes("5m", "30m"); got != DefaultWaitMinutes {
		t.Errorf("Minutes(5m,30m) = %d, want default %d", got, DefaultWaitMinutes)
	}
	if got := (WaitMatrix{"5m": {"15m": 0}}).Minutes("5m", "15m"); got != 0 {
		t.Errorf("explicit zero entry must allow an immediate probe, got %d", got)
	}
	if got := (WaitMatrix{"5m": {"15m": -1}}).Minutes("5m", "15m"); got != DefaultWaitMinutes {
		t.Errorf("negative entry must fall back to default, got %d", got)
	}
}

func TestDecide_ZeroWaitProbesImmediately(t *testing.T) {
	t0 := time.Now()
	rec := record(models.DirectionBullish, "5m", t0)
	immediate := WaitMatrix{"5m": {"15m": 0}}

	got := Decide(rec, seq, immediate, t0)
	if !reflect.DeepEqual(got, []models.Timeframe{"5m", "15m"}) {
		t.Errorf("with a zero wait = %v, want [5m 15m]", got)
	}
}
