package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/eardrill/internal/adaptive"
	"github.com/verte-zerg/eardrill/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "eardrill.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return st
}

func insertBout(t *testing.T, st *Store, ended time.Time, trials []model.TrialRecord) int64 {
	t.Helper()
	score := 0.0
	for _, tr := range trials {
		score += tr.Score
	}
	id, err := st.InsertBout(context.Background(), model.BoutRecord{
		StartedAt:       ended.Add(-time.Minute),
		EndedAt:         ended,
		TargetFitness:   0.5,
		Items:           len(trials),
		CumulativeScore: score,
	}, trials)
	if err != nil {
		t.Fatalf("insert bout: %v", err)
	}
	return id
}

func TestInsertAndListBouts(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first := insertBout(t, st, base, []model.TrialRecord{
		{Index: 0, Level: 1, Tempo: 72, Correct: true, ObservedSeconds: 2, Score: 0.875, Degrees: "3"},
		{Index: 1, Level: 2, Tempo: 84, Correct: false, ObservedSeconds: 4, Degrees: "1 2"},
	})
	second := insertBout(t, st, base.Add(time.Hour), []model.TrialRecord{
		{Index: 0, Level: 2, Tempo: 96, Correct: true, ObservedSeconds: 5, Score: 0.5, Degrees: "4 5"},
	})

	bouts, err := st.ListBouts(ctx, model.StatsConfig{})
	if err != nil {
		t.Fatalf("list bouts: %v", err)
	}
	if len(bouts) != 2 {
		t.Fatalf("expected 2 bouts, got %d", len(bouts))
	}
	if bouts[0].BoutID != first || bouts[1].BoutID != second {
		t.Fatalf("expected oldest first, got %+v", bouts)
	}
	if bouts[0].Correct != 1 || bouts[0].Items != 2 {
		t.Fatalf("unexpected first bout aggregate: %+v", bouts[0])
	}
	if bouts[0].UUID == "" || bouts[0].UUID == bouts[1].UUID {
		t.Fatalf("expected distinct generated uuids, got %q and %q", bouts[0].UUID, bouts[1].UUID)
	}

	last, err := st.ListBouts(ctx, model.StatsConfig{Last: 1})
	if err != nil {
		t.Fatalf("list last bouts: %v", err)
	}
	if len(last) != 1 || last[0].BoutID != second {
		t.Fatalf("expected only the newest bout, got %+v", last)
	}

	since := base.Add(30 * time.Minute)
	filtered, err := st.ListBouts(ctx, model.StatsConfig{Since: &since})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(filtered) != 1 || filtered[0].BoutID != second {
		t.Fatalf("expected since filter to keep newest bout, got %+v", filtered)
	}
}

func TestListLevelAggregatesAndTrials(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	a := insertBout(t, st, now, []model.TrialRecord{
		{Index: 0, Level: 1, Tempo: 72, PredictedSeconds: 3, Correct: true, ObservedSeconds: 2, Score: 0.875, Degrees: "3"},
		{Index: 1, Level: 2, Tempo: 84, PredictedSeconds: 4, Correct: false, ObservedSeconds: 4, Degrees: "1 2"},
	})
	b := insertBout(t, st, now.Add(time.Minute), []model.TrialRecord{
		{Index: 0, Level: 2, Tempo: 96, PredictedSeconds: 5, Correct: true, ObservedSeconds: 5, Score: 0.5, Degrees: "4 5"},
	})

	aggs, err := st.ListLevelAggregates(ctx, []int64{a, b})
	if err != nil {
		t.Fatalf("level aggregates: %v", err)
	}
	if len(aggs) != 2 {
		t.Fatalf("expected 2 levels, got %+v", aggs)
	}
	lvl2 := aggs[1]
	if lvl2.Level != 2 || lvl2.Items != 2 || lvl2.Correct != 1 || lvl2.SecondsSum != 9 || lvl2.PredictedSum != 9 {
		t.Fatalf("unexpected level 2 aggregate: %+v", lvl2)
	}
	if lvl2.MinTempo != 84 || lvl2.MaxTempo != 96 {
		t.Fatalf("unexpected tempo range: %+v", lvl2)
	}

	empty, err := st.ListLevelAggregates(ctx, nil)
	if err != nil || empty != nil {
		t.Fatalf("expected nil aggregates for no bouts, got %v %v", empty, err)
	}

	trials, err := st.ListTrials(ctx, a)
	if err != nil {
		t.Fatalf("list trials: %v", err)
	}
	if len(trials) != 2 || !trials[0].Correct || trials[1].Correct || trials[1].Degrees != "1 2" {
		t.Fatalf("unexpected trials: %+v", trials)
	}
}

func TestCalibrationRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	loaded, err := st.LoadCalibration(ctx)
	if err != nil {
		t.Fatalf("load empty calibration: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected no stored bins, got %v", loaded)
	}

	bins := map[int][]adaptive.Bin{
		1: {{TempoCenter: 60, EMASeconds: 2.5, Count: 3}, {TempoCenter: 200, EMASeconds: 7, Count: 1}},
		3: {{TempoCenter: 60, EMASeconds: 4, Count: 0}},
	}
	if err := st.SaveCalibration(ctx, bins); err != nil {
		t.Fatalf("save calibration: %v", err)
	}
	// Saving again replaces rather than duplicates.
	if err := st.SaveCalibration(ctx, bins); err != nil {
		t.Fatalf("resave calibration: %v", err)
	}
	loaded, err = st.LoadCalibration(ctx)
	if err != nil {
		t.Fatalf("load calibration: %v", err)
	}
	if len(loaded) != 2 || len(loaded[1]) != 2 || len(loaded[3]) != 1 {
		t.Fatalf("unexpected loaded bins: %v", loaded)
	}
	if loaded[1][1] != bins[1][1] {
		t.Fatalf("expected %+v, got %+v", bins[1][1], loaded[1][1])
	}

	if err := st.ResetCalibration(ctx); err != nil {
		t.Fatalf("reset calibration: %v", err)
	}
	loaded, err = st.LoadCalibration(ctx)
	if err != nil || len(loaded) != 0 {
		t.Fatalf("expected empty calibration after reset, got %v %v", loaded, err)
	}
}
