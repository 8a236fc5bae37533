package adaptive

import (
	"errors"
	"math"
	"math/rand"
	"slices"
	"testing"
)

func newTestScheduler(t *testing.T, cfg Config, seed int64) *Scheduler {
	t.Helper()
	s, err := New(cfg, WithRand(rand.New(rand.NewSource(seed))))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func TestNewCreatesCalibratorPerLevel(t *testing.T) {
	s := newTestScheduler(t, DefaultConfig(), 1)
	for n := 1; n <= 8; n++ {
		if s.Calibrator(n) == nil {
			t.Fatalf("missing calibrator for level %d", n)
		}
	}
	if s.Calibrator(0) != nil || s.Calibrator(9) != nil {
		t.Fatalf("expected nil calibrator outside 1..MaxLevel")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"target":       func(c *Config) { c.TargetFitness = 1.5 },
		"mastery":      func(c *Config) { c.MasteryCeiling = -0.1 },
		"weight":       func(c *Config) { c.StructuralWeight = math.NaN() },
		"tempo order":  func(c *Config) { c.TempoMin = 200 },
		"tempo set":    func(c *Config) { c.Tempos = nil },
		"tempo bounds": func(c *Config) { c.Tempos = []int{40} },
		"max level":    func(c *Config) { c.MaxLevel = 0 },
		"levels":       func(c *Config) { c.Levels = []int{9} },
		"no levels":    func(c *Config) { c.Levels = nil },
		"steps":        func(c *Config) { c.MaxTempoStep = -1 },
		"bins":         func(c *Config) { c.CalibrationBins = -2 },
		"lambda":       func(c *Config) { c.EMALambda = 1.5 },
		"bounds":       func(c *Config) { c.Feasibility = Bounds{Min: 9, Max: 1} },
		"nan lambda":   func(c *Config) { c.EMALambda = math.NaN() },
		"nan bounds":   func(c *Config) { c.Feasibility.Min = math.NaN() },
		"inf bounds":   func(c *Config) { c.Feasibility.Max = math.Inf(1) },
		"nan anchor":   func(c *Config) { c.FastAnchor.Seconds = math.NaN() },
		"inf weight":   func(c *Config) { c.SlowAnchor.Weight = math.Inf(1) },
		"menu":         func(c *Config) { c.MenuSize = 0 },
		"split":        func(c *Config) { c.Split = Split{Center: 0.5, Easier: 0.2, Harder: 0.1} },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestNewCopiesConfigSlices(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestScheduler(t, cfg, 1)
	cfg.Tempos[0] = 199
	cfg.Levels[0] = 8
	if s.ActiveTempos()[0] != 72 || s.Levels()[0] != 1 {
		t.Fatalf("scheduler must not alias caller slices")
	}
}

func TestStructuralDifficulty(t *testing.T) {
	s := newTestScheduler(t, DefaultConfig(), 1)
	if got := s.StructuralDifficulty(1, 60); got != 0 {
		t.Fatalf("expected 0 at the easiest corner, got %f", got)
	}
	if got := s.StructuralDifficulty(8, 200); math.Abs(got-1) > 1e-12 {
		t.Fatalf("expected 1 at the hardest corner, got %f", got)
	}
	want := 0.6*(3.0/7.0) + 0.4*(30.0/140.0)
	if got := s.StructuralDifficulty(4, 90); math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected %f, got %f", want, got)
	}

	cfg := DefaultConfig()
	cfg.MaxLevel = 1
	cfg.Levels = []int{1}
	single := newTestScheduler(t, cfg, 1)
	if got := single.StructuralDifficulty(1, 200); math.Abs(got-0.4) > 1e-12 {
		t.Fatalf("expected level term 0 when MaxLevel is 1, got %f", got)
	}
}

func TestExpectedFitnessColdScheduler(t *testing.T) {
	s := newTestScheduler(t, DefaultConfig(), 1)
	pred := (0.8*50 + 5.0*8 + 9.5*50) / 108
	q := s.StructuralDifficulty(2, 84)
	want := 0.85 * (0.6*q + 0.4*Credit(pred))
	fe, gotQ := s.ExpectedFitness(2, 84)
	if math.Abs(fe-want) > 1e-9 || gotQ != q {
		t.Fatalf("expected (%f, %f), got (%f, %f)", want, q, fe, gotQ)
	}
}

func TestNextColdSchedulerReturnsCandidate(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestScheduler(t, cfg, 3)
	for i := 0; i < 50; i++ {
		c := s.Next()
		if !slices.Contains(cfg.Levels, c.Level) {
			t.Fatalf("level %d not in allowed set", c.Level)
		}
		if !slices.Contains(cfg.Tempos, c.Tempo) {
			t.Fatalf("tempo %d not in active set", c.Tempo)
		}
		if c.ExpectedFitness < 0 || c.ExpectedFitness > 1 {
			t.Fatalf("expected fitness out of range: %f", c.ExpectedFitness)
		}
	}
}

func TestNextEmptyMenuFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Feasibility = Bounds{Min: 1, Max: 1.5}
	s := newTestScheduler(t, cfg, 1)
	if menu := s.menu(); len(menu) != 0 {
		t.Fatalf("expected empty menu, got %d items", len(menu))
	}
	c := s.Next()
	if c.Level != 1 || c.Tempo != 72 {
		t.Fatalf("expected fallback (1, 72), got (%d, %d)", c.Level, c.Tempo)
	}
	if c.PredictedSeconds <= cfg.Feasibility.Max {
		t.Fatalf("fallback should bypass the feasibility filter, predicted %f", c.PredictedSeconds)
	}
	s.Feedback(true, 1.2)
	again := s.Next()
	if again.Level != c.Level || again.Tempo != c.Tempo {
		t.Fatalf("expected fallback to repeat last offer, got %+v", again)
	}
}

func TestNextTempoHysteresis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tempos = []int{64, 72, 80, 88, 96, 140}
	cfg.MaxTempoStep = 8
	for seed := int64(0); seed < 40; seed++ {
		s := newTestScheduler(t, cfg, seed)
		first := s.Next()
		second := s.Next()
		if absInt(second.Tempo-first.Tempo) > 8 {
			t.Fatalf("seed %d: tempo jumped %d -> %d", seed, first.Tempo, second.Tempo)
		}
	}
}

func TestNextTempoHysteresisIsolatedTempo(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tempos = []int{80, 120}
	cfg.MaxTempoStep = 8
	cfg.MaxLevelStep = 8
	s := newTestScheduler(t, cfg, 11)
	first := s.Next()
	for i := 0; i < 20; i++ {
		if c := s.Next(); c.Tempo != first.Tempo {
			t.Fatalf("expected tempo to stay at %d, got %d", first.Tempo, c.Tempo)
		}
	}
	s.NewBout()
	if got := s.activeTempos(); len(got) != 2 {
		t.Fatalf("expected full tempo set after NewBout, got %v", got)
	}
}

func TestNextLevelRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Levels = []int{1, 4, 8}
	cfg.MaxLevelStep = 0
	s := newTestScheduler(t, cfg, 5)
	first := s.Next()
	for i := 0; i < 30; i++ {
		c := s.Next()
		if c.Level != first.Level {
			t.Fatalf("level changed from %d to %d with step 0", first.Level, c.Level)
		}
		fe, q := s.ExpectedFitness(c.Level, c.Tempo)
		if math.Abs(c.ExpectedFitness-fe) > 1e-12 || math.Abs(c.StructuralDifficulty-q) > 1e-12 {
			t.Fatalf("forced candidate must be rescored: %+v", c)
		}
	}
}

func TestSampleSplit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Split = Split{Center: 1}
	s := newTestScheduler(t, cfg, 1)
	menu := s.menu()
	if len(menu) == 0 {
		t.Fatalf("expected a non-empty cold menu")
	}
	sorted := slices.Clone(menu)
	slices.SortStableFunc(sorted, func(a, b Candidate) int {
		switch {
		case a.ExpectedFitness < b.ExpectedFitness:
			return -1
		case a.ExpectedFitness > b.ExpectedFitness:
			return 1
		}
		return 0
	})
	center := len(sorted) - 1
	for i, c := range sorted {
		if c.ExpectedFitness >= s.Target() {
			center = i
			break
		}
	}
	if got := s.sample(slices.Clone(menu)); got != sorted[center] {
		t.Fatalf("expected center %+v, got %+v", sorted[center], got)
	}

	s.cfg.Split = Split{Harder: 1}
	harder := min(center+1, len(sorted)-1)
	if got := s.sample(slices.Clone(menu)); got != sorted[harder] {
		t.Fatalf("expected harder %+v, got %+v", sorted[harder], got)
	}
	s.cfg.Split = Split{Easier: 1}
	easier := max(center-1, 0)
	if got := s.sample(slices.Clone(menu)); got != sorted[easier] {
		t.Fatalf("expected easier %+v, got %+v", sorted[easier], got)
	}
}

func TestMenuKeepsClosestToTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MenuSize = 3
	s := newTestScheduler(t, cfg, 1)
	menu := s.menu()
	if len(menu) != 3 {
		t.Fatalf("expected menu of 3, got %d", len(menu))
	}
	worst := 0.0
	for _, c := range menu {
		worst = math.Max(worst, math.Abs(c.ExpectedFitness-s.Target()))
	}
	for _, n := range cfg.Levels {
		for _, tempo := range cfg.Tempos {
			fe, _ := s.ExpectedFitness(n, tempo)
			in := slices.ContainsFunc(menu, func(c Candidate) bool { return c.Level == n && c.Tempo == tempo })
			if !in && math.Abs(fe-s.Target()) < worst-1e-12 {
				t.Fatalf("candidate (%d, %d) closer than menu worst was dropped", n, tempo)
			}
		}
	}
}

func TestEndToEndBout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetFitness = 0.5
	cfg.MasteryCeiling = 0.85
	cfg.Tempos = []int{72, 84, 96}
	cfg.Levels = []int{1, 2, 3, 4}
	cfg.TempoMin, cfg.TempoMax = 60, 200
	s := newTestScheduler(t, cfg, 9)

	c := s.Next()
	s.Feedback(true, 1.5)
	stats := s.Update()
	if stats.Items != 1 {
		t.Fatalf("expected 1 item, got %d", stats.Items)
	}
	if math.Abs(stats.AverageScore()-Credit(1.5)) > 1e-12 {
		t.Fatalf("expected average %f, got %f", Credit(1.5), stats.AverageScore())
	}
	if got := s.Calibrator(c.Level).Bins(); countObservations(got) != 1 {
		t.Fatalf("expected one calibrator observation for level %d", c.Level)
	}
}

func TestFeedbackIncorrectScoresZero(t *testing.T) {
	s := newTestScheduler(t, DefaultConfig(), 2)
	for _, sec := range []float64{0.1, 1.0, 4.2, 30} {
		s.Next()
		s.Feedback(false, sec)
	}
	stats := s.Update()
	if stats.Items != 4 || stats.CumulativeScore != 0 {
		t.Fatalf("expected 4 zero-score items, got %+v", stats)
	}
	if s.ItemScore(false, 0.5) != 0 {
		t.Fatalf("incorrect item must score 0")
	}
}

func TestFeedbackWithoutNextIsNoop(t *testing.T) {
	s := newTestScheduler(t, DefaultConfig(), 2)
	s.Feedback(true, 1.0)
	if s.Update().Items != 0 {
		t.Fatalf("feedback before Next must be ignored")
	}
	s.Next()
	s.Feedback(true, 1.0)
	s.Feedback(true, 1.0)
	if got := s.Update().Items; got != 1 {
		t.Fatalf("expected duplicate feedback to be ignored, got %d items", got)
	}
}

func TestNewBoutResetsStatsKeepsCalibration(t *testing.T) {
	s := newTestScheduler(t, DefaultConfig(), 4)
	c := s.Next()
	s.Feedback(true, 2.0)

	s.NewBout(WithTargetFitness(0.3), WithActiveTempos([]int{100, 110}))
	if s.Update() != (BoutStats{}) {
		t.Fatalf("expected cleared bout stats")
	}
	if s.Target() != 0.3 {
		t.Fatalf("expected target override, got %f", s.Target())
	}
	if !slices.Equal(s.ActiveTempos(), []int{100, 110}) {
		t.Fatalf("expected tempo override, got %v", s.ActiveTempos())
	}
	if countObservations(s.Calibrator(c.Level).Bins()) != 1 {
		t.Fatalf("calibration must survive NewBout")
	}
	s.Feedback(true, 1.0)
	if s.Update().Items != 0 {
		t.Fatalf("feedback after NewBout must be ignored until Next")
	}
}

func TestNewBoutIgnoresInvalidOverrides(t *testing.T) {
	s := newTestScheduler(t, DefaultConfig(), 4)
	s.NewBout(WithTargetFitness(2), WithActiveTempos([]int{10, 500}))
	if s.Target() != 0.5 {
		t.Fatalf("expected target unchanged, got %f", s.Target())
	}
	if !slices.Equal(s.ActiveTempos(), []int{72, 84, 96}) {
		t.Fatalf("expected tempos unchanged, got %v", s.ActiveTempos())
	}
}

func TestBoutStatsAverage(t *testing.T) {
	if (BoutStats{}).AverageScore() != 0 {
		t.Fatalf("expected 0 average for empty bout")
	}
	if got := (BoutStats{Items: 4, CumulativeScore: 3}).AverageScore(); got != 0.75 {
		t.Fatalf("expected 0.75, got %f", got)
	}
}

func countObservations(bins []Bin) int {
	total := 0
	for _, b := range bins {
		total += b.Count
	}
	return total
}

func TestCalibrationSnapshotRestore(t *testing.T) {
	a := newTestScheduler(t, DefaultConfig(), 1)
	a.Calibrator(2).Update(60, 1.5)
	a.Calibrator(2).Update(200, 7)
	snap := a.CalibrationSnapshot()
	if len(snap) != 8 {
		t.Fatalf("expected 8 levels in snapshot, got %d", len(snap))
	}

	b := newTestScheduler(t, DefaultConfig(), 2)
	snap[42] = snap[2]
	if err := b.RestoreCalibration(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !slices.Equal(a.Calibrator(2).Bins(), b.Calibrator(2).Bins()) {
		t.Fatalf("restored bins differ")
	}
	if got, want := b.Calibrator(2).PredictSeconds(96), a.Calibrator(2).PredictSeconds(96); got != want {
		t.Fatalf("expected prediction %f, got %f", want, got)
	}

	bad := map[int][]Bin{1: {{TempoCenter: 61}}}
	if err := b.RestoreCalibration(bad); !errors.Is(err, ErrBinLayoutMismatch) {
		t.Fatalf("expected layout mismatch, got %v", err)
	}
}
