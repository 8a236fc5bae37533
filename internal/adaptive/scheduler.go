package adaptive

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Candidate is one scheduling decision.
type Candidate struct {
	Level                int     `json:"level"` // N, notes per item
	Tempo                int     `json:"tempo"` // BPM
	PredictedSeconds     float64 `json:"predicted_seconds"`
	ExpectedFitness      float64 `json:"expected_fitness"`
	StructuralDifficulty float64 `json:"structural_difficulty"`
}

// BoutStats is the running aggregate of the current bout.
type BoutStats struct {
	Items           int     `json:"items"`
	CumulativeScore float64 `json:"cumulative_score"`
}

// AverageScore returns CumulativeScore/Items, or 0 before any item.
func (b BoutStats) AverageScore() float64 {
	if b.Items == 0 {
		return 0
	}
	return b.CumulativeScore / float64(b.Items)
}

// Scheduler is the bout-level adaptive orchestrator.
type Scheduler struct {
	cfg         Config
	calibrators []*TempoCalibrator // index N-1, for N in 1..MaxLevel
	rng         *rand.Rand
	logger      *zap.Logger

	target float64
	tempos []int

	last    *Candidate // last offered, drives hysteresis
	pending bool       // last has not received feedback yet
	bout    BoutStats
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRand sets the random source used for menu sampling.
func WithRand(rng *rand.Rand) Option {
	return func(s *Scheduler) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New validates cfg and creates a Scheduler with one calibrator per level
// in 1..cfg.MaxLevel.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.clone()
	s := &Scheduler{
		cfg:         cfg,
		calibrators: make([]*TempoCalibrator, cfg.MaxLevel),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:      zap.NewNop(),
		target:      cfg.TargetFitness,
		tempos:      append([]int(nil), cfg.Tempos...),
	}
	for i := range s.calibrators {
		c, err := NewTempoCalibrator(cfg.calibratorConfig())
		if err != nil {
			return nil, err
		}
		s.calibrators[i] = c
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BoutOption overrides per-bout settings in NewBout.
type BoutOption func(*Scheduler)

// WithTargetFitness overrides the target fitness for the new bout.
// Values outside [0, 1] are ignored.
func WithTargetFitness(f float64) BoutOption {
	return func(s *Scheduler) {
		if math.IsNaN(f) || f < 0 || f > 1 {
			s.logger.Warn("ignoring target fitness override", zap.Float64("target", f))
			return
		}
		s.target = f
	}
}

// WithActiveTempos overrides the active tempo set for the new bout. Tempos
// outside the configured bounds are dropped; an empty result is ignored.
func WithActiveTempos(tempos []int) BoutOption {
	return func(s *Scheduler) {
		kept := make([]int, 0, len(tempos))
		for _, t := range tempos {
			if t >= s.cfg.TempoMin && t <= s.cfg.TempoMax {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			s.logger.Warn("ignoring tempo override", zap.Ints("tempos", tempos))
			return
		}
		s.tempos = kept
	}
}

// NewBout resets bout statistics and hysteresis. Calibrators keep what they
// have learned.
func (s *Scheduler) NewBout(opts ...BoutOption) {
	for _, opt := range opts {
		opt(s)
	}
	s.bout = BoutStats{}
	s.last = nil
	s.pending = false
}

// Config returns a copy of the scheduler configuration.
func (s *Scheduler) Config() Config { return s.cfg.clone() }

// Target returns the target fitness of the current bout.
func (s *Scheduler) Target() float64 { return s.target }

// ActiveTempos returns the tempo set of the current bout.
func (s *Scheduler) ActiveTempos() []int { return append([]int(nil), s.tempos...) }

// Levels returns the allowed difficulty levels.
func (s *Scheduler) Levels() []int { return append([]int(nil), s.cfg.Levels...) }

// Calibrator returns the calibrator for level n, or nil if n is outside
// 1..MaxLevel.
func (s *Scheduler) Calibrator(n int) *TempoCalibrator {
	if n < 1 || n > len(s.calibrators) {
		return nil
	}
	return s.calibrators[n-1]
}

// StructuralDifficulty blends normalized level and tempo into [0, 1].
func (s *Scheduler) StructuralDifficulty(n, tempo int) float64 {
	wN := s.cfg.StructuralWeight
	nn := normalize(float64(n), 1, float64(s.cfg.MaxLevel))
	tn := normalize(float64(tempo), float64(s.cfg.TempoMin), float64(s.cfg.TempoMax))
	return clip01(wN*nn + (1-wN)*tn)
}

// ExpectedFitness returns the predicted fitness Fe of (n, tempo) and its
// structural difficulty q.
func (s *Scheduler) ExpectedFitness(n, tempo int) (fe, q float64) {
	fe, q, _ = s.evaluate(n, tempo)
	return fe, q
}

func (s *Scheduler) evaluate(n, tempo int) (fe, q, predicted float64) {
	predicted = s.calibrator(n).PredictSeconds(tempo)
	speed := s.cfg.Feasibility.Credit(predicted)
	q = s.StructuralDifficulty(n, tempo)
	wN := s.cfg.StructuralWeight
	fe = clip01(s.cfg.MasteryCeiling * (wN*q + (1-wN)*speed))
	return fe, q, predicted
}

// calibrator clamps n into 1..MaxLevel so runtime paths never index out of range.
func (s *Scheduler) calibrator(n int) *TempoCalibrator {
	n = min(max(n, 1), len(s.calibrators))
	return s.calibrators[n-1]
}

func (s *Scheduler) candidate(n, tempo int) Candidate {
	fe, q, predicted := s.evaluate(n, tempo)
	return Candidate{
		Level:                n,
		Tempo:                tempo,
		PredictedSeconds:     predicted,
		ExpectedFitness:      fe,
		StructuralDifficulty: q,
	}
}

// Next picks the next drill candidate. It always returns a candidate.
func (s *Scheduler) Next() Candidate {
	menu := s.menu()
	pick := s.sample(menu)
	if s.last != nil && absInt(pick.Level-s.last.Level) > s.cfg.MaxLevelStep {
		pick = s.candidate(s.last.Level, pick.Tempo)
	}
	s.logger.Debug("next candidate",
		zap.Int("menu", len(menu)),
		zap.Int("level", pick.Level),
		zap.Int("tempo", pick.Tempo),
		zap.Float64("predicted_seconds", pick.PredictedSeconds),
		zap.Float64("expected_fitness", pick.ExpectedFitness),
		zap.Float64("target", s.target),
	)
	offered := pick
	s.last = &offered
	s.pending = true
	return pick
}

// activeTempos applies tempo hysteresis around the last offered tempo.
func (s *Scheduler) activeTempos() []int {
	if s.last == nil {
		return s.tempos
	}
	lastTempo := s.last.Tempo
	allowed := make([]int, 0, len(s.tempos))
	for _, t := range s.tempos {
		if absInt(t-lastTempo) <= s.cfg.MaxTempoStep || t == lastTempo {
			allowed = append(allowed, t)
		}
	}
	if len(allowed) == 0 {
		allowed = append(allowed, lastTempo)
	}
	return allowed
}

// menu returns up to MenuSize feasible candidates closest to the target.
func (s *Scheduler) menu() []Candidate {
	tempos := s.activeTempos()
	menu := make([]Candidate, 0, len(s.cfg.Levels)*len(tempos))
	for _, n := range s.cfg.Levels {
		for _, t := range tempos {
			c := s.candidate(n, t)
			if !s.cfg.Feasibility.Contains(c.PredictedSeconds) {
				continue
			}
			menu = append(menu, c)
		}
	}
	sort.SliceStable(menu, func(i, j int) bool {
		return math.Abs(menu[i].ExpectedFitness-s.target) < math.Abs(menu[j].ExpectedFitness-s.target)
	})
	if len(menu) > s.cfg.MenuSize {
		menu = menu[:s.cfg.MenuSize]
	}
	return menu
}

// sample draws center/easier/harder from the menu, or builds the
// conservative fallback when the menu is empty.
func (s *Scheduler) sample(menu []Candidate) Candidate {
	if len(menu) == 0 {
		n := slices.Min(s.cfg.Levels)
		tempo := slices.Min(s.tempos)
		if s.last != nil {
			n, tempo = s.last.Level, s.last.Tempo
		}
		s.logger.Debug("empty menu, using fallback", zap.Int("level", n), zap.Int("tempo", tempo))
		return s.candidate(n, tempo)
	}
	sort.SliceStable(menu, func(i, j int) bool {
		return menu[i].ExpectedFitness < menu[j].ExpectedFitness
	})
	lastIdx := len(menu) - 1
	center := sort.Search(len(menu), func(i int) bool {
		return menu[i].ExpectedFitness >= s.target
	})
	center = min(center, lastIdx)
	easier := max(center-1, 0)
	harder := min(center+1, lastIdx)

	r := s.rng.Float64()
	switch {
	case r < s.cfg.Split.Center:
		return menu[center]
	case r < s.cfg.Split.Center+s.cfg.Split.Easier:
		return menu[easier]
	default:
		return menu[harder]
	}
}

// ItemScore is the per-item score: speed credit when correct, 0 otherwise.
func (s *Scheduler) ItemScore(correct bool, observedSeconds float64) float64 {
	if !correct {
		return 0
	}
	return s.cfg.Feasibility.Credit(observedSeconds)
}

// Feedback records the trainee's response to the last offered candidate.
// It is a no-op when no candidate has been offered since the last feedback.
func (s *Scheduler) Feedback(correct bool, observedSeconds float64) {
	if s.last == nil || !s.pending {
		return
	}
	s.pending = false
	s.calibrator(s.last.Level).Update(s.last.Tempo, observedSeconds)
	s.bout.Items++
	s.bout.CumulativeScore += s.ItemScore(correct, observedSeconds)
}

// Update returns the running aggregate of the current bout.
func (s *Scheduler) Update() BoutStats {
	return s.bout
}

// CalibrationSnapshot returns the bins of every level calibrator keyed by
// level.
func (s *Scheduler) CalibrationSnapshot() map[int][]Bin {
	out := make(map[int][]Bin, len(s.calibrators))
	for i, c := range s.calibrators {
		out[i+1] = c.Bins()
	}
	return out
}

// RestoreCalibration loads previously saved bins into the level
// calibrators. Levels outside 1..MaxLevel are skipped. A layout mismatch
// aborts the restore and leaves the remaining levels untouched.
func (s *Scheduler) RestoreCalibration(bins map[int][]Bin) error {
	levels := make([]int, 0, len(bins))
	for n := range bins {
		levels = append(levels, n)
	}
	sort.Ints(levels)
	for _, n := range levels {
		c := s.Calibrator(n)
		if c == nil {
			s.logger.Warn("skipping calibration for unknown level", zap.Int("level", n))
			continue
		}
		if err := c.Restore(bins[n]); err != nil {
			return fmt.Errorf("level %d: %w", n, err)
		}
	}
	return nil
}
