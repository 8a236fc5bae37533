package adaptive

import (
	"fmt"
	"math"
)

// Split is the probability of picking the nearest match, the next easier
// and the next harder menu item. The three must sum to 1.
type Split struct {
	Center float64 `json:"center"`
	Easier float64 `json:"easier"`
	Harder float64 `json:"harder"`
}

// DefaultSplit is the 70/20/10 center/easier/harder split.
var DefaultSplit = Split{Center: 0.70, Easier: 0.20, Harder: 0.10}

// Config holds every tunable of a Scheduler. It is validated once by New
// and treated as immutable afterwards.
type Config struct {
	TargetFitness    float64 `json:"target_fitness"`    // F
	MasteryCeiling   float64 `json:"mastery_ceiling"`   // p*
	StructuralWeight float64 `json:"structural_weight"` // wN, blend of structure vs speed

	Tempos   []int `json:"tempos"` // active tempo set for a bout
	TempoMin int   `json:"tempo_min"`
	TempoMax int   `json:"tempo_max"`

	MaxLevel int   `json:"max_level"` // N_max
	Levels   []int `json:"levels"`    // allowed N values

	MaxTempoStep int `json:"max_tempo_step"` // BPM
	MaxLevelStep int `json:"max_level_step"`

	CalibrationBins int     `json:"calibration_bins"`
	EMALambda       float64 `json:"ema_lambda"`
	Feasibility     Bounds  `json:"feasibility"`
	FastAnchor      Anchor  `json:"fast_anchor"`
	SlowAnchor      Anchor  `json:"slow_anchor"`

	MenuSize int   `json:"menu_size"` // K
	Split    Split `json:"split"`
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		TargetFitness:    0.5,
		MasteryCeiling:   0.85,
		StructuralWeight: 0.6,
		Tempos:           []int{72, 84, 96},
		TempoMin:         60,
		TempoMax:         200,
		MaxLevel:         8,
		Levels:           []int{1, 2, 3, 4},
		MaxTempoStep:     8,
		MaxLevelStep:     1,
		CalibrationBins:  10,
		EMALambda:        0.1,
		Feasibility:      DefaultBounds,
		FastAnchor:       Anchor{Seconds: 0.8, Weight: 50},
		SlowAnchor:       Anchor{Seconds: 9.5, Weight: 50},
		MenuSize:         6,
		Split:            DefaultSplit,
	}
}

const splitTolerance = 1e-9

// Validate reports the first configuration error.
func (c Config) Validate() error {
	if err := checkUnit("target fitness", c.TargetFitness); err != nil {
		return err
	}
	if err := checkUnit("mastery ceiling", c.MasteryCeiling); err != nil {
		return err
	}
	if err := checkUnit("structural weight", c.StructuralWeight); err != nil {
		return err
	}
	if c.TempoMin >= c.TempoMax {
		return fmt.Errorf("%w: tempo min %d must be below tempo max %d", ErrInvalidConfig, c.TempoMin, c.TempoMax)
	}
	if len(c.Tempos) == 0 {
		return fmt.Errorf("%w: tempo set must not be empty", ErrInvalidConfig)
	}
	for _, t := range c.Tempos {
		if t < c.TempoMin || t > c.TempoMax {
			return fmt.Errorf("%w: tempo %d outside [%d, %d]", ErrInvalidConfig, t, c.TempoMin, c.TempoMax)
		}
	}
	if c.MaxLevel < 1 {
		return fmt.Errorf("%w: max level %d must be at least 1", ErrInvalidConfig, c.MaxLevel)
	}
	if len(c.Levels) == 0 {
		return fmt.Errorf("%w: level set must not be empty", ErrInvalidConfig)
	}
	for _, n := range c.Levels {
		if n < 1 || n > c.MaxLevel {
			return fmt.Errorf("%w: level %d outside [1, %d]", ErrInvalidConfig, n, c.MaxLevel)
		}
	}
	if c.MaxTempoStep < 0 || c.MaxLevelStep < 0 {
		return fmt.Errorf("%w: rate-limit steps must be >= 0", ErrInvalidConfig)
	}
	if c.CalibrationBins < 2 {
		return fmt.Errorf("%w: calibration bins %d must be at least 2", ErrInvalidConfig, c.CalibrationBins)
	}
	if math.IsNaN(c.EMALambda) || c.EMALambda <= 0 || c.EMALambda > 1 {
		return fmt.Errorf("%w: ema lambda %f out of range (0, 1]", ErrInvalidConfig, c.EMALambda)
	}
	if !finite(c.Feasibility.Min) || !finite(c.Feasibility.Max) || c.Feasibility.Min >= c.Feasibility.Max {
		return fmt.Errorf("%w: feasibility min %f must be below max %f", ErrInvalidConfig, c.Feasibility.Min, c.Feasibility.Max)
	}
	if err := checkAnchor("fast", c.FastAnchor); err != nil {
		return err
	}
	if err := checkAnchor("slow", c.SlowAnchor); err != nil {
		return err
	}
	if c.MenuSize < 1 {
		return fmt.Errorf("%w: menu size %d must be at least 1", ErrInvalidConfig, c.MenuSize)
	}
	s := c.Split
	if s.Center < 0 || s.Easier < 0 || s.Harder < 0 {
		return fmt.Errorf("%w: split probabilities must be >= 0", ErrInvalidConfig)
	}
	if math.Abs(s.Center+s.Easier+s.Harder-1) > splitTolerance {
		return fmt.Errorf("%w: split %.3f/%.3f/%.3f must sum to 1", ErrInvalidConfig, s.Center, s.Easier, s.Harder)
	}
	return nil
}

func (c Config) calibratorConfig() CalibratorConfig {
	return CalibratorConfig{
		TempoMin: c.TempoMin,
		TempoMax: c.TempoMax,
		Bins:     c.CalibrationBins,
		Lambda:   c.EMALambda,
		Prior:    c.Feasibility.Midpoint(),
		Fast:     c.FastAnchor,
		Slow:     c.SlowAnchor,
	}
}

func (c Config) clone() Config {
	c.Tempos = append([]int(nil), c.Tempos...)
	c.Levels = append([]int(nil), c.Levels...)
	return c
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func checkAnchor(name string, a Anchor) error {
	if !finite(a.Seconds) {
		return fmt.Errorf("%w: %s anchor seconds %f must be finite", ErrInvalidConfig, name, a.Seconds)
	}
	if !finite(a.Weight) || a.Weight < 0 {
		return fmt.Errorf("%w: %s anchor weight %f must be finite and >= 0", ErrInvalidConfig, name, a.Weight)
	}
	return nil
}

func checkUnit(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %s %f out of range [0, 1]", ErrInvalidConfig, name, v)
	}
	return nil
}
