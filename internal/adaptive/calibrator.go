package adaptive

import (
	"fmt"
	"math"
)

// Anchor pins a boundary bin of the calibration curve.
type Anchor struct {
	Seconds float64 `json:"seconds"`
	Weight  float64 `json:"weight"`
}

// Bin holds the smoothed response time observed around one tempo.
type Bin struct {
	TempoCenter int     `json:"tempo_center"`
	EMASeconds  float64 `json:"ema_seconds"`
	Count       int     `json:"count"`
}

// CurvePoint is one fitted sample of a calibration curve.
type CurvePoint struct {
	Tempo   int
	Seconds float64
}

// CalibratorConfig configures a TempoCalibrator.
type CalibratorConfig struct {
	TempoMin int
	TempoMax int
	Bins     int
	Lambda   float64 // EMA smoothing factor in (0, 1]
	Prior    float64 // initial EMA of every bin
	Fast     Anchor  // applied to the lowest-tempo bin
	Slow     Anchor  // applied to the highest-tempo bin
}

// TempoCalibrator learns expected response seconds versus tempo for one
// difficulty level.
type TempoCalibrator struct {
	cfg  CalibratorConfig
	bins []Bin // ascending by TempoCenter, centers unique
}

// NewTempoCalibrator lays out cfg.Bins evenly spaced tempo centers across
// [TempoMin, TempoMax], each starting at cfg.Prior with no observations.
func NewTempoCalibrator(cfg CalibratorConfig) (*TempoCalibrator, error) {
	if cfg.TempoMin >= cfg.TempoMax {
		return nil, fmt.Errorf("%w: tempo min %d must be below tempo max %d", ErrInvalidConfig, cfg.TempoMin, cfg.TempoMax)
	}
	if cfg.Bins < 2 {
		return nil, fmt.Errorf("%w: calibration bins %d must be at least 2", ErrInvalidConfig, cfg.Bins)
	}
	if math.IsNaN(cfg.Lambda) || cfg.Lambda <= 0 || cfg.Lambda > 1 {
		return nil, fmt.Errorf("%w: ema lambda %f out of range (0, 1]", ErrInvalidConfig, cfg.Lambda)
	}
	if !finite(cfg.Prior) {
		return nil, fmt.Errorf("%w: prior seconds %f must be finite", ErrInvalidConfig, cfg.Prior)
	}
	if err := checkAnchor("fast", cfg.Fast); err != nil {
		return nil, err
	}
	if err := checkAnchor("slow", cfg.Slow); err != nil {
		return nil, err
	}
	c := &TempoCalibrator{cfg: cfg}
	span := float64(cfg.TempoMax - cfg.TempoMin)
	for i := 0; i < cfg.Bins; i++ {
		center := int(math.Round(float64(cfg.TempoMin) + float64(i)*span/float64(cfg.Bins-1)))
		if n := len(c.bins); n > 0 && c.bins[n-1].TempoCenter == center {
			continue
		}
		c.bins = append(c.bins, Bin{TempoCenter: center, EMASeconds: cfg.Prior})
	}
	return c, nil
}

// Update folds one observed response time into the bin nearest tempo.
func (c *TempoCalibrator) Update(tempo int, observedSeconds float64) {
	b := &c.bins[c.nearest(tempo)]
	lam := c.cfg.Lambda
	b.EMASeconds = (1-lam)*b.EMASeconds + lam*observedSeconds
	b.Count++
}

// nearest returns the index of the bin whose center is closest to tempo.
// Ties go to the lower center.
func (c *TempoCalibrator) nearest(tempo int) int {
	best := 0
	bestDist := absInt(c.bins[0].TempoCenter - tempo)
	for i := 1; i < len(c.bins); i++ {
		if d := absInt(c.bins[i].TempoCenter - tempo); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Curve returns the anchored, monotone (non-increasing) fit across all bins.
func (c *TempoCalibrator) Curve() []CurvePoint {
	points := make([]Point, len(c.bins))
	for i, b := range c.bins {
		points[i] = Point{Value: b.EMASeconds, Weight: float64(max(1, b.Count))}
	}
	first, last := 0, len(points)-1
	points[first].Value = math.Min(points[first].Value, c.cfg.Fast.Seconds)
	points[first].Weight = math.Max(points[first].Weight, c.cfg.Fast.Weight)
	points[last].Value = math.Max(points[last].Value, c.cfg.Slow.Seconds)
	points[last].Weight = math.Max(points[last].Weight, c.cfg.Slow.Weight)

	fitted := FitNonIncreasing(points)
	curve := make([]CurvePoint, len(c.bins))
	for i, b := range c.bins {
		curve[i] = CurvePoint{Tempo: b.TempoCenter, Seconds: fitted[i]}
	}
	return curve
}

// PredictSeconds returns the expected response time at tempo. The curve is
// refit on every call; tempos outside the bin range clamp to the ends.
func (c *TempoCalibrator) PredictSeconds(tempo int) float64 {
	curve := c.Curve()
	if tempo <= curve[0].Tempo {
		return curve[0].Seconds
	}
	if tempo >= curve[len(curve)-1].Tempo {
		return curve[len(curve)-1].Seconds
	}
	for i := 0; i < len(curve)-1; i++ {
		lo, hi := curve[i], curve[i+1]
		if tempo >= lo.Tempo && tempo <= hi.Tempo {
			a := float64(tempo-lo.Tempo) / float64(hi.Tempo-lo.Tempo)
			return (1-a)*lo.Seconds + a*hi.Seconds
		}
	}
	return curve[len(curve)-1].Seconds
}

// Bins returns a copy of the calibration bins in ascending tempo order.
func (c *TempoCalibrator) Bins() []Bin {
	out := make([]Bin, len(c.bins))
	copy(out, c.bins)
	return out
}

// Restore replaces bin contents with previously saved bins. The saved
// centers must match this calibrator's layout exactly.
func (c *TempoCalibrator) Restore(bins []Bin) error {
	if len(bins) != len(c.bins) {
		return fmt.Errorf("%w: got %d bins, want %d", ErrBinLayoutMismatch, len(bins), len(c.bins))
	}
	for i, b := range bins {
		if b.TempoCenter != c.bins[i].TempoCenter {
			return fmt.Errorf("%w: bin %d center %d, want %d", ErrBinLayoutMismatch, i, b.TempoCenter, c.bins[i].TempoCenter)
		}
		if b.Count < 0 {
			return fmt.Errorf("%w: bin %d has negative count", ErrBinLayoutMismatch, i)
		}
	}
	copy(c.bins, bins)
	return nil
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
