package stats

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/verte-zerg/eardrill/internal/adaptive"
)

// Calibration holds the refit curve of every stored level whose bins still
// match the configured layout. Stale lists the levels that had to be
// skipped, in ascending order.
type Calibration struct {
	Curves map[int][]adaptive.CurvePoint
	Stale  []int
}

// FitCurves rebuilds the fitted calibration curve of every stored level.
// Levels whose stored bins no longer match cfg (changed bins or tempo
// range) or that fall outside 1..MaxLevel are reported as stale.
func FitCurves(cfg adaptive.Config, bins map[int][]adaptive.Bin) (Calibration, error) {
	sched, err := adaptive.New(cfg)
	if err != nil {
		return Calibration{}, err
	}
	levels := make([]int, 0, len(bins))
	for level := range bins {
		levels = append(levels, level)
	}
	sort.Ints(levels)
	out := Calibration{Curves: make(map[int][]adaptive.CurvePoint, len(bins))}
	for _, level := range levels {
		c := sched.Calibrator(level)
		if c == nil {
			out.Stale = append(out.Stale, level)
			continue
		}
		if err := c.Restore(bins[level]); err != nil {
			if errors.Is(err, adaptive.ErrBinLayoutMismatch) {
				out.Stale = append(out.Stale, level)
				continue
			}
			return Calibration{}, fmt.Errorf("level %d: %w", level, err)
		}
		out.Curves[level] = c.Curve()
	}
	return out, nil
}

// RenderCalibration prints the fitted seconds-versus-tempo curve per level,
// followed by a note for each stale level.
func RenderCalibration(w io.Writer, calib Calibration, observations map[int]int, width int, useColor bool) error {
	curves := calib.Curves
	if len(curves) == 0 && len(calib.Stale) == 0 {
		_, err := fmt.Fprintln(w, "No calibration data.")
		return err
	}
	levels := make([]int, 0, len(curves))
	for level := range curves {
		levels = append(levels, level)
	}
	sort.Ints(levels)
	for _, level := range levels {
		curve := curves[level]
		labels := make([]string, len(curve))
		values := make([]float64, len(curve))
		for i, p := range curve {
			labels[i] = fmt.Sprintf("%3d bpm", p.Tempo)
			values[i] = p.Seconds
		}
		title := fmt.Sprintf("Level %d (%d observations)", level, observations[level])
		if err := PlotBars(w, title, labels, values, width, useColor); err != nil {
			return err
		}
	}
	for _, level := range calib.Stale {
		if _, err := fmt.Fprintf(w, "Level %d: stale calibration (%d observations, bin layout changed since it was saved)\n", level, observations[level]); err != nil {
			return err
		}
	}
	return nil
}

// ObservationCounts sums the bin observations of each level.
func ObservationCounts(bins map[int][]adaptive.Bin) map[int]int {
	out := make(map[int]int, len(bins))
	for level, levelBins := range bins {
		for _, b := range levelBins {
			out[level] += b.Count
		}
	}
	return out
}
