// Package stats contains statistics calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/verte-zerg/eardrill/internal/model"
)

const sparkChars = " .:-=+*#%@"

// BoutMetrics returns the average item score and the accuracy of a bout.
func BoutMetrics(items, correct int, score float64) (avg, accuracy float64) {
	if items <= 0 {
		return 0, 0
	}
	return score / float64(items), float64(correct) / float64(items)
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		den := float64(i + 1)
		if i >= window {
			sum -= values[i-window]
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := values[0], values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = min(max(idx, 0), len(sparkChars)-1)
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderSummary prints a summary of the listed bouts.
func RenderSummary(w io.Writer, bouts []model.BoutAggregate) error {
	if len(bouts) == 0 {
		_, err := fmt.Fprintln(w, "No bouts found.")
		return err
	}
	var items, correct int
	var score, best float64
	for _, b := range bouts {
		items += b.Items
		correct += b.Correct
		score += b.CumulativeScore
		if avg, _ := BoutMetrics(b.Items, b.Correct, b.CumulativeScore); avg > best {
			best = avg
		}
	}
	avg, acc := BoutMetrics(items, correct, score)
	averages := make([]float64, len(bouts))
	for i, b := range bouts {
		averages[i], _ = BoutMetrics(b.Items, b.Correct, b.CumulativeScore)
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Bouts: %d", len(bouts)),
		fmt.Sprintf("Items: %d", items),
		fmt.Sprintf("Avg Score: %.3f", avg),
		fmt.Sprintf("Best Bout: %.3f", best),
		fmt.Sprintf("Accuracy: %.2f%%", acc*100),
		fmt.Sprintf("Trend: %s", Sparkline(averages)),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderScoreCurve plots smoothed per-bout average score and accuracy.
func RenderScoreCurve(w io.Writer, bouts []model.BoutAggregate, window, totalWidth, height int, useColor bool) error {
	if len(bouts) == 0 {
		return nil
	}
	scores := make([]float64, len(bouts))
	accs := make([]float64, len(bouts))
	for i, b := range bouts {
		scores[i], accs[i] = BoutMetrics(b.Items, b.Correct, b.CumulativeScore)
	}
	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	return PlotSeries(w, "Learning Curve", []Series{
		{Name: "Score", Values: MovingAverage(scores, window)},
		{Name: "Accuracy", Values: MovingAverage(accs, window)},
	}, PlotOptions{Width: width, Height: height, Color: useColor})
}

// RenderLevelTable prints per-level aggregates, weakest level first.
func RenderLevelTable(w io.Writer, title string, aggs []model.LevelAggregate) error {
	if len(aggs) == 0 {
		_, err := fmt.Fprintln(w, "No trials found.")
		return err
	}
	rows := make([]model.LevelAggregate, len(aggs))
	copy(rows, aggs)
	sortWeakestFirst(rows)

	if title != "" {
		if _, err := fmt.Fprintln(w, title); err != nil {
			return err
		}
	}
	tableRows := make([][]string, 0, len(rows))
	for _, r := range rows {
		tableRows = append(tableRows, LevelRow(r))
	}
	for _, line := range formatTable(LevelHeaders, tableRows, map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// LevelHeaders are the column titles of a per-level table.
var LevelHeaders = []string{"Notes", "Items", "Accuracy", "Avg Score", "Avg Secs", "Avg Pred", "Tempos"}

// LevelRow formats one per-level aggregate as table cells.
func LevelRow(agg model.LevelAggregate) []string {
	acc, score, secs, pred := levelMeans(agg)
	return []string{
		fmt.Sprintf("%d", agg.Level),
		fmt.Sprintf("%d", agg.Items),
		fmt.Sprintf("%.1f%%", acc*100),
		fmt.Sprintf("%.3f", score),
		fmt.Sprintf("%.2f", secs),
		fmt.Sprintf("%.2f", pred),
		fmt.Sprintf("%d-%d", agg.MinTempo, agg.MaxTempo),
	}
}

func levelMeans(agg model.LevelAggregate) (acc, score, secs, pred float64) {
	if agg.Items == 0 {
		return 0, 0, 0, 0
	}
	n := float64(agg.Items)
	return float64(agg.Correct) / n, agg.ScoreSum / n, agg.SecondsSum / n, agg.PredictedSum / n
}

func sortWeakestFirst(aggs []model.LevelAggregate) {
	sort.SliceStable(aggs, func(i, j int) bool {
		_, si, _, _ := levelMeans(aggs[i])
		_, sj, _, _ := levelMeans(aggs[j])
		if si == sj {
			return aggs[i].Level < aggs[j].Level
		}
		return si < sj
	})
}
