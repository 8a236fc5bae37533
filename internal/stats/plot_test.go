package stats

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestPlotSeries(t *testing.T) {
	var buf bytes.Buffer
	err := PlotSeries(&buf, "Test Plot", []Series{
		{Name: "A", Values: []float64{0.1, 0.4, 0.9, 0.4, 0.1}},
		{Name: "B", Values: []float64{0.2, 0.2, 0.5, 0.7, 0.8}},
		{Name: "empty"},
	}, PlotOptions{Width: 12, Height: 4, Min: 0, Max: 1})
	if err != nil {
		t.Fatalf("PlotSeries failed: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "Test Plot\n") {
		t.Fatalf("expected title first, got %q", out)
	}
	if !strings.Contains(out, "1.00"+axisSeparator) || !strings.Contains(out, "0.00"+axisSeparator) {
		t.Fatalf("expected fixed axis labels in output:\n%s", out)
	}
	if !strings.Contains(out, "Legend: A last=0.100  B last=0.800") {
		t.Fatalf("expected legend without empty series:\n%s", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1+4+1 {
		t.Fatalf("expected 6 lines, got %d", len(lines))
	}
	for _, l := range lines[1:5] {
		if got := runewidth.StringWidth(l); got != axisLabelWidth+runewidth.StringWidth(axisSeparator)+12 {
			t.Fatalf("unexpected row width %d: %q", got, l)
		}
	}
}

func TestPlotSeriesEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := PlotSeries(&buf, "none", []Series{{Name: "A"}}, PlotOptions{Width: 10}); err != nil {
		t.Fatalf("PlotSeries failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestPlotBars(t *testing.T) {
	var buf bytes.Buffer
	if err := PlotBars(&buf, "Bars", []string{"a", "bb"}, []float64{1, 2}, 40, false); err != nil {
		t.Fatalf("PlotBars failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", buf.String())
	}
	short := strings.Count(lines[1], string(barRune))
	long := strings.Count(lines[2], string(barRune))
	if long == 0 || short != int(math.Round(float64(long)/2)) {
		t.Fatalf("expected half-length bar, got %d and %d", short, long)
	}
	if !strings.HasSuffix(lines[2], " 2.00") {
		t.Fatalf("expected value suffix, got %q", lines[2])
	}
}

func TestPlotWidthFor(t *testing.T) {
	axisWidth := axisLabelWidth + runewidth.StringWidth(axisSeparator)
	if got := PlotWidthFor(80); got != 80-axisWidth {
		t.Fatalf("expected width %d, got %d", 80-axisWidth, got)
	}
	if got := PlotWidthFor(0); got != minPlotWidth {
		t.Fatalf("expected min width %d, got %d", minPlotWidth, got)
	}
}

func TestResample(t *testing.T) {
	if got := resample([]float64{1, 3}, 3); got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected stretch: %v", got)
	}
	if got := resample([]float64{1, 3, 5, 7}, 2); got[0] != 2 || got[1] != 6 {
		t.Fatalf("unexpected shrink: %v", got)
	}
}
