package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Series represents a named data series for plotting.
type Series struct {
	Name   string
	Values []float64
}

// PlotOptions sizes and scales a plot.
type PlotOptions struct {
	Width  int  // plot columns; 0 fits the terminal
	Height int  // plot rows; 0 uses the default height
	Color  bool // force ANSI color even when w is not a terminal
	// Min and Max fix the value axis. When equal the axis spans the data.
	Min, Max float64
}

const (
	defaultPlotHeight   = 8
	minPlotWidth        = 10
	axisLabelWidth      = 6
	axisSeparator       = " │ "
	barRune             = '█'
	colorReset          = "\x1b[0m"
	terminalWidthBackup = 80
)

var colorPalette = []string{"\x1b[36m", "\x1b[35m", "\x1b[33m", "\x1b[32m", "\x1b[34m"}

// braille dot bits indexed by [row][col] inside one 2x4 cell.
var brailleBits = [4][2]uint8{{0x01, 0x08}, {0x02, 0x10}, {0x04, 0x20}, {0x40, 0x80}}

// PlotSeries renders a braille line plot of the series on a shared axis.
func PlotSeries(w io.Writer, title string, series []Series, opts PlotOptions) error {
	kept := make([]Series, 0, len(series))
	for _, s := range series {
		if len(s.Values) > 0 {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	width, height := plotSize(opts)
	lo, hi := opts.Min, opts.Max
	if lo == hi {
		lo, hi = valueRange(kept)
	}

	grid := make([][]uint8, height)
	owner := make([][]int, height)
	for y := range grid {
		grid[y] = make([]uint8, width)
		owner[y] = make([]int, width)
		for x := range owner[y] {
			owner[y][x] = -1
		}
	}
	dotRows := height * 4
	for si, s := range kept {
		prevX, prevY := -1, -1
		for x, v := range resample(s.Values, width) {
			px, py := x*2, valueToDot(v, lo, hi, dotRows)
			if prevX < 0 {
				prevX, prevY = px, py
			}
			line(prevX, prevY, px, py, func(dx, dy int) {
				cy, cx := dy/4, dx/2
				if cy < 0 || cy >= height || cx < 0 || cx >= width {
					return
				}
				grid[cy][cx] |= brailleBits[dy%4][dx%2]
				if owner[cy][cx] < 0 {
					owner[cy][cx] = si
				}
			})
			prevX, prevY = px, py
		}
	}

	color := useColor(w, opts.Color)
	var b strings.Builder
	if title != "" {
		b.WriteString(title + "\n")
	}
	for y := 0; y < height; y++ {
		label := ""
		switch y {
		case 0:
			label = formatAxis(hi)
		case height - 1:
			label = formatAxis(lo)
		}
		b.WriteString(runewidth.FillLeft(label, axisLabelWidth) + axisSeparator)
		for x := 0; x < width; x++ {
			ch := rune(0x2800 + int(grid[y][x]))
			if color && owner[y][x] >= 0 {
				b.WriteString(colorPalette[owner[y][x]%len(colorPalette)] + string(ch) + colorReset)
				continue
			}
			b.WriteRune(ch)
		}
		b.WriteByte('\n')
	}
	legend := make([]string, len(kept))
	for i, s := range kept {
		legend[i] = fmt.Sprintf("%s last=%.3f", s.Name, s.Values[len(s.Values)-1])
		if color {
			legend[i] = colorPalette[i%len(colorPalette)] + legend[i] + colorReset
		}
	}
	b.WriteString("Legend: " + strings.Join(legend, "  ") + "\n\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// PlotBars renders one horizontal bar per label, scaled to the largest value.
func PlotBars(w io.Writer, title string, labels []string, values []float64, width int, forceColor bool) error {
	if len(labels) == 0 || len(labels) != len(values) {
		return nil
	}
	labelWidth := 0
	maxVal := 0.0
	for i, l := range labels {
		labelWidth = max(labelWidth, runewidth.StringWidth(l))
		maxVal = math.Max(maxVal, values[i])
	}
	if width <= 0 {
		width = terminalWidth()
	}
	barWidth := max(width-labelWidth-runewidth.StringWidth(axisSeparator)-8, minPlotWidth)
	color := useColor(w, forceColor)

	var b strings.Builder
	if title != "" {
		b.WriteString(title + "\n")
	}
	for i, l := range labels {
		n := 0
		if maxVal > 0 {
			n = int(math.Round(values[i] / maxVal * float64(barWidth)))
		}
		bar := strings.Repeat(string(barRune), max(n, 0))
		if color {
			bar = colorPalette[0] + bar + colorReset
		}
		b.WriteString(fmt.Sprintf("%s%s%s %.2f\n", runewidth.FillRight(l, labelWidth), axisSeparator, bar, values[i]))
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// PlotWidthFor computes a plot width that fits within the total available width.
func PlotWidthFor(totalWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	return max(totalWidth-axisLabelWidth-runewidth.StringWidth(axisSeparator), minPlotWidth)
}

func plotSize(opts PlotOptions) (width, height int) {
	width, height = opts.Width, opts.Height
	if width <= 0 {
		width = PlotWidthFor(terminalWidth())
	}
	if height <= 0 {
		height = defaultPlotHeight
	}
	return max(width, minPlotWidth), height
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func useColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

func formatAxis(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func valueRange(series []Series) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s.Values {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if hi-lo < 1e-9 {
		lo--
		hi++
	}
	return lo, hi
}

// valueToDot maps v onto dot rows, row 0 at the top.
func valueToDot(v, lo, hi float64, rows int) int {
	if rows <= 1 {
		return 0
	}
	pos := (v - lo) / (hi - lo)
	row := int(math.Round((1 - pos) * float64(rows-1)))
	return min(max(row, 0), rows-1)
}

// resample stretches or averages values onto width columns.
func resample(values []float64, width int) []float64 {
	out := make([]float64, width)
	switch {
	case len(values) == 1 || width == 1:
		for i := range out {
			out[i] = values[0]
		}
	case len(values) >= width:
		for i := range out {
			start := i * len(values) / width
			end := max((i+1)*len(values)/width, start+1)
			var sum float64
			for _, v := range values[start:end] {
				sum += v
			}
			out[i] = sum / float64(end-start)
		}
	default:
		for i := range out {
			pos := float64(i) * float64(len(values)-1) / float64(width-1)
			idx := min(int(pos), len(values)-2)
			frac := pos - float64(idx)
			out[i] = values[idx]*(1-frac) + values[idx+1]*frac
		}
	}
	return out
}

// line walks the Bresenham segment from (x0, y0) to (x1, y1).
func line(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx, dy := absInt(x1-x0), -absInt(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	errAcc := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * errAcc
		if e2 >= dy {
			errAcc += dy
			x0 += sx
		}
		if e2 <= dx {
			errAcc += dx
			y0 += sy
		}
	}
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
