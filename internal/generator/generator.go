// Package generator builds scale-degree sequences for drill items.
package generator

import (
	"math/rand"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	minDegree        = 1
	maxDegree        = 7
	recentMemorySize = 16
	maxResampleTries = 20
)

// stepWeights favours stepwise motion; keys are diatonic steps.
var stepWeights = map[int]float64{
	-7: 0.05, -6: 0.06, -5: 0.12, -4: 0.18, -3: 0.22, -2: 0.45, -1: 1.00,
	0: 0.10,
	1: 1.00, 2: 0.45, 3: 0.22, 4: 0.18, 5: 0.12, 6: 0.06, 7: 0.05,
}

// Generator produces randomized degree sequences.
type Generator struct {
	rnd    *rand.Rand
	recent [][]int
}

// New returns a Generator. A zero seed uses the current time.
func New(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Sequence returns n scale degrees in 1..7 as a melodic random walk. It
// avoids repeating any of the recently generated sequences when it can.
func (g *Generator) Sequence(n int) []int {
	if n <= 0 {
		return nil
	}
	var seq []int
	for try := 0; try < maxResampleTries; try++ {
		seq = g.walk(n)
		if !g.seenRecently(seq) {
			break
		}
	}
	g.remember(seq)
	return seq
}

func (g *Generator) walk(n int) []int {
	seq := make([]int, 0, n)
	seq = append(seq, minDegree+g.rnd.Intn(maxDegree))
	for len(seq) < n {
		prev := seq[len(seq)-1]
		seq = append(seq, prev+g.step(prev))
	}
	return seq
}

// step picks a weighted diatonic step that keeps the walk inside 1..7.
func (g *Generator) step(from int) int {
	steps := make([]int, 0, len(stepWeights))
	total := 0.0
	for k, w := range stepWeights {
		to := from + k
		if to < minDegree || to > maxDegree {
			continue
		}
		steps = append(steps, k)
		total += w
	}
	// Map iteration order is random; sort so a seed reproduces its sequence.
	slices.Sort(steps)
	r := g.rnd.Float64() * total
	acc := 0.0
	for _, k := range steps {
		acc += stepWeights[k]
		if r <= acc {
			return k
		}
	}
	return steps[len(steps)-1]
}

func (g *Generator) seenRecently(seq []int) bool {
	for _, prev := range g.recent {
		if slices.Equal(prev, seq) {
			return true
		}
	}
	return false
}

func (g *Generator) remember(seq []int) {
	g.recent = append(g.recent, seq)
	if len(g.recent) > recentMemorySize {
		g.recent = g.recent[len(g.recent)-recentMemorySize:]
	}
}

// FormatDegrees renders degrees separated by spaces, e.g. "1 3 2".
func FormatDegrees(degrees []int) string {
	parts := make([]string, len(degrees))
	for i, d := range degrees {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, " ")
}

// ParseDegrees extracts the degree digits 1..7 typed by the trainee,
// ignoring separators.
func ParseDegrees(input string) []int {
	var out []int
	for _, r := range input {
		if r >= '1' && r <= '7' {
			out = append(out, int(r-'0'))
		}
	}
	return out
}
