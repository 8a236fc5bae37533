// Package sim drives a scheduler with a simulated trainee.
package sim

import (
	"context"
	"math"
	"math/rand"

	"github.com/verte-zerg/eardrill/internal/adaptive"
)

// Trainee models response time as a linear function of level and tempo
// plus uniform noise.
type Trainee struct {
	BaseSeconds float64 // response time of a single note at RefTempo
	PerNote     float64 // seconds added per extra note
	PerBPM      float64 // seconds added per BPM above RefTempo
	RefTempo    int
	Noise       float64 // half-width of the uniform noise
	ErrorRate   float64 // chance of a wrong answer per note
	Floor       float64 // minimum response time
}

// DefaultTrainee returns a trainee that slows slightly with tempo and length.
func DefaultTrainee() Trainee {
	return Trainee{
		BaseSeconds: 1.2,
		PerNote:     0.1,
		PerBPM:      0.005,
		RefTempo:    80,
		Noise:       0.15,
		Floor:       0.7,
	}
}

// Respond draws one answer for the candidate.
func (t Trainee) Respond(c adaptive.Candidate, rng *rand.Rand) (correct bool, seconds float64) {
	seconds = t.BaseSeconds + t.PerNote*float64(c.Level-1) + t.PerBPM*float64(c.Tempo-t.RefTempo)
	if t.Noise > 0 {
		seconds += (rng.Float64()*2 - 1) * t.Noise
	}
	seconds = math.Max(seconds, t.Floor)
	pCorrect := math.Pow(1-clamp01(t.ErrorRate), float64(max(c.Level, 1)))
	return rng.Float64() < pCorrect, seconds
}

// Step is one simulated item.
type Step struct {
	Candidate adaptive.Candidate
	Correct   bool
	Seconds   float64
	Score     float64
	Bout      adaptive.BoutStats
}

// Drill is the scheduler surface the simulation needs.
type Drill interface {
	Next() adaptive.Candidate
	ItemScore(correct bool, observedSeconds float64) float64
	Feedback(correct bool, observedSeconds float64)
	Update() adaptive.BoutStats
}

// Run presents items candidates from d to the trainee and feeds back each
// answer. It stops early when ctx is done.
func Run(ctx context.Context, d Drill, t Trainee, items int, rng *rand.Rand) []Step {
	steps := make([]Step, 0, max(items, 0))
	for i := 0; i < items; i++ {
		if ctx.Err() != nil {
			break
		}
		c := d.Next()
		correct, seconds := t.Respond(c, rng)
		score := d.ItemScore(correct, seconds)
		d.Feedback(correct, seconds)
		steps = append(steps, Step{
			Candidate: c,
			Correct:   correct,
			Seconds:   seconds,
			Score:     score,
			Bout:      d.Update(),
		})
	}
	return steps
}

func clamp01(x float64) float64 {
	return math.Min(math.Max(x, 0), 1)
}
