package adaptive

import (
	"math"
	"math/rand"
	"testing"
)

func unitPoints(values ...float64) []Point {
	points := make([]Point, len(values))
	for i, v := range values {
		points[i] = Point{Value: v, Weight: 1}
	}
	return points
}

func assertNonIncreasing(t *testing.T, fit []float64) {
	t.Helper()
	for i := 0; i+1 < len(fit); i++ {
		if fit[i] < fit[i+1]-1e-12 {
			t.Fatalf("fit not non-increasing at %d: %v", i, fit)
		}
	}
}

func assertFloats(t *testing.T, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("value %d: expected %v, got %v", i, want, got)
		}
	}
}

func TestFitNonIncreasingPoolsViolators(t *testing.T) {
	assertFloats(t, FitNonIncreasing(unitPoints(1, 3, 2)), []float64{2, 2, 2})
	assertFloats(t, FitNonIncreasing(unitPoints(5, 1, 3)), []float64{5, 2, 2})
	assertFloats(t, FitNonIncreasing(unitPoints(4, 5, 1, 2)), []float64{4.5, 4.5, 1.5, 1.5})
}

func TestFitNonIncreasingWeighted(t *testing.T) {
	fit := FitNonIncreasing([]Point{{Value: 1, Weight: 3}, {Value: 3, Weight: 1}})
	assertFloats(t, fit, []float64{1.5, 1.5})
}

func TestFitNonIncreasingIdempotent(t *testing.T) {
	in := []float64{9, 7.5, 7.5, 3, 1}
	fit := FitNonIncreasing(unitPoints(in...))
	assertFloats(t, fit, in)
	again := FitNonIncreasing(unitPoints(fit...))
	assertFloats(t, again, fit)
}

func TestFitNonIncreasingEdgeCases(t *testing.T) {
	if fit := FitNonIncreasing(nil); len(fit) != 0 {
		t.Fatalf("expected empty fit, got %v", fit)
	}
	assertFloats(t, FitNonIncreasing([]Point{{Value: 7, Weight: 0}}), []float64{7})
	assertFloats(t, FitNonIncreasing([]Point{{Value: 2, Weight: 0}, {Value: 4, Weight: 0}}), []float64{0, 0})
}

func TestFitNonIncreasingRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(20)
		points := make([]Point, n)
		var sumW, sumWV float64
		for i := range points {
			points[i] = Point{Value: rng.Float64() * 10, Weight: 1 + float64(rng.Intn(5))}
			sumW += points[i].Weight
			sumWV += points[i].Weight * points[i].Value
		}
		fit := FitNonIncreasing(points)
		if len(fit) != n {
			t.Fatalf("expected %d fitted values, got %d", n, len(fit))
		}
		assertNonIncreasing(t, fit)

		// Pooling preserves the weighted mean.
		var fitWV float64
		for i, p := range points {
			fitWV += p.Weight * fit[i]
		}
		if math.Abs(fitWV-sumWV) > 1e-6*sumW {
			t.Fatalf("weighted mean changed: %f vs %f", fitWV/sumW, sumWV/sumW)
		}
	}
}
