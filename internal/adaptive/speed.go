package adaptive

// Default feasibility boundaries in seconds.
const (
	TMin = 1.0 // full credit at or below
	TMax = 9.0 // zero credit at or above
)

// DefaultBounds are the feasibility boundaries used by Credit and SecondsFromCredit.
var DefaultBounds = Bounds{Min: TMin, Max: TMax}

// Bounds maps response latency onto a [0,1] speed credit.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Credit returns 1 at or below Min, 0 at or above Max and interpolates
// linearly in between.
func (b Bounds) Credit(seconds float64) float64 {
	if seconds <= b.Min {
		return 1.0
	}
	if seconds >= b.Max {
		return 0.0
	}
	return 1.0 - (seconds-b.Min)/(b.Max-b.Min)
}

// SecondsFromCredit is the approximate inverse of Credit. It is exact only
// for seconds in [Min, Max].
func (b Bounds) SecondsFromCredit(credit float64) float64 {
	credit = clip01(credit)
	return b.Min + (1.0-credit)*(b.Max-b.Min)
}

// Contains reports whether seconds lies within [Min, Max].
func (b Bounds) Contains(seconds float64) bool {
	return seconds >= b.Min && seconds <= b.Max
}

// Midpoint returns the neutral prior between the two boundaries.
func (b Bounds) Midpoint() float64 {
	return (b.Min + b.Max) / 2
}

// Credit converts seconds to speed credit using DefaultBounds.
func Credit(seconds float64) float64 {
	return DefaultBounds.Credit(seconds)
}

// SecondsFromCredit converts credit back to seconds using DefaultBounds.
func SecondsFromCredit(credit float64) float64 {
	return DefaultBounds.SecondsFromCredit(credit)
}

func clip01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// normalize maps v from [lo, hi] onto [0, 1]. Equal bounds yield 0.
func normalize(v, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	return clip01((v - lo) / (hi - lo))
}
