package adaptive

// Point is one weighted observation for FitNonIncreasing, ordered by the
// independent variable.
type Point struct {
	Value  float64
	Weight float64
}

type block struct {
	sumWeight float64
	sumValue  float64 // weighted
	size      int
}

func (b block) mean() float64 {
	if b.sumWeight == 0 {
		return 0
	}
	return b.sumValue / b.sumWeight
}

// FitNonIncreasing returns the weighted least-squares non-increasing fit of
// points using pool-adjacent-violators. The result has the same length as
// points and satisfies fit[i] >= fit[i+1].
func FitNonIncreasing(points []Point) []float64 {
	if len(points) == 0 {
		return nil
	}
	blocks := make([]block, 0, len(points))
	for _, p := range points {
		blocks = append(blocks, block{sumWeight: p.Weight, sumValue: p.Value * p.Weight, size: 1})
	}
	if len(blocks) == 1 {
		return []float64{points[0].Value}
	}

	i := 0
	for i < len(blocks)-1 {
		if blocks[i].mean() >= blocks[i+1].mean() {
			i++
			continue
		}
		// Pool the violating pair and re-check the new left boundary.
		blocks[i].sumWeight += blocks[i+1].sumWeight
		blocks[i].sumValue += blocks[i+1].sumValue
		blocks[i].size += blocks[i+1].size
		blocks = append(blocks[:i+1], blocks[i+2:]...)
		if i > 0 {
			i--
		}
	}

	fitted := make([]float64, 0, len(points))
	for _, b := range blocks {
		m := b.mean()
		for k := 0; k < b.size; k++ {
			fitted = append(fitted, m)
		}
	}
	return fitted
}
