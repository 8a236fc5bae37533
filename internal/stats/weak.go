package stats

import "github.com/verte-zerg/eardrill/internal/model"

// WeakestLevels returns up to top levels with the lowest mean item score.
// Levels without items are ignored; top <= 0 returns all of them.
func WeakestLevels(aggs []model.LevelAggregate, top int) []int {
	candidates := make([]model.LevelAggregate, 0, len(aggs))
	for _, agg := range aggs {
		if agg.Items > 0 {
			candidates = append(candidates, agg)
		}
	}
	sortWeakestFirst(candidates)
	if top <= 0 || top > len(candidates) {
		top = len(candidates)
	}
	out := make([]int, top)
	for i := range out {
		out[i] = candidates[i].Level
	}
	return out
}
