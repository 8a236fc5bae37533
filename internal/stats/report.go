package stats

import (
	"context"

	"github.com/verte-zerg/eardrill/internal/adaptive"
	"github.com/verte-zerg/eardrill/internal/model"
)

// Source is the persistence surface a report reads from.
type Source interface {
	ListBouts(ctx context.Context, cfg model.StatsConfig) ([]model.BoutAggregate, error)
	ListLevelAggregates(ctx context.Context, boutIDs []int64) ([]model.LevelAggregate, error)
	LoadCalibration(ctx context.Context) (map[int][]adaptive.Bin, error)
}

// Report contains precomputed data for stats rendering.
type Report struct {
	Bouts         []model.BoutAggregate
	WindowBoutIDs []int64
	LevelsAll     []model.LevelAggregate
	LevelsWindow  []model.LevelAggregate
	Calibration   map[int][]adaptive.Bin
}

// BuildReport loads and prepares data for stats rendering.
func BuildReport(ctx context.Context, src Source, cfg model.StatsConfig) (Report, error) {
	bouts, err := src.ListBouts(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	windowIDs := lastBoutIDs(bouts, cfg.CurveWindow)
	levelsAll, err := src.ListLevelAggregates(ctx, boutIDs(bouts))
	if err != nil {
		return Report{}, err
	}
	levelsWindow, err := src.ListLevelAggregates(ctx, windowIDs)
	if err != nil {
		return Report{}, err
	}
	bins, err := src.LoadCalibration(ctx)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Bouts:         bouts,
		WindowBoutIDs: windowIDs,
		LevelsAll:     levelsAll,
		LevelsWindow:  levelsWindow,
		Calibration:   bins,
	}, nil
}

func boutIDs(bouts []model.BoutAggregate) []int64 {
	ids := make([]int64, len(bouts))
	for i, b := range bouts {
		ids[i] = b.BoutID
	}
	return ids
}

func lastBoutIDs(bouts []model.BoutAggregate, window int) []int64 {
	if window <= 0 || len(bouts) <= window {
		return boutIDs(bouts)
	}
	return boutIDs(bouts[len(bouts)-window:])
}
