package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/verte-zerg/eardrill/internal/adaptive"
	"github.com/verte-zerg/eardrill/internal/config"
	"github.com/verte-zerg/eardrill/internal/model"
)

var drill = defaultDrillConfig()

func defaultDrillConfig() model.DrillConfig {
	d := adaptive.DefaultConfig()
	return model.DrillConfig{
		Target:           d.TargetFitness,
		Mastery:          d.MasteryCeiling,
		StructuralWeight: d.StructuralWeight,
		Tempos:           d.Tempos,
		TempoMin:         d.TempoMin,
		TempoMax:         d.TempoMax,
		MaxLevel:         d.MaxLevel,
		Levels:           d.Levels,
		MaxBPMStep:       d.MaxTempoStep,
		MaxLevelStep:     d.MaxLevelStep,
		Bins:             d.CalibrationBins,
		EMALambda:        d.EMALambda,
		MenuSize:         d.MenuSize,
		Items:            defaultItems,
		FastAnchor:       d.FastAnchor.Seconds,
		FastWeight:       d.FastAnchor.Weight,
		SlowAnchor:       d.SlowAnchor.Seconds,
		SlowWeight:       d.SlowAnchor.Weight,
		FeasibleMin:      d.Feasibility.Min,
		FeasibleMax:      d.Feasibility.Max,
		Persist:          true,
	}
}

// registerDrillFlags binds scheduling flags as persistent flags so every
// subcommand resolves the same drill settings.
func registerDrillFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.Float64Var(&drill.Target, "target", drill.Target, "target fitness (0-1)")
	f.Float64Var(&drill.Mastery, "mastery", drill.Mastery, "mastery ceiling p* (0-1)")
	f.Float64Var(&drill.StructuralWeight, "structural-weight", drill.StructuralWeight, "weight of structure vs speed (0-1)")
	f.IntSliceVar(&drill.Tempos, "tempos", drill.Tempos, "active tempo set in BPM")
	f.IntVar(&drill.TempoMin, "tempo-min", drill.TempoMin, "lowest tempo in BPM")
	f.IntVar(&drill.TempoMax, "tempo-max", drill.TempoMax, "highest tempo in BPM")
	f.IntVar(&drill.MaxLevel, "max-level", drill.MaxLevel, "highest notes-per-item level")
	f.IntSliceVar(&drill.Levels, "levels", drill.Levels, "allowed notes-per-item levels")
	f.IntVar(&drill.MaxBPMStep, "max-bpm-step", drill.MaxBPMStep, "largest tempo change between items")
	f.IntVar(&drill.MaxLevelStep, "max-level-step", drill.MaxLevelStep, "largest level change between items")
	f.IntVar(&drill.MenuSize, "menu-size", drill.MenuSize, "candidates kept closest to the target")
	f.IntVar(&drill.Items, "items", drill.Items, "items per bout")
	f.Int64Var(&drill.Seed, "seed", 0, "random seed (0 = time based)")
	f.IntVar(&drill.Bins, "bins", drill.Bins, "calibration bins per level")
	f.Float64Var(&drill.EMALambda, "ema-lambda", drill.EMALambda, "calibration EMA smoothing (0-1]")
	f.Float64Var(&drill.FastAnchor, "fast-anchor", drill.FastAnchor, "anchor seconds at the lowest tempo bin")
	f.Float64Var(&drill.FastWeight, "fast-weight", drill.FastWeight, "anchor weight at the lowest tempo bin")
	f.Float64Var(&drill.SlowAnchor, "slow-anchor", drill.SlowAnchor, "anchor seconds at the highest tempo bin")
	f.Float64Var(&drill.SlowWeight, "slow-weight", drill.SlowWeight, "anchor weight at the highest tempo bin")
	f.Float64Var(&drill.FeasibleMin, "t-min", drill.FeasibleMin, "fastest feasible response in seconds")
	f.Float64Var(&drill.FeasibleMax, "t-max", drill.FeasibleMax, "slowest feasible response in seconds")
	f.BoolVar(&drill.Persist, "persist", drill.Persist, "restore and save calibration across runs")
}

// resolveDrillConfig layers the config file under explicitly set flags.
func resolveDrillConfig(cmd *cobra.Command, fileCfg config.FileConfig) model.DrillConfig {
	d, c := fileCfg.Drill, fileCfg.Calibration
	applyFloatConfig(cmd, "target", &drill.Target, d.Target)
	applyFloatConfig(cmd, "mastery", &drill.Mastery, d.Mastery)
	applyFloatConfig(cmd, "structural-weight", &drill.StructuralWeight, d.StructuralWeight)
	applyIntsConfig(cmd, "tempos", &drill.Tempos, d.Tempos)
	applyIntConfig(cmd, "tempo-min", &drill.TempoMin, d.TempoMin)
	applyIntConfig(cmd, "tempo-max", &drill.TempoMax, d.TempoMax)
	applyIntConfig(cmd, "max-level", &drill.MaxLevel, d.MaxLevel)
	applyIntsConfig(cmd, "levels", &drill.Levels, d.Levels)
	applyIntConfig(cmd, "max-bpm-step", &drill.MaxBPMStep, d.MaxBPMStep)
	applyIntConfig(cmd, "max-level-step", &drill.MaxLevelStep, d.MaxLevelStep)
	applyIntConfig(cmd, "menu-size", &drill.MenuSize, d.MenuSize)
	applyIntConfig(cmd, "items", &drill.Items, d.Items)
	applyInt64Config(cmd, "seed", &drill.Seed, d.Seed)
	applyIntConfig(cmd, "bins", &drill.Bins, c.Bins)
	applyFloatConfig(cmd, "ema-lambda", &drill.EMALambda, c.EMALambda)
	applyFloatConfig(cmd, "fast-anchor", &drill.FastAnchor, c.FastAnchor)
	applyFloatConfig(cmd, "fast-weight", &drill.FastWeight, c.FastWeight)
	applyFloatConfig(cmd, "slow-anchor", &drill.SlowAnchor, c.SlowAnchor)
	applyFloatConfig(cmd, "slow-weight", &drill.SlowWeight, c.SlowWeight)
	applyFloatConfig(cmd, "t-min", &drill.FeasibleMin, c.FeasibleMin)
	applyFloatConfig(cmd, "t-max", &drill.FeasibleMax, c.FeasibleMax)
	applyBoolConfig(cmd, "persist", &drill.Persist, c.Persist)
	return drill
}

func toAdaptiveConfig(cfg model.DrillConfig) adaptive.Config {
	return adaptive.Config{
		TargetFitness:    cfg.Target,
		MasteryCeiling:   cfg.Mastery,
		StructuralWeight: cfg.StructuralWeight,
		Tempos:           cfg.Tempos,
		TempoMin:         cfg.TempoMin,
		TempoMax:         cfg.TempoMax,
		MaxLevel:         cfg.MaxLevel,
		Levels:           cfg.Levels,
		MaxTempoStep:     cfg.MaxBPMStep,
		MaxLevelStep:     cfg.MaxLevelStep,
		CalibrationBins:  cfg.Bins,
		EMALambda:        cfg.EMALambda,
		Feasibility:      adaptive.Bounds{Min: cfg.FeasibleMin, Max: cfg.FeasibleMax},
		FastAnchor:       adaptive.Anchor{Seconds: cfg.FastAnchor, Weight: cfg.FastWeight},
		SlowAnchor:       adaptive.Anchor{Seconds: cfg.SlowAnchor, Weight: cfg.SlowWeight},
		MenuSize:         cfg.MenuSize,
		Split:            adaptive.DefaultSplit,
	}
}

// validateConfig checks CLI-only settings and defers the rest to the
// scheduler's own validation.
func validateConfig(cfg model.DrillConfig) error {
	if cfg.Items <= 0 {
		return fmt.Errorf("--items must be > 0")
	}
	if err := toAdaptiveConfig(cfg).Validate(); err != nil {
		return fmt.Errorf("invalid drill settings: %w", err)
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Development = false
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg.Build()
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyInt64Config(cmd *cobra.Command, name string, target, value *int64) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntsConfig(cmd *cobra.Command, name string, target *[]int, value []int) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = append([]int(nil), value...)
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	d := defaultDrillConfig()
	return fmt.Sprintf(`# eardrill configuration
# Uncomment a value to enable it. CLI flags override config values.

[drill]
# target = %.2f              # Target fitness (0-1)
# mastery = %.2f             # Mastery ceiling (0-1)
# structural-weight = %.2f   # Weight of structure vs speed (0-1)
# tempos = %s        # Active tempo set in BPM
# tempo-min = %d             # Lowest tempo in BPM
# tempo-max = %d            # Highest tempo in BPM
# max-level = %d              # Highest notes-per-item level
# levels = %s        # Allowed notes-per-item levels
# max-bpm-step = %d           # Largest tempo change between items
# max-level-step = %d         # Largest level change between items
# menu-size = %d              # Candidates kept closest to the target
# items = %d                 # Items per bout
# seed = 0                  # Random seed (0 = time based)

[calibration]
# bins = %d                  # Calibration bins per level
# ema-lambda = %.2f          # EMA smoothing factor (0-1]
# fast-anchor = %.2f         # Anchor seconds at the lowest tempo bin
# fast-weight = %.1f        # Anchor weight at the lowest tempo bin
# slow-anchor = %.2f         # Anchor seconds at the highest tempo bin
# slow-weight = %.1f        # Anchor weight at the highest tempo bin
# t-min = %.1f               # Fastest feasible response in seconds
# t-max = %.1f               # Slowest feasible response in seconds
# persist = true            # Restore and save calibration across runs

[log]
# level = %q             # debug, info, warn or error
`,
		d.Target,
		d.Mastery,
		d.StructuralWeight,
		tomlInts(d.Tempos),
		d.TempoMin,
		d.TempoMax,
		d.MaxLevel,
		tomlInts(d.Levels),
		d.MaxBPMStep,
		d.MaxLevelStep,
		d.MenuSize,
		d.Items,
		d.Bins,
		d.EMALambda,
		d.FastAnchor,
		d.FastWeight,
		d.SlowAnchor,
		d.SlowWeight,
		d.FeasibleMin,
		d.FeasibleMax,
		defaultLogLevel,
	)
}

func tomlInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
