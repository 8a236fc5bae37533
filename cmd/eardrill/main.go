// Package main provides the CLI entrypoint for eardrill.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/verte-zerg/eardrill/internal/adaptive"
	"github.com/verte-zerg/eardrill/internal/config"
	"github.com/verte-zerg/eardrill/internal/generator"
	"github.com/verte-zerg/eardrill/internal/model"
	"github.com/verte-zerg/eardrill/internal/sim"
	"github.com/verte-zerg/eardrill/internal/stats"
	"github.com/verte-zerg/eardrill/internal/statsui"
	"github.com/verte-zerg/eardrill/internal/store"
	"github.com/verte-zerg/eardrill/internal/tui"
)

const (
	defaultItems       = 20
	defaultCurveWindow = 10
	defaultLogLevel    = "warn"
	defaultSimBouts    = 1
)

var (
	dbPath   string
	logLevel string

	statsSince       string
	statsLast        int
	statsCurveWindow int
	statsPlain       bool

	simBouts   int
	simSave    bool
	simTrainee = sim.DefaultTrainee()

	calibrationReset bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "eardrill",
		Short:         "Adaptive scale-degree ear-training drill",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runDrillCmd,
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: XDG data dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	drill = defaultDrillConfig()
	registerDrillFlags(rootCmd)

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newCalibrationCmd())
	return rootCmd
}

// setup loads the config file, applies it under the command-line flags and
// builds the logger.
func setup(cmd *cobra.Command) (model.DrillConfig, *zap.Logger, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return model.DrillConfig{}, nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)
	logger, err := newLogger(logLevel)
	if err != nil {
		return model.DrillConfig{}, nil, err
	}
	cfg := resolveDrillConfig(cmd, fileCfg)
	if err := validateConfig(cfg); err != nil {
		return model.DrillConfig{}, nil, err
	}
	return cfg, logger, nil
}

func openStore() (*store.Store, error) {
	path := dbPath
	if path == "" {
		path = config.DefaultDBPath()
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store, logger *zap.Logger) {
	if cerr := st.Close(); cerr != nil {
		logger.Warn("failed to close db", zap.Error(cerr))
	}
}

// newScheduler builds the scheduler and restores persisted calibration when
// enabled. A stale bin layout is logged and ignored.
func newScheduler(ctx context.Context, cfg model.DrillConfig, st *store.Store, logger *zap.Logger) (*adaptive.Scheduler, error) {
	sched, err := adaptive.New(toAdaptiveConfig(cfg),
		adaptive.WithRand(rand.New(rand.NewSource(seedOrNow(cfg.Seed)))),
		adaptive.WithLogger(logger.Named("scheduler")),
	)
	if err != nil {
		return nil, err
	}
	if !cfg.Persist || st == nil {
		return sched, nil
	}
	bins, err := st.LoadCalibration(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load calibration: %w", err)
	}
	if err := sched.RestoreCalibration(bins); err != nil {
		logger.Warn("discarding stored calibration", zap.Error(err))
		sched, err = adaptive.New(toAdaptiveConfig(cfg),
			adaptive.WithRand(rand.New(rand.NewSource(seedOrNow(cfg.Seed)))),
			adaptive.WithLogger(logger.Named("scheduler")),
		)
		if err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func seedOrNow(seed int64) int64 {
	if seed == 0 {
		return time.Now().UnixNano()
	}
	return seed
}

func runDrillCmd(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	sched, err := newScheduler(cmd.Context(), cfg, st, logger)
	if err != nil {
		return err
	}
	m := tui.NewModel(sched, generator.New(cfg.Seed), st, tui.Options{
		Items:   cfg.Items,
		Persist: cfg.Persist,
		Logger:  logger.Named("drill"),
	})
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stats",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().StringVar(&statsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&statsLast, "last", 0, "limit to last N bouts")
	cmd.Flags().IntVar(&statsCurveWindow, "curve-window", defaultCurveWindow, "moving average window")
	cmd.Flags().BoolVar(&statsPlain, "plain", false, "print a text report instead of the TUI")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var sinceTime *time.Time
	if statsSince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", statsSince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}
	if statsLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}
	statsCfg := model.StatsConfig{
		Since:       sinceTime,
		Last:        statsLast,
		CurveWindow: statsCurveWindow,
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	if statsPlain {
		return printReport(cmd, st, statsCfg, toAdaptiveConfig(cfg), logger)
	}
	m := statsui.NewModel(st, statsCfg, toAdaptiveConfig(cfg))
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run stats TUI: %w", err)
	}
	return nil
}

func printReport(cmd *cobra.Command, st *store.Store, cfg model.StatsConfig, calib adaptive.Config, logger *zap.Logger) error {
	report, err := stats.BuildReport(cmd.Context(), st, cfg)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	out := cmd.OutOrStdout()
	if err := stats.RenderSummary(out, report.Bouts); err != nil {
		return err
	}
	if err := stats.RenderScoreCurve(out, report.Bouts, cfg.CurveWindow, 0, 0, false); err != nil {
		return err
	}
	if err := stats.RenderLevelTable(out, "Per-Level", report.LevelsAll); err != nil {
		return err
	}
	fitted, err := stats.FitCurves(calib, report.Calibration)
	if err != nil {
		return fmt.Errorf("failed to fit calibration: %w", err)
	}
	warnStale(logger, fitted.Stale)
	return stats.RenderCalibration(out, fitted, stats.ObservationCounts(report.Calibration), 0, false)
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run bouts against a simulated trainee",
		Args:  cobra.NoArgs,
		RunE:  runSimulateCmd,
	}
	simTrainee = sim.DefaultTrainee()
	cmd.Flags().IntVar(&simBouts, "bouts", defaultSimBouts, "number of bouts to simulate")
	cmd.Flags().BoolVar(&simSave, "save", false, "store simulated bouts and calibration in the database")
	cmd.Flags().Float64Var(&simTrainee.BaseSeconds, "trainee-base", simTrainee.BaseSeconds, "trainee response time for one note")
	cmd.Flags().Float64Var(&simTrainee.PerNote, "trainee-per-note", simTrainee.PerNote, "seconds added per extra note")
	cmd.Flags().Float64Var(&simTrainee.PerBPM, "trainee-per-bpm", simTrainee.PerBPM, "seconds added per BPM")
	cmd.Flags().Float64Var(&simTrainee.Noise, "trainee-noise", simTrainee.Noise, "uniform noise half-width in seconds")
	cmd.Flags().Float64Var(&simTrainee.ErrorRate, "trainee-error", simTrainee.ErrorRate, "chance of a wrong note (0-1)")
	return cmd
}

func runSimulateCmd(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if simBouts <= 0 {
		return fmt.Errorf("--bouts must be > 0")
	}
	if simTrainee.ErrorRate < 0 || simTrainee.ErrorRate > 1 {
		return fmt.Errorf("--trainee-error must be between 0 and 1")
	}

	var st *store.Store
	if simSave {
		if st, err = openStore(); err != nil {
			return err
		}
		defer closeStore(st, logger)
	}
	ctx := cmd.Context()
	sched, err := newScheduler(ctx, cfg, st, logger)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(seedOrNow(cfg.Seed) + 1))
	out := cmd.OutOrStdout()
	for b := 0; b < simBouts; b++ {
		sched.NewBout()
		started := time.Now()
		steps := sim.Run(ctx, sched, simTrainee, cfg.Items, rng)
		for _, s := range steps {
			if _, err := fmt.Fprintf(out, "Q: N=%d, tempo=%d, pred_sec=%.2f, Fe=%.3f | observed_sec=%.2f correct=%t score=%.3f\n",
				s.Candidate.Level, s.Candidate.Tempo, s.Candidate.PredictedSeconds, s.Candidate.ExpectedFitness,
				s.Seconds, s.Correct, s.Score); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
		bout := sched.Update()
		if _, err := fmt.Fprintf(out, "bout %d: items=%d avg_score=%.3f\n", b+1, bout.Items, bout.AverageScore()); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		if st != nil {
			if err := saveSimulatedBout(ctx, st, sched, steps, started); err != nil {
				return err
			}
		}
	}
	if st != nil && cfg.Persist {
		if err := st.SaveCalibration(ctx, sched.CalibrationSnapshot()); err != nil {
			return fmt.Errorf("failed to save calibration: %w", err)
		}
	}
	return nil
}

func saveSimulatedBout(ctx context.Context, st *store.Store, sched *adaptive.Scheduler, steps []sim.Step, started time.Time) error {
	trials := make([]model.TrialRecord, len(steps))
	for i, s := range steps {
		trials[i] = model.TrialRecord{
			Index:                i,
			Level:                s.Candidate.Level,
			Tempo:                s.Candidate.Tempo,
			PredictedSeconds:     s.Candidate.PredictedSeconds,
			ExpectedFitness:      s.Candidate.ExpectedFitness,
			StructuralDifficulty: s.Candidate.StructuralDifficulty,
			Correct:              s.Correct,
			ObservedSeconds:      s.Seconds,
			Score:                s.Score,
		}
	}
	bout := sched.Update()
	_, err := st.InsertBout(ctx, model.BoutRecord{
		StartedAt:       started,
		EndedAt:         time.Now(),
		TargetFitness:   sched.Target(),
		Items:           bout.Items,
		CumulativeScore: bout.CumulativeScore,
	}, trials)
	if err != nil {
		return fmt.Errorf("failed to save bout: %w", err)
	}
	return nil
}

func newCalibrationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibration",
		Short: "Show or reset persisted tempo calibration",
		Args:  cobra.NoArgs,
		RunE:  runCalibrationCmd,
	}
	cmd.Flags().BoolVar(&calibrationReset, "reset", false, "delete persisted calibration bins")
	return cmd
}

func runCalibrationCmd(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	ctx := cmd.Context()
	if calibrationReset {
		if err := st.ResetCalibration(ctx); err != nil {
			return fmt.Errorf("failed to reset calibration: %w", err)
		}
		logger.Info("calibration reset")
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "Calibration reset.")
		return err
	}
	bins, err := st.LoadCalibration(ctx)
	if err != nil {
		return fmt.Errorf("failed to load calibration: %w", err)
	}
	fitted, err := stats.FitCurves(toAdaptiveConfig(cfg), bins)
	if err != nil {
		return fmt.Errorf("failed to fit calibration: %w", err)
	}
	warnStale(logger, fitted.Stale)
	return stats.RenderCalibration(cmd.OutOrStdout(), fitted, stats.ObservationCounts(bins), 0, false)
}

func warnStale(logger *zap.Logger, levels []int) {
	if len(levels) > 0 {
		logger.Warn("stored calibration does not match current bins", zap.Ints("levels", levels))
	}
}
