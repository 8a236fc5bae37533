// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/eardrill/internal/adaptive"
	"github.com/verte-zerg/eardrill/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for bouts, trials and calibration state.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bouts (
			id INTEGER PRIMARY KEY,
			uuid TEXT NOT NULL UNIQUE,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			target_fitness REAL NOT NULL,
			items INTEGER NOT NULL,
			cumulative_score REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS trials (
			bout_id INTEGER NOT NULL,
			idx INTEGER NOT NULL,
			level INTEGER NOT NULL,
			tempo INTEGER NOT NULL,
			predicted_seconds REAL NOT NULL,
			expected_fitness REAL NOT NULL,
			structural_difficulty REAL NOT NULL,
			correct INTEGER NOT NULL,
			observed_seconds REAL NOT NULL,
			score REAL NOT NULL,
			degrees TEXT NOT NULL,
			PRIMARY KEY (bout_id, idx)
		);`,
		`CREATE TABLE IF NOT EXISTS calibration_bins (
			level INTEGER NOT NULL,
			tempo_center INTEGER NOT NULL,
			ema_seconds REAL NOT NULL,
			observations INTEGER NOT NULL,
			PRIMARY KEY (level, tempo_center)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bouts_ended_at ON bouts(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_trials_level ON trials(level);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertBout stores a finished bout and its trials. A bout without a UUID
// gets a fresh one.
func (s *Store) InsertBout(ctx context.Context, bout model.BoutRecord, trials []model.TrialRecord) (int64, error) {
	if bout.UUID == "" {
		bout.UUID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO bouts (uuid, started_at, ended_at, target_fitness, items, cumulative_score)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		bout.UUID,
		bout.StartedAt.Format(time.RFC3339Nano),
		bout.EndedAt.Format(time.RFC3339Nano),
		bout.TargetFitness,
		bout.Items,
		bout.CumulativeScore,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if len(trials) > 0 {
		var stmt *sql.Stmt
		stmt, err = tx.PrepareContext(ctx,
			`INSERT INTO trials (bout_id, idx, level, tempo, predicted_seconds, expected_fitness, structural_difficulty, correct, observed_seconds, score, degrees)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, tr := range trials {
			if _, err = stmt.ExecContext(ctx, id, tr.Index, tr.Level, tr.Tempo, tr.PredictedSeconds,
				tr.ExpectedFitness, tr.StructuralDifficulty, boolToInt(tr.Correct), tr.ObservedSeconds,
				tr.Score, tr.Degrees); err != nil {
				return 0, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// ListBouts returns bout aggregates filtered by stats config, oldest first.
// Last keeps only the most recent bouts.
func (s *Store) ListBouts(ctx context.Context, cfg model.StatsConfig) ([]model.BoutAggregate, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Since != nil {
		clauses = append(clauses, "b.ended_at >= ?")
		args = append(args, cfg.Since.Format(time.RFC3339Nano))
	}
	limit := -1
	if cfg.Last > 0 {
		limit = cfg.Last
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT * FROM (
		SELECT b.id, b.uuid, b.ended_at, b.target_fitness, b.items, b.cumulative_score,
			COALESCE((SELECT SUM(t.correct) FROM trials t WHERE t.bout_id = b.id), 0)
		FROM bouts b
		WHERE %s
		ORDER BY b.ended_at DESC, b.id DESC
		LIMIT ?
	) ORDER BY 3 ASC, 1 ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var bouts []model.BoutAggregate
	for rows.Next() {
		var agg model.BoutAggregate
		var endedAt string
		if err := rows.Scan(&agg.BoutID, &agg.UUID, &endedAt, &agg.TargetFitness, &agg.Items, &agg.CumulativeScore, &agg.Correct); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, endedAt)
		if err != nil {
			return nil, err
		}
		agg.EndedAt = parsed
		bouts = append(bouts, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bouts, nil
}

// ListLevelAggregates aggregates trials per level across the given bouts.
func (s *Store) ListLevelAggregates(ctx context.Context, boutIDs []int64) ([]model.LevelAggregate, error) {
	if len(boutIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(boutIDs))
	args := make([]any, len(boutIDs))
	for i, id := range boutIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT level, COUNT(*), SUM(correct), SUM(score), SUM(observed_seconds),
		SUM(predicted_seconds), MIN(tempo), MAX(tempo)
		FROM trials
		WHERE bout_id IN (%s)
		GROUP BY level
		ORDER BY level ASC`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.LevelAggregate
	for rows.Next() {
		var agg model.LevelAggregate
		if err := rows.Scan(&agg.Level, &agg.Items, &agg.Correct, &agg.ScoreSum, &agg.SecondsSum,
			&agg.PredictedSum, &agg.MinTempo, &agg.MaxTempo); err != nil {
			return nil, err
		}
		result = append(result, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListTrials returns the trials of one bout in presentation order.
func (s *Store) ListTrials(ctx context.Context, boutID int64) ([]model.TrialRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, level, tempo, predicted_seconds, expected_fitness, structural_difficulty,
			correct, observed_seconds, score, degrees
		FROM trials
		WHERE bout_id = ?
		ORDER BY idx ASC`, boutID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.TrialRecord
	for rows.Next() {
		var tr model.TrialRecord
		var correct int
		if err := rows.Scan(&tr.Index, &tr.Level, &tr.Tempo, &tr.PredictedSeconds, &tr.ExpectedFitness,
			&tr.StructuralDifficulty, &correct, &tr.ObservedSeconds, &tr.Score, &tr.Degrees); err != nil {
			return nil, err
		}
		tr.Correct = correct != 0
		result = append(result, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SaveCalibration replaces the stored calibration bins with bins, keyed by
// level.
func (s *Store) SaveCalibration(ctx context.Context, bins map[int][]adaptive.Bin) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM calibration_bins`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO calibration_bins (level, tempo_center, ema_seconds, observations) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()
	for level, levelBins := range bins {
		for _, b := range levelBins {
			if _, err = stmt.ExecContext(ctx, level, b.TempoCenter, b.EMASeconds, b.Count); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// LoadCalibration returns stored calibration bins keyed by level, each in
// ascending tempo order.
func (s *Store) LoadCalibration(ctx context.Context) (map[int][]adaptive.Bin, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT level, tempo_center, ema_seconds, observations FROM calibration_bins
		ORDER BY level ASC, tempo_center ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	result := map[int][]adaptive.Bin{}
	for rows.Next() {
		var level int
		var b adaptive.Bin
		if err := rows.Scan(&level, &b.TempoCenter, &b.EMASeconds, &b.Count); err != nil {
			return nil, err
		}
		result[level] = append(result[level], b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, levelBins := range result {
		sort.Slice(levelBins, func(i, j int) bool { return levelBins[i].TempoCenter < levelBins[j].TempoCenter })
	}
	return result, nil
}

// ResetCalibration deletes all stored calibration bins.
func (s *Store) ResetCalibration(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM calibration_bins`)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
