// Package model defines shared data structures.
package model

import "time"

// DrillConfig defines resolved drill settings.
type DrillConfig struct {
	Target           float64
	Mastery          float64
	StructuralWeight float64
	Tempos           []int
	TempoMin         int
	TempoMax         int
	MaxLevel         int
	Levels           []int
	MaxBPMStep       int
	MaxLevelStep     int
	Bins             int
	EMALambda        float64
	MenuSize         int
	Items            int // items per bout
	Seed             int64

	FastAnchor  float64
	FastWeight  float64
	SlowAnchor  float64
	SlowWeight  float64
	FeasibleMin float64
	FeasibleMax float64
	Persist     bool // restore and save calibration bins across runs
}

// StatsConfig defines filters and options for stats output.
type StatsConfig struct {
	Since       *time.Time
	Last        int
	CurveWindow int
}

// BoutRecord captures a completed bout.
type BoutRecord struct {
	UUID            string
	StartedAt       time.Time
	EndedAt         time.Time
	TargetFitness   float64
	Items           int
	CumulativeScore float64
}

// TrialRecord stores one presented item and the trainee's response.
type TrialRecord struct {
	Index                int
	Level                int
	Tempo                int
	PredictedSeconds     float64
	ExpectedFitness      float64
	StructuralDifficulty float64
	Correct              bool
	ObservedSeconds      float64
	Score                float64
	Degrees              string
}

// BoutAggregate summarizes a bout for reporting.
type BoutAggregate struct {
	BoutID          int64
	UUID            string
	EndedAt         time.Time
	TargetFitness   float64
	Items           int
	CumulativeScore float64
	Correct         int
}

// LevelAggregate aggregates trials of one difficulty level across bouts.
type LevelAggregate struct {
	Level        int
	Items        int
	Correct      int
	ScoreSum     float64
	SecondsSum   float64
	PredictedSum float64
	MinTempo     int
	MaxTempo     int
}
