// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Drill       DrillConfig       `toml:"drill"`
	Calibration CalibrationConfig `toml:"calibration"`
	Log         LogConfig         `toml:"log"`
}

// DrillConfig maps scheduling and bout settings.
type DrillConfig struct {
	Target           *float64 `toml:"target"`
	Mastery          *float64 `toml:"mastery"`
	StructuralWeight *float64 `toml:"structural-weight"`
	Tempos           []int    `toml:"tempos"`
	TempoMin         *int     `toml:"tempo-min"`
	TempoMax         *int     `toml:"tempo-max"`
	MaxLevel         *int     `toml:"max-level"`
	Levels           []int    `toml:"levels"`
	MaxBPMStep       *int     `toml:"max-bpm-step"`
	MaxLevelStep     *int     `toml:"max-level-step"`
	MenuSize         *int     `toml:"menu-size"`
	Items            *int     `toml:"items"`
	Seed             *int64   `toml:"seed"`
}

// CalibrationConfig maps tempo calibrator settings.
type CalibrationConfig struct {
	Bins        *int     `toml:"bins"`
	EMALambda   *float64 `toml:"ema-lambda"`
	FastAnchor  *float64 `toml:"fast-anchor"`
	FastWeight  *float64 `toml:"fast-weight"`
	SlowAnchor  *float64 `toml:"slow-anchor"`
	SlowWeight  *float64 `toml:"slow-weight"`
	FeasibleMin *float64 `toml:"t-min"`
	FeasibleMax *float64 `toml:"t-max"`
	Persist     *bool    `toml:"persist"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level *string `toml:"level"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
