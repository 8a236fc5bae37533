package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Drill.Target != nil || cfg.Calibration.Bins != nil {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoadConfigParsesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[drill]
target = 0.4
tempos = [70, 80]
levels = [1, 2, 3]
items = 12

[calibration]
bins = 8
persist = false

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Drill.Target == nil || *cfg.Drill.Target != 0.4 {
		t.Fatalf("unexpected target: %v", cfg.Drill.Target)
	}
	if len(cfg.Drill.Tempos) != 2 || cfg.Drill.Tempos[1] != 80 {
		t.Fatalf("unexpected tempos: %v", cfg.Drill.Tempos)
	}
	if cfg.Drill.Items == nil || *cfg.Drill.Items != 12 {
		t.Fatalf("unexpected items: %v", cfg.Drill.Items)
	}
	if cfg.Calibration.Bins == nil || *cfg.Calibration.Bins != 8 {
		t.Fatalf("unexpected bins: %v", cfg.Calibration.Bins)
	}
	if cfg.Calibration.Persist == nil || *cfg.Calibration.Persist {
		t.Fatalf("unexpected persist: %v", cfg.Calibration.Persist)
	}
	if cfg.Log.Level == nil || *cfg.Log.Level != "debug" {
		t.Fatalf("unexpected log level: %v", cfg.Log.Level)
	}
	if cfg.Drill.Mastery != nil {
		t.Fatalf("absent keys must stay nil")
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[drill]\ntempo = 80\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "drill.tempo") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestDefaultPathsUseXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/cfg")
	t.Setenv("XDG_DATA_HOME", "/tmp/data")
	if got := DefaultConfigPath(); got != filepath.Join("/tmp/cfg", "eardrill", "config.toml") {
		t.Fatalf("unexpected config path %s", got)
	}
	if got := DefaultDBPath(); got != filepath.Join("/tmp/data", "eardrill", "eardrill.db") {
		t.Fatalf("unexpected db path %s", got)
	}
}
