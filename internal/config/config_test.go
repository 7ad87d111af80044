package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"curewatch/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("CUREWATCH_DATA_DIR", "")
	t.Setenv("CUREWATCH_MODEL_DIR", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantModels := filepath.Join(tempHome, ".local", "share", "curewatch", "models")
	if cfg.Paths.ModelDir != wantModels {
		t.Fatalf("unexpected model dir: got %q want %q", cfg.Paths.ModelDir, wantModels)
	}
	if cfg.Paths.DefaultModelDir != "" {
		t.Fatalf("expected no default model dir, got %q", cfg.Paths.DefaultModelDir)
	}
	if cfg.Training.SampleCap != 5000 {
		t.Fatalf("unexpected sample cap: %d", cfg.Training.SampleCap)
	}
	if cfg.Training.Strategy != "pooled" {
		t.Fatalf("unexpected strategy: %q", cfg.Training.Strategy)
	}
	if cfg.Features.HeaterSmoothWindow != 60 || cfg.Features.HeaterSmoothMethod != "rms" {
		t.Fatalf("unexpected heater smoothing: %+v", cfg.Features)
	}
	if cfg.Vibration.WindowLength != 512 || cfg.Vibration.TukeyAlpha != 0.125 {
		t.Fatalf("unexpected stft settings: %+v", cfg.Vibration)
	}
	if cfg.Logging.Format != "auto" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
}

func TestLoadHonoursEnvironmentDirectories(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	data := t.TempDir()
	models := t.TempDir()
	t.Setenv("CUREWATCH_DATA_DIR", data)
	t.Setenv("CUREWATCH_MODEL_DIR", models)

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.DataDir != data {
		t.Fatalf("data dir = %q, want %q", cfg.Paths.DataDir, data)
	}
	if cfg.Paths.ModelDir != models {
		t.Fatalf("model dir = %q, want %q", cfg.Paths.ModelDir, models)
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CUREWATCH_DATA_DIR", "")
	t.Setenv("CUREWATCH_MODEL_DIR", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "~/runs"
model_dir = "` + filepath.ToSlash(filepath.Join(dir, "models")) + `"

[training]
strategy = "SELECT"
split_policy = "early"
split_size = 6

[vibration]
overlap = 128

[vibration.sensor_codes]
oa = "900001"
Vacuum = "900004"

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Training.Strategy != "select" || cfg.Training.SplitPolicy != "early" || cfg.Training.SplitSize != 6 {
		t.Fatalf("unexpected training config: %+v", cfg.Training)
	}
	if cfg.Vibration.Overlap != 128 {
		t.Fatalf("unexpected overlap: %d", cfg.Vibration.Overlap)
	}
	if code, ok := cfg.SensorCode("OA", "fan"); !ok || code != "900001" {
		t.Fatalf("SensorCode(OA) = %q, %v", code, ok)
	}
	if code, ok := cfg.SensorCode("OB", "vacuum"); !ok || code != "900004" {
		t.Fatalf("SensorCode(vacuum) = %q, %v", code, ok)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	if !strings.HasSuffix(cfg.Paths.DataDir, "runs") || !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("expected expanded data dir, got %q", cfg.Paths.DataDir)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"strategy", func(c *config.Config) { c.Training.Strategy = "grid" }, "training.strategy"},
		{"split", func(c *config.Config) { c.Training.SplitPolicy = "middle" }, "training.split_policy"},
		{"cap", func(c *config.Config) { c.Training.SampleCap = 0 }, "training.sample_cap"},
		{"overlap", func(c *config.Config) { c.Vibration.Overlap = 512 }, "vibration.overlap"},
		{"contamination", func(c *config.Config) { c.Vibration.Contamination = 0.7 }, "vibration.contamination"},
		{"smooth method", func(c *config.Config) { c.Features.HeaterSmoothMethod = "median" }, "heater_smooth_method"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("Load(sample) exists=%v err=%v", exists, err)
	}
}
