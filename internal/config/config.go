package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directory layout shared by training and scoring.
type Paths struct {
	DataDir         string `toml:"data_dir"`
	ModelDir        string `toml:"model_dir"`
	DefaultModelDir string `toml:"default_model_dir"`
	OutputDir       string `toml:"output_dir"`
	VibrationDir    string `toml:"vibration_dir"`
	AnomalyRateDir  string `toml:"anomaly_rate_dir"`
	LogDir          string `toml:"log_dir"`
}

// Training contains the current-model training recipe.
type Training struct {
	// Strategy is "pooled" (per-recipe fits plus a pooled fallback) or
	// "select" (two-candidate kernel selection).
	Strategy string `toml:"strategy"`
	// SampleCap bounds the rows used for a single fit.
	SampleCap int `toml:"sample_cap"`
	// SplitPolicy is "random", "early", or "later".
	SplitPolicy string `toml:"split_policy"`
	// SplitSize is the number of training runs; 0 means half of the runs.
	SplitSize int    `toml:"split_size"`
	Restarts  int    `toml:"restarts"`
	Seed      uint64 `toml:"seed"`
	AlignMode string `toml:"align_mode"`
}

// Features contains per-device smoothing settings.
type Features struct {
	FanSmoothWindow    int    `toml:"fan_smooth_window"`
	FanSmoothMethod    string `toml:"fan_smooth_method"`
	HeaterSmoothWindow int    `toml:"heater_smooth_window"`
	HeaterSmoothMethod string `toml:"heater_smooth_method"`
}

// Vibration contains STFT and outlier-model settings.
type Vibration struct {
	SampleRate    float64           `toml:"sample_rate"`
	WindowLength  int               `toml:"window_length"`
	Overlap       int               `toml:"overlap"`
	ScoreOverlap  int               `toml:"score_overlap"`
	TukeyAlpha    float64           `toml:"tukey_alpha"`
	MaxTimeBins   int               `toml:"max_time_bins"`
	Trees         int               `toml:"trees"`
	Contamination float64           `toml:"contamination"`
	Seed          uint64            `toml:"seed"`
	PadMinutes    int               `toml:"pad_minutes"`
	SensorCodes   map[string]string `toml:"sensor_codes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains configuration for the batch metrics export.
type Metrics struct {
	Textfile string `toml:"textfile"`
}

// Config encapsulates all configuration values for curewatch.
//
// Configuration sections by subsystem:
//   - Paths: data, model, output, and log directories
//   - Training: current-model split and fitting recipe
//   - Features: per-device smoothing
//   - Vibration: spectrogram and isolation forest settings
//   - Logging: log format and level
//   - Metrics: optional Prometheus textfile export
type Config struct {
	Paths     Paths     `toml:"paths"`
	Training  Training  `toml:"training"`
	Features  Features  `toml:"features"`
	Vibration Vibration `toml:"vibration"`
	Logging   Logging   `toml:"logging"`
	Metrics   Metrics   `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/curewatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("curewatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories curewatch writes into. Input
// directories (data, vibration) are left alone.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ModelDir, c.Paths.OutputDir, c.Paths.AnomalyRateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SensorCode returns the vibration sensor file suffix for an oven, or for an
// auxiliary sensor type such as "vacuum" or "water".
func (c *Config) SensorCode(oven, sensorType string) (string, bool) {
	key := strings.ToUpper(strings.TrimSpace(oven))
	if t := strings.ToLower(strings.TrimSpace(sensorType)); t != "" && t != "fan" {
		key = t
	}
	code, ok := c.Vibration.SensorCodes[key]
	return code, ok
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
