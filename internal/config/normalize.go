package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTraining()
	c.normalizeFeatures()
	c.normalizeVibration()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("CUREWATCH_DATA_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.DataDir = value
	}
	if value, ok := os.LookupEnv("CUREWATCH_MODEL_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.ModelDir = value
	}

	fields := []struct {
		name  string
		value *string
	}{
		{"paths.data_dir", &c.Paths.DataDir},
		{"paths.model_dir", &c.Paths.ModelDir},
		{"paths.default_model_dir", &c.Paths.DefaultModelDir},
		{"paths.output_dir", &c.Paths.OutputDir},
		{"paths.vibration_dir", &c.Paths.VibrationDir},
		{"paths.anomaly_rate_dir", &c.Paths.AnomalyRateDir},
		{"paths.log_dir", &c.Paths.LogDir},
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeTraining() {
	c.Training.Strategy = strings.ToLower(strings.TrimSpace(c.Training.Strategy))
	if c.Training.Strategy == "" {
		c.Training.Strategy = defaultTrainingStrategy
	}
	c.Training.SplitPolicy = strings.ToLower(strings.TrimSpace(c.Training.SplitPolicy))
	if c.Training.SplitPolicy == "" {
		c.Training.SplitPolicy = defaultSplitPolicy
	}
	c.Training.AlignMode = strings.ToLower(strings.TrimSpace(c.Training.AlignMode))
	if c.Training.AlignMode == "" {
		c.Training.AlignMode = defaultAlignMode
	}
}

func (c *Config) normalizeFeatures() {
	c.Features.FanSmoothMethod = strings.ToLower(strings.TrimSpace(c.Features.FanSmoothMethod))
	if c.Features.FanSmoothMethod == "" {
		c.Features.FanSmoothMethod = defaultSmoothMethod
	}
	c.Features.HeaterSmoothMethod = strings.ToLower(strings.TrimSpace(c.Features.HeaterSmoothMethod))
	if c.Features.HeaterSmoothMethod == "" {
		c.Features.HeaterSmoothMethod = defaultSmoothMethod
	}
}

func (c *Config) normalizeVibration() {
	if len(c.Vibration.SensorCodes) == 0 {
		c.Vibration.SensorCodes = defaultSensorCodes()
		return
	}
	normalized := make(map[string]string, len(c.Vibration.SensorCodes))
	for key, code := range c.Vibration.SensorCodes {
		key = strings.TrimSpace(key)
		if len(key) == 2 {
			key = strings.ToUpper(key)
		} else {
			key = strings.ToLower(key)
		}
		normalized[key] = strings.TrimSpace(code)
	}
	c.Vibration.SensorCodes = normalized
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
