package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTraining(); err != nil {
		return err
	}
	if err := c.validateFeatures(); err != nil {
		return err
	}
	if err := c.validateVibration(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.ModelDir == "" {
		return errors.New("paths.model_dir must be set")
	}
	if c.Paths.DefaultModelDir != "" && c.Paths.DefaultModelDir == c.Paths.ModelDir {
		return errors.New("paths.default_model_dir must differ from paths.model_dir")
	}
	return nil
}

func (c *Config) validateTraining() error {
	switch c.Training.Strategy {
	case "pooled", "select":
	default:
		return fmt.Errorf("training.strategy must be pooled or select, got %q", c.Training.Strategy)
	}
	switch c.Training.SplitPolicy {
	case "random", "early", "later":
	default:
		return fmt.Errorf("training.split_policy must be random, early, or later, got %q", c.Training.SplitPolicy)
	}
	switch c.Training.AlignMode {
	case "inner", "extend":
	default:
		return fmt.Errorf("training.align_mode must be inner or extend, got %q", c.Training.AlignMode)
	}
	if c.Training.SampleCap <= 0 {
		return errors.New("training.sample_cap must be positive")
	}
	if c.Training.SplitSize < 0 {
		return errors.New("training.split_size must be zero or positive")
	}
	if c.Training.Restarts < 0 {
		return errors.New("training.restarts must be zero or positive")
	}
	return nil
}

func (c *Config) validateFeatures() error {
	if c.Features.FanSmoothWindow < 0 || c.Features.HeaterSmoothWindow < 0 {
		return errors.New("features smoothing windows must be zero or positive")
	}
	for name, method := range map[string]string{
		"features.fan_smooth_method":    c.Features.FanSmoothMethod,
		"features.heater_smooth_method": c.Features.HeaterSmoothMethod,
	} {
		if method != "mean" && method != "rms" {
			return fmt.Errorf("%s must be mean or rms, got %q", name, method)
		}
	}
	return nil
}

func (c *Config) validateVibration() error {
	v := c.Vibration
	if v.SampleRate <= 0 {
		return errors.New("vibration.sample_rate must be positive")
	}
	if v.WindowLength < 2 {
		return errors.New("vibration.window_length must be at least 2")
	}
	if v.Overlap < 0 || v.Overlap >= v.WindowLength {
		return errors.New("vibration.overlap must be in [0, window_length)")
	}
	if v.ScoreOverlap < 0 || v.ScoreOverlap >= v.WindowLength {
		return errors.New("vibration.score_overlap must be in [0, window_length)")
	}
	if v.TukeyAlpha < 0 || v.TukeyAlpha > 1 {
		return errors.New("vibration.tukey_alpha must be between 0 and 1")
	}
	if v.MaxTimeBins <= 0 {
		return errors.New("vibration.max_time_bins must be positive")
	}
	if v.Trees <= 0 {
		return errors.New("vibration.trees must be positive")
	}
	if v.Contamination <= 0 || v.Contamination >= 0.5 {
		return errors.New("vibration.contamination must be in (0, 0.5)")
	}
	if v.PadMinutes < 0 {
		return errors.New("vibration.pad_minutes must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console, or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
