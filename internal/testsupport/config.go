package testsupport

import (
	"path/filepath"
	"testing"

	"curewatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.ModelDir = filepath.Join(base, "models")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.VibrationDir = filepath.Join(base, "vibration")
	cfgVal.Paths.AnomalyRateDir = filepath.Join(base, "anomaly_rate")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Logging.Format = "json"

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithDefaultModelDir enables the fallback model store.
func WithDefaultModelDir() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.DefaultModelDir = filepath.Join(b.baseDir, "default", "models")
	}
}

// WithSampleCap overrides the per-fit training row cap.
func WithSampleCap(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Training.SampleCap = n
	}
}

// WithStrategy selects the training strategy.
func WithStrategy(strategy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Training.Strategy = strategy
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ModelDir)
}
