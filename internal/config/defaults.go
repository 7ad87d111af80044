package config

const (
	defaultDataDir            = "~/.local/share/curewatch/data"
	defaultModelDir           = "~/.local/share/curewatch/models"
	defaultOutputDir          = "~/.local/share/curewatch/output"
	defaultVibrationDir       = "~/.local/share/curewatch/vibration"
	defaultAnomalyRateDir     = "~/.local/share/curewatch/anomaly_rate"
	defaultLogDir             = "~/.local/share/curewatch/logs"
	defaultTrainingStrategy   = "pooled"
	defaultSampleCap          = 5000
	defaultSplitPolicy        = "random"
	defaultRestarts           = 5
	defaultTrainingSeed       = 42
	defaultAlignMode          = "inner"
	defaultHeaterSmoothWindow = 60
	defaultSmoothMethod       = "rms"
	defaultSampleRate         = 1000
	defaultWindowLength       = 512
	defaultTukeyAlpha         = 0.125
	defaultScoreOverlap       = 256
	defaultMaxTimeBins        = 10000
	defaultTrees              = 100
	defaultContamination      = 0.01
	defaultVibrationSeed      = 42
	defaultPadMinutes         = 60
	defaultLogFormat          = "auto"
	defaultLogLevel           = "info"
)

func defaultSensorCodes() map[string]string {
	return map[string]string{
		"OA":     "500401",
		"OB":     "500402",
		"OC":     "500403",
		"vacuum": "500404",
		"water":  "500405",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:        defaultDataDir,
			ModelDir:       defaultModelDir,
			OutputDir:      defaultOutputDir,
			VibrationDir:   defaultVibrationDir,
			AnomalyRateDir: defaultAnomalyRateDir,
			LogDir:         defaultLogDir,
		},
		Training: Training{
			Strategy:    defaultTrainingStrategy,
			SampleCap:   defaultSampleCap,
			SplitPolicy: defaultSplitPolicy,
			Restarts:    defaultRestarts,
			Seed:        defaultTrainingSeed,
			AlignMode:   defaultAlignMode,
		},
		Features: Features{
			FanSmoothMethod:    defaultSmoothMethod,
			HeaterSmoothWindow: defaultHeaterSmoothWindow,
			HeaterSmoothMethod: defaultSmoothMethod,
		},
		Vibration: Vibration{
			SampleRate:    defaultSampleRate,
			WindowLength:  defaultWindowLength,
			ScoreOverlap:  defaultScoreOverlap,
			TukeyAlpha:    defaultTukeyAlpha,
			MaxTimeBins:   defaultMaxTimeBins,
			Trees:         defaultTrees,
			Contamination: defaultContamination,
			Seed:          defaultVibrationSeed,
			PadMinutes:    defaultPadMinutes,
			SensorCodes:   defaultSensorCodes(),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
