package vibration

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"curewatch/internal/config"
	"curewatch/internal/faults"
	"curewatch/internal/fileutil"
	"curewatch/internal/ingest"
	"curewatch/internal/logging"
	"curewatch/internal/metrics"
	"curewatch/internal/modelstore"
	"curewatch/internal/series"
	"curewatch/internal/statutil"
)

// Target names the sensor stream a detector watches.
type Target struct {
	Oven       string
	Recipe     string
	SensorType string
	Axis       string
}

func (t Target) normalized() Target {
	t.Oven = strings.ToUpper(strings.TrimSpace(t.Oven))
	t.Axis = strings.ToUpper(strings.TrimSpace(t.Axis))
	t.SensorType = strings.ToLower(strings.TrimSpace(t.SensorType))
	if t.SensorType == "" {
		t.SensorType = "fan"
	}
	return t
}

// Name is the detector key for the target.
func (t Target) Name() string {
	return DetectorName(t.Recipe, t.Oven, t.SensorType, t.Axis)
}

// RunRate is the anomaly rate of one historical run.
type RunRate struct {
	Run  string
	Rate float64
}

// TrainReport summarizes a detector training pass.
type TrainReport struct {
	Name        string
	TrainingRun string
	Bins        []int
	Rates       []RunRate
	Mean, Std   *float64
	RatePath    string
}

// Trainer fits vibration detectors from historical runs.
type Trainer struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Train fits a detector for target on the first candidate run whose
// vibration window resolves, then evaluates every candidate to build the
// historical anomaly-rate statistics. The detector, its frequency selection
// and the rate history are stored.
func (tr *Trainer) Train(ctx context.Context, target Target) (*TrainReport, error) {
	target = target.normalized()
	if _, err := ingest.AxisColumn(target.Axis); err != nil {
		return nil, err
	}
	code, ok := tr.Config.SensorCode(target.Oven, target.SensorType)
	if !ok {
		return nil, faults.Wrap(faults.ErrValidation, "vibration", "sensor",
			fmt.Sprintf("no sensor code for oven %q type %q", target.Oven, target.SensorType), nil)
	}
	name := target.Name()
	logger := logging.NewComponentLogger(tr.Logger, "vibration").With(logging.String("detector", name))

	candidates, err := tr.candidates(target)
	if err != nil {
		return nil, err
	}
	logger.Info("vibration candidates found", logging.Int("runs", len(candidates)))

	store, err := modelstore.Open(ctx, tr.Config.Paths.ModelDir)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	if err := store.Lock(); err != nil {
		return nil, err
	}
	defer func() { _ = store.Unlock() }()

	started := time.Now()
	var (
		spec     *Spectrogram
		trainRun *series.CuringRun
	)
	for _, path := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		run, s, err := tr.spectrogram(path, code, target.Axis, tr.Config.Vibration.Overlap)
		if errors.Is(err, faults.ErrWindow) {
			logging.WarnWithContext(logger, "vibration window unresolved", "vibration_window",
				logging.String("curing_file", filepath.Base(path)),
				logging.Error(err),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		spec, trainRun = s, run
		break
	}
	if spec == nil {
		return nil, faults.Wrap(faults.ErrWindow, "vibration", "train",
			fmt.Sprintf("no candidate run of %s has vibration data", target.Recipe), nil)
	}

	bins := SelectFrequencies(spec, tr.Config.Vibration.MaxTimeBins)
	seed := tr.Config.Vibration.Seed
	rng := rand.New(rand.NewPCG(seed, seed+1))
	detector, err := FitDetector(name, spec, bins, ForestOptions{
		Trees:         tr.Config.Vibration.Trees,
		Contamination: tr.Config.Vibration.Contamination,
	}, rng)
	if err != nil {
		return nil, err
	}
	tr.Metrics.ObserveStage("vibration_fit", started)
	logger.Info("vibration detector fitted",
		logging.String("training_run", trainRun.ID.String()),
		logging.Any("bins", bins),
		logging.Int("segments", spec.Segments()),
	)

	report := &TrainReport{Name: name, TrainingRun: trainRun.ID.String(), Bins: bins}
	rates := make([]float64, 0, len(candidates))
	for _, path := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		run, s, err := tr.spectrogram(path, code, target.Axis, tr.Config.Vibration.Overlap)
		if err != nil {
			logging.WarnWithContext(logger, "skipping vibration run", "vibration_history",
				logging.String("curing_file", filepath.Base(path)),
				logging.Error(err),
			)
			continue
		}
		ev, err := detector.Evaluate(s)
		if err != nil {
			logging.WarnWithContext(logger, "skipping vibration run", "vibration_history",
				logging.String(logging.FieldRunID, run.ID.String()),
				logging.Error(err),
			)
			continue
		}
		report.Rates = append(report.Rates, RunRate{Run: run.ID.String(), Rate: ev.Rate()})
		rates = append(rates, ev.Rate())
	}
	if len(rates) > 0 {
		mean, std := statutil.PopMeanStd(rates)
		report.Mean, report.Std = &mean, &std
	}

	report.RatePath = filepath.Join(tr.Config.Paths.AnomalyRateDir, name+".csv")
	if err := writeRates(report.RatePath, report.Rates); err != nil {
		return nil, err
	}
	if err := store.PutDetector(ctx, name, detector); err != nil {
		return nil, err
	}
	if err := store.PutSelection(ctx, modelstore.Selection{
		Recipe:     target.Recipe,
		SensorType: target.SensorType,
		Axis:       target.Axis,
		Bins:       bins,
		Mean:       report.Mean,
		Std:        report.Std,
	}); err != nil {
		return nil, err
	}
	logger.Info("vibration detector stored",
		logging.Int("history_runs", len(report.Rates)),
		logging.String("rate_file", report.RatePath),
	)
	return report, nil
}

// candidates lists the oven's curing reports whose recipe matches.
func (tr *Trainer) candidates(target Target) ([]string, error) {
	files, err := ingest.CuringFiles(tr.Config.Paths.DataDir, target.Oven)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, path := range files {
		recipe, err := ingest.ReadRecipe(path)
		if err != nil {
			logging.WarnWithContext(tr.Logger, "unreadable curing file", "vibration_candidates",
				logging.String("curing_file", path),
				logging.Error(err),
			)
			continue
		}
		if recipe == target.Recipe {
			out = append(out, path)
		}
	}
	if len(out) == 0 {
		return nil, faults.Wrap(faults.ErrNotFound, "vibration", "candidates",
			fmt.Sprintf("no %s runs with recipe %s", target.Oven, target.Recipe), nil)
	}
	return out, nil
}

// spectrogram loads the run behind curingPath and the vibration samples of
// its padded window.
func (tr *Trainer) spectrogram(curingPath, code, axis string, overlap int) (*series.CuringRun, *Spectrogram, error) {
	run, err := ingest.LoadCuringFile(curingPath)
	if err != nil {
		return nil, nil, err
	}
	s, _, err := runSpectrogram(tr.Config, run, code, axis, overlap)
	return run, s, err
}

// runSpectrogram resolves the run's vibration window and computes its
// spectrogram with the given overlap. It also returns the window start.
func runSpectrogram(cfg *config.Config, run *series.CuringRun, code, axis string, overlap int) (*Spectrogram, time.Time, error) {
	pad := time.Duration(cfg.Vibration.PadMinutes) * time.Minute
	start, end := WindowBounds(run, pad)
	files, err := ResolveWindow(cfg.Paths.VibrationDir, start, end, code)
	if err != nil {
		return nil, start, err
	}
	samples, err := ingest.ReadVibration(files, axis)
	if err != nil {
		return nil, start, err
	}
	spec, err := ComputeSpectrogram(samples, STFT{
		SampleRate:   cfg.Vibration.SampleRate,
		WindowLength: cfg.Vibration.WindowLength,
		Overlap:      overlap,
		TukeyAlpha:   cfg.Vibration.TukeyAlpha,
	})
	return spec, start, err
}

func writeRates(path string, rates []RunRate) error {
	return fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"name", "anomaly_rate"}); err != nil {
			return err
		}
		for _, r := range rates {
			if err := cw.Write([]string{r.Run, strconv.FormatFloat(r.Rate, 'g', -1, 64)}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}
