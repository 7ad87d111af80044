package vibration

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"curewatch/internal/config"
	"curewatch/internal/faults"
	"curewatch/internal/fileutil"
	"curewatch/internal/ingest"
	"curewatch/internal/logging"
	"curewatch/internal/metrics"
	"curewatch/internal/modelstore"
	"curewatch/internal/runid"
)

// TimestampLayout formats segment timestamps in the score table.
const TimestampLayout = "2006-01-02 15:04:05"

// ScoreRequest selects a run and sensor stream to score. An empty
// SensorType means the fan sensor.
type ScoreRequest struct {
	RunID      string
	SensorType string
	Axis       string
	TargetDir  string
}

// ScoreResult is the vibration verdict for one run.
type ScoreResult struct {
	Name       string
	Rate       float64
	Score      float64
	Anomalies  int
	Normals    int
	OutputPath string
}

// Scorer evaluates runs against stored vibration detectors.
type Scorer struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Score computes the run's anomaly rate and its normalized score, and writes
// the per-segment verdicts.
func (s *Scorer) Score(ctx context.Context, req ScoreRequest) (*ScoreResult, error) {
	id, ok := runid.Find(req.RunID)
	if !ok {
		return nil, faults.Wrap(faults.ErrValidation, "vibration", "run id", fmt.Sprintf("invalid run identifier %q", req.RunID), nil)
	}
	ctx = logging.WithRunID(ctx, id.String())
	logger := logging.WithContext(ctx, logging.NewComponentLogger(s.Logger, "vibration"))

	files, err := ingest.CuringFiles(s.Config.Paths.DataDir, id.String())
	if err != nil {
		return nil, err
	}
	run, err := ingest.LoadCuringFile(files[0])
	if err != nil {
		return nil, err
	}
	target := Target{Oven: id.Autoclave, Recipe: run.Recipe, SensorType: req.SensorType, Axis: req.Axis}.normalized()
	if _, err := ingest.AxisColumn(target.Axis); err != nil {
		return nil, err
	}
	code, ok := s.Config.SensorCode(target.Oven, target.SensorType)
	if !ok {
		return nil, faults.Wrap(faults.ErrValidation, "vibration", "sensor",
			fmt.Sprintf("no sensor code for oven %q type %q", target.Oven, target.SensorType), nil)
	}
	name := target.Name()
	logger = logger.With(logging.String("detector", name))

	detector, sel, err := s.load(ctx, target)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	spec, start, err := runSpectrogram(s.Config, run, code, target.Axis, s.Config.Vibration.ScoreOverlap)
	if err != nil {
		return nil, err
	}
	ev, err := detector.Evaluate(spec)
	if err != nil {
		return nil, err
	}
	s.Metrics.ObserveStage("vibration_score", started)

	targetDir := req.TargetDir
	if targetDir == "" {
		targetDir = s.Config.Paths.OutputDir
	}
	result := &ScoreResult{
		Name:       name,
		Rate:       ev.Rate(),
		Score:      NormalizeRate(ev, sel.Mean, sel.Std),
		Anomalies:  ev.Anomalies,
		Normals:    ev.Normals,
		OutputPath: filepath.Join(targetDir, id.String()+"-"+name+"-vibration.csv"),
	}
	if err := writeSegments(result.OutputPath, spec, detector.Bins, ev, start); err != nil {
		return nil, err
	}
	s.Metrics.ObserveVibration(name, result.Rate, result.Score)
	logger.Info("vibration scored",
		logging.Float64("anomaly_rate", result.Rate),
		logging.Float64("anomaly_score", result.Score),
		logging.Int("anomalies", ev.Anomalies),
		logging.Int("normals", ev.Normals),
	)
	return result, nil
}

// load finds the detector and its selection in the primary store, falling
// back to the default store.
func (s *Scorer) load(ctx context.Context, target Target) (*Detector, modelstore.Selection, error) {
	dirs := []string{s.Config.Paths.ModelDir}
	if d := s.Config.Paths.DefaultModelDir; d != "" && d != s.Config.Paths.ModelDir {
		dirs = append(dirs, d)
	}
	name := target.Name()
	for _, dir := range dirs {
		det, sel, found, err := loadFrom(ctx, dir, target)
		if err != nil {
			return nil, modelstore.Selection{}, err
		}
		if found {
			return det, sel, nil
		}
	}
	return nil, modelstore.Selection{}, faults.Wrap(faults.ErrNoModel, "vibration", "lookup", "no detector "+name, nil)
}

func loadFrom(ctx context.Context, dir string, target Target) (*Detector, modelstore.Selection, bool, error) {
	store, ok, err := modelstore.OpenExisting(ctx, dir)
	if err != nil || !ok {
		return nil, modelstore.Selection{}, false, err
	}
	defer store.Close()

	var det Detector
	found, err := store.Detector(ctx, target.Name(), &det)
	if err != nil || !found {
		return nil, modelstore.Selection{}, false, err
	}
	sel, _, err := store.Selection(ctx, target.Recipe, target.SensorType, target.Axis)
	if err != nil {
		return nil, modelstore.Selection{}, false, err
	}
	return &det, sel, true, nil
}

func writeSegments(path string, spec *Spectrogram, bins []int, ev Evaluation, start time.Time) error {
	return fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		header := []string{"offset_seconds", "timestamp"}
		for _, b := range bins {
			header = append(header, fmt.Sprintf("bin_%d", b))
		}
		header = append(header, "anomaly", "anomaly_score")
		if err := cw.Write(header); err != nil {
			return err
		}
		record := make([]string, len(header))
		for i, t := range spec.Times {
			record[0] = strconv.FormatFloat(t, 'f', -1, 64)
			record[1] = start.Add(time.Duration(t * float64(time.Second))).Format(TimestampLayout)
			for j, b := range bins {
				record[2+j] = strconv.FormatFloat(spec.Power.At(b, i), 'g', -1, 64)
			}
			record[2+len(bins)] = strconv.Itoa(ev.Anomaly[i])
			record[3+len(bins)] = strconv.FormatFloat(ev.Scores[i], 'g', -1, 64)
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}
