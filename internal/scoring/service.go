package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"curewatch/internal/config"
	"curewatch/internal/device"
	"curewatch/internal/faults"
	"curewatch/internal/features"
	"curewatch/internal/fileutil"
	"curewatch/internal/ingest"
	"curewatch/internal/logging"
	"curewatch/internal/metrics"
	"curewatch/internal/modelstore"
	"curewatch/internal/runid"
	"curewatch/internal/series"
	"curewatch/internal/statutil"
	"curewatch/internal/training"
)

// Status is the outcome of a scoring request.
type Status int

const (
	// StatusScored means predictions were written.
	StatusScored Status = iota
	// StatusNoModel means outputs were written without predictions.
	StatusNoModel
	// StatusUpToDate means existing outputs already used the selected model.
	StatusUpToDate
)

func (s Status) String() string {
	switch s {
	case StatusScored:
		return "scored"
	case StatusNoModel:
		return "no_model"
	case StatusUpToDate:
		return "up_to_date"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Request identifies one run to score. Empty directories fall back to the
// configured paths; an empty Name uses the run identifier.
type Request struct {
	RunID           string
	Name            string
	Device          device.Kind
	SourceDir       string
	TargetDir       string
	ModelDir        string
	DefaultModelDir string
}

// Result describes what Score did.
type Result struct {
	Status   Status
	Match    modelstore.Match
	Identity Identity
	CSVPath  string
	JSONPath string
	Rows     int
}

// Service scores runs against stored current models.
type Service struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Score predicts expected current for one run and writes its outputs.
func (s *Service) Score(ctx context.Context, req Request) (*Result, error) {
	id, ok := runid.Find(req.RunID)
	if !ok {
		return nil, faults.Wrap(faults.ErrValidation, "scoring", "run id", fmt.Sprintf("invalid run identifier %q", req.RunID), nil)
	}
	req = s.withDefaults(req, id)
	ctx = logging.WithRunID(ctx, id.String())
	logger := logging.WithContext(ctx, logging.NewComponentLogger(s.Logger, "scoring")).
		With(logging.String(logging.FieldDevice, req.Device.String()))

	curing, err := ingest.ReadCuring(req.SourceDir, id)
	if err != nil {
		return nil, err
	}
	samples, err := ingest.ReadCurrent(filepath.Join(req.SourceDir, req.Device.CurrentFile()))
	if err != nil {
		return nil, err
	}
	opts, err := features.ScoringOptions(req.Device, s.Config.Features)
	if err != nil {
		return nil, err
	}
	frame, err := features.Build(curing, samples, req.Device, opts)
	if err != nil {
		return nil, err
	}
	if frame.Empty() {
		return nil, faults.Wrap(faults.ErrValidation, "scoring", "align", "curing and current data share no timestamps", nil)
	}

	result := &Result{
		CSVPath:  filepath.Join(req.TargetDir, req.Name+".csv"),
		JSONPath: filepath.Join(req.TargetDir, req.Name+".json"),
		Rows:     frame.Len(),
	}

	entry, match, err := s.lookup(ctx, req, id.Autoclave, curing.Recipe)
	switch {
	case errors.Is(err, faults.ErrNoModel):
		logging.WarnWithContext(logger, "no model available", "scoring_no_model",
			logging.String("recipe", curing.Recipe),
			logging.String(logging.FieldImpact, "outputs carry no predictions"),
		)
		result.Status = StatusNoModel
		if err := s.write(result, frame, req.Device, nil); err != nil {
			return nil, err
		}
		s.Metrics.ObserveScore(req.Device.String(), result.Status.String(), nil, nil)
		return result, nil
	case err != nil:
		return nil, err
	}
	result.Match = match
	result.Identity = Identity{ModelAutoclave: entry.Autoclave, ModelRecipe: entry.Recipe}

	if fileutil.Exists(result.CSVPath) && fileutil.Exists(result.JSONPath) {
		prev, err := readIdentity(result.JSONPath)
		if err == nil && prev.SameModel(result.Identity) {
			logger.Info("outputs up to date", logging.String("model_recipe", prev.ModelRecipe))
			result.Status = StatusUpToDate
			result.Identity = prev
			s.Metrics.ObserveScore(req.Device.String(), result.Status.String(), nil, nil)
			return result, nil
		}
		logger.Info("model changed, rescoring", logging.String("previous_recipe", prev.ModelRecipe))
	}

	model, err := entry.Model()
	if err != nil {
		return nil, err
	}
	x, err := frame.Matrix(req.Device.Features())
	if err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "scoring", "features", "", err)
	}
	mean, std, err := model.Predict(x)
	if err != nil {
		return nil, err
	}

	identity, err := summarize(frame, req.Device, mean, std)
	if err != nil {
		return nil, err
	}
	identity.ModelAutoclave = entry.Autoclave
	identity.ModelRecipe = entry.Recipe
	identity.ModelZThr = entry.Threshold
	result.Identity = identity
	result.Status = StatusScored
	if err := s.write(result, frame, req.Device, []string{"mean_0", "mean_10", "mean_20", "std"}); err != nil {
		return nil, err
	}
	s.Metrics.ObserveScore(req.Device.String(), result.Status.String(), req.Device.Targets(), identity.ZMean)
	logger.Info("run scored",
		logging.String("match", match.String()),
		logging.Int("rows", result.Rows),
		logging.Any("z_score", []float64(identity.ZScore)),
		logging.Any("z_threshold", []float64(entry.Threshold)),
	)
	return result, nil
}

func (s *Service) withDefaults(req Request, id runid.ID) Request {
	if req.Name == "" {
		req.Name = id.String()
	}
	if req.SourceDir == "" {
		req.SourceDir = filepath.Join(s.Config.Paths.DataDir, id.String())
	}
	if req.TargetDir == "" {
		req.TargetDir = s.Config.Paths.OutputDir
	}
	if req.ModelDir == "" {
		req.ModelDir = s.Config.Paths.ModelDir
	}
	if req.DefaultModelDir == "" {
		req.DefaultModelDir = s.Config.Paths.DefaultModelDir
	}
	return req
}

func (s *Service) lookup(ctx context.Context, req Request, autoclave, recipe string) (modelstore.Entry, modelstore.Match, error) {
	var chain modelstore.Chain
	primary, ok, err := modelstore.OpenExisting(ctx, req.ModelDir)
	if err != nil {
		return modelstore.Entry{}, 0, err
	}
	if ok {
		defer primary.Close()
		chain.Primary = primary
	}
	if req.DefaultModelDir != "" && req.DefaultModelDir != req.ModelDir {
		fallback, ok, err := modelstore.OpenExisting(ctx, req.DefaultModelDir)
		if err != nil {
			return modelstore.Entry{}, 0, err
		}
		if ok {
			defer fallback.Close()
			chain.Default = fallback
		}
	}
	return chain.Lookup(ctx, req.Device, autoclave, recipe)
}

// summarize adds the prediction columns to frame and returns the z-score
// summary. For a heater, rows whose targets are all zero are switched off:
// they are masked and left out of the summary. Fan rows are never masked.
func summarize(frame *series.Frame, kind device.Kind, mean *mat.Dense, std []float64) (Identity, error) {
	targets := kind.Targets()
	n := frame.Len()
	targetCols := make([][]float64, len(targets))
	for j, name := range targets {
		targetCols[j], _ = frame.Column(name)
	}
	masked := make([]bool, n)
	var keep []int
	for i := 0; i < n; i++ {
		off := kind.IsHeater()
		for _, col := range targetCols {
			if off && col[i] != 0 {
				off = false
				break
			}
		}
		masked[i] = off
		if !off {
			keep = append(keep, i)
		}
	}

	stdCol := make([]float64, n)
	for i := 0; i < n; i++ {
		stdCol[i] = std[i]
		if masked[i] {
			stdCol[i] = math.NaN()
		}
	}
	for j, name := range []string{"mean_0", "mean_10", "mean_20"} {
		col := make([]float64, n)
		for i := 0; i < n; i++ {
			col[i] = mean.At(i, j)
			if masked[i] {
				col[i] = math.NaN()
			}
		}
		if err := frame.Set(name, col); err != nil {
			return Identity{}, err
		}
	}
	if err := frame.Set("std", stdCol); err != nil {
		return Identity{}, err
	}

	var id Identity
	if len(keep) == 0 {
		return id, nil
	}
	y := mat.NewDense(len(keep), len(targets), nil)
	mu := mat.NewDense(len(keep), len(targets), nil)
	sd := make([]float64, len(keep))
	for k, i := range keep {
		for j := range targets {
			y.Set(k, j, targetCols[j][i])
			mu.Set(k, j, mean.At(i, j))
		}
		sd[k] = std[i]
	}
	z := training.ZScores(mu, sd, y)
	id.ZMean = make(modelstore.Values, len(targets))
	id.ZStd = make(modelstore.Values, len(targets))
	id.ZScore = make(modelstore.Values, len(targets))
	for j := range targets {
		col := mat.Col(nil, j, z)
		id.ZMean[j], id.ZStd[j] = statutil.PopMeanStd(col)
		id.ZScore[j] = statutil.Percentile(col, training.ThresholdPercentile)
	}
	return id, nil
}

func (s *Service) write(result *Result, frame *series.Frame, kind device.Kind, prediction []string) error {
	columns := append(append(kind.Features(), kind.Targets()...), prediction...)
	if err := writeTable(result.CSVPath, frame, columns); err != nil {
		return err
	}
	return writeIdentity(result.JSONPath, result.Identity)
}
