package training

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"

	"curewatch/internal/align"
	"curewatch/internal/config"
	"curewatch/internal/device"
	"curewatch/internal/faults"
	"curewatch/internal/features"
	"curewatch/internal/ingest"
	"curewatch/internal/logging"
	"curewatch/internal/metrics"
	"curewatch/internal/modelstore"
)

// Pooled-only training splits the earliest runs off for fitting.
const (
	pooledOnlySplitSize = 6
	pooledOnlyPolicy    = PolicyEarly
)

// Options selects the runs a training pass uses. Dates are inclusive
// YYYYMMDD strings; an empty Recipe trains only the pooled model.
type Options struct {
	Device    device.Kind
	Autoclave string
	Recipe    string
	Start     string
	End       string
}

// Report summarizes a training pass.
type Report struct {
	TrainingID string
	TrainRuns  []string
	TestRuns   []string
	Entries    []modelstore.Entry
}

// Pipeline trains and stores current models.
type Pipeline struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Run executes one training pass: discover, build features, split, fit,
// calibrate and store. The model store lock is held throughout.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	trainingID := uuid.NewString()
	ctx = logging.WithTrainingID(ctx, trainingID)
	logger := logging.WithContext(ctx, logging.NewComponentLogger(p.Logger, "training")).
		With(logging.String(logging.FieldDevice, opts.Device.String()))

	store, err := modelstore.Open(ctx, p.Config.Paths.ModelDir)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	if err := store.Lock(); err != nil {
		return nil, err
	}
	defer func() { _ = store.Unlock() }()

	started := time.Now()
	runs, err := p.loadRuns(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	p.Metrics.ObserveStage("prepare", started)

	size, policy, err := p.splitSettings(opts)
	if err != nil {
		return nil, err
	}
	seed := p.Config.Training.Seed
	rng := rand.New(rand.NewPCG(seed, seed+1))
	train, test := Split(runs, size, policy, rng)
	report := &Report{TrainingID: trainingID}
	for _, r := range train {
		report.TrainRuns = append(report.TrainRuns, r.ID.String())
	}
	for _, r := range test {
		report.TestRuns = append(report.TestRuns, r.ID.String())
	}
	pooledOnly := opts.Recipe == ""
	logger.Info("runs split",
		logging.Int("train", len(train)),
		logging.Int("test", len(test)),
		logging.String("policy", policy.String()),
		logging.Bool("pooled_only", pooledOnly),
	)

	trainer := &Trainer{
		Kind:     opts.Device,
		Strategy: p.Config.Training.Strategy,
		Cap:      p.Config.Training.SampleCap,
		Restarts: p.Config.Training.Restarts,
		Rand:     rng,
		Logger:   logger,
	}
	now := time.Now().UTC()
	for _, autoclave := range autoclaves(train) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fitStart := time.Now()
		trainRuns := byAutoclave(train, autoclave)
		fits, err := trainer.Train(ctx, groupByRecipe(trainRuns, opts.Device), pooledOnly)
		if err != nil {
			logging.ErrorWithContext(logger, "autoclave training failed", "training_fit",
				logging.String("autoclave", autoclave),
				logging.Int("runs", len(trainRuns)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the run data of this autoclave"),
			)
			return nil, fmt.Errorf("train %s: %w", autoclave, err)
		}
		p.Metrics.ObserveStage("fit", fitStart)

		calStart := time.Now()
		testRuns := byAutoclave(test, autoclave)
		for _, fit := range fits {
			held := heldOut(fit, testRuns, trainRuns)
			x, y, err := stack(held, opts.Device.Features(), opts.Device.Targets())
			if err != nil {
				return nil, fmt.Errorf("calibrate %s %s: %w", autoclave, fit.Key, err)
			}
			mean, std, err := fit.Model.Predict(x)
			if err != nil {
				return nil, fmt.Errorf("calibrate %s %s: %w", autoclave, fit.Key, err)
			}
			thr, cal := Calibrate(mean, std, y)

			entry := modelstore.Entry{
				Device:      opts.Device.String(),
				Autoclave:   autoclave,
				GroupKey:    fit.Key,
				Recipe:      fit.Recipe,
				Metrics:     fit.Metrics,
				Threshold:   thr,
				Calibration: cal,
				XFeatures:   opts.Device.Features(),
				YFeatures:   opts.Device.Targets(),
				TrainingID:  trainingID,
				TrainedAt:   now,
			}.WithModel(fit.Model)
			report.Entries = append(report.Entries, entry)
			p.Metrics.ObserveModel(entry.Device, autoclave, entry.GroupKey, entry.Metrics.R2, entry.TrainingRows, entry.YFeatures, thr)
			logger.Info("model calibrated",
				logging.String("autoclave", autoclave),
				logging.String("group", entry.GroupKey),
				logging.Int("held_out_runs", len(held)),
				logging.Any("z_threshold", []float64(thr)),
			)
		}
		p.Metrics.ObserveStage("calibrate", calStart)
	}

	if err := store.Put(ctx, report.Entries); err != nil {
		return nil, err
	}
	logger.Info("models stored",
		logging.Int("entries", len(report.Entries)),
		logging.String("model_dir", store.Dir()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return report, nil
}

func (p *Pipeline) splitSettings(opts Options) (int, Policy, error) {
	if opts.Recipe == "" {
		return pooledOnlySplitSize, pooledOnlyPolicy, nil
	}
	policy, err := ParsePolicy(p.Config.Training.SplitPolicy)
	if err != nil {
		return 0, 0, faults.Wrap(faults.ErrConfiguration, "training", "split", "", err)
	}
	return p.Config.Training.SplitSize, policy, nil
}

func (p *Pipeline) loadRuns(ctx context.Context, opts Options, logger *slog.Logger) ([]Run, error) {
	discovered, err := ingest.Discover(ctx, p.Config.Paths.DataDir, ingest.Filter{
		Device:    opts.Device,
		Autoclave: opts.Autoclave,
		Recipe:    opts.Recipe,
		Start:     opts.Start,
		End:       opts.End,
	}, p.Logger)
	if err != nil {
		return nil, err
	}
	mode, err := align.ParseMode(p.Config.Training.AlignMode)
	if err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "training", "align mode", "", err)
	}
	featOpts, err := features.TrainingOptions(opts.Device, p.Config.Features, mode)
	if err != nil {
		return nil, err
	}

	runs := make([]Run, 0, len(discovered))
	for _, d := range discovered {
		frame, err := features.Build(d.Curing, d.Current, opts.Device, featOpts)
		if err != nil {
			logger.Warn("run skipped",
				logging.String(logging.FieldRunID, d.ID.String()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "run excluded from training"),
			)
			continue
		}
		if frame.Empty() {
			logger.Warn("run skipped",
				logging.String(logging.FieldRunID, d.ID.String()),
				logging.String("reason", "no aligned rows"),
			)
			continue
		}
		runs = append(runs, Run{ID: d.ID, Recipe: d.Recipe(), Frame: frame})
	}
	if len(runs) == 0 {
		return nil, faults.Wrap(faults.ErrNotFound, "training", "features", "no run produced aligned training rows", nil)
	}
	return runs, nil
}

func autoclaves(runs []Run) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range runs {
		if _, ok := seen[r.ID.Autoclave]; !ok {
			seen[r.ID.Autoclave] = struct{}{}
			out = append(out, r.ID.Autoclave)
		}
	}
	sort.Strings(out)
	return out
}

func byAutoclave(runs []Run, autoclave string) []Run {
	var out []Run
	for _, r := range runs {
		if r.ID.Autoclave == autoclave {
			out = append(out, r)
		}
	}
	return out
}

func groupByRecipe(runs []Run, kind device.Kind) []Group {
	index := map[string]int{}
	var groups []Group
	for _, r := range runs {
		i, ok := index[r.Recipe]
		if !ok {
			i = len(groups)
			index[r.Recipe] = i
			groups = append(groups, Group{Key: modelstore.GroupKey(r.Recipe, kind), Recipe: r.Recipe})
		}
		groups[i].Runs = append(groups[i].Runs, r)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Recipe < groups[j].Recipe })
	return groups
}

// heldOut returns the calibration runs of a fitted model: the autoclave's
// held-out runs of the same recipe (all recipes for the pooled model),
// falling back to the matching training runs when none were held out.
func heldOut(fit Fitted, test, train []Run) []Run {
	match := func(runs []Run) []Run {
		if fit.Recipe == modelstore.PooledGroup {
			return runs
		}
		var out []Run
		for _, r := range runs {
			if r.Recipe == fit.Recipe {
				out = append(out, r)
			}
		}
		return out
	}
	if held := match(test); len(held) > 0 {
		return held
	}
	return match(train)
}
