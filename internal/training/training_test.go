package training

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"curewatch/internal/device"
	"curewatch/internal/faults"
	"curewatch/internal/logging"
	"curewatch/internal/modelstore"
	"curewatch/internal/runid"
	"curewatch/internal/series"
	"curewatch/internal/testsupport"
)

func mustID(t *testing.T, s string) runid.ID {
	t.Helper()
	id, err := runid.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestSplitPolicies(t *testing.T) {
	runs := []Run{
		{ID: mustID(t, "OA20180903-001"), Recipe: "R1"},
		{ID: mustID(t, "OA20180901-002"), Recipe: "R1"},
		{ID: mustID(t, "OB20180901-001"), Recipe: "R1"},
		{ID: mustID(t, "OA20180901-001"), Recipe: "R2"},
		{ID: mustID(t, "OA20180902-001"), Recipe: "R1"},
	}
	rng := rand.New(rand.NewPCG(1, 2))

	train, test := Split(runs, 2, PolicyEarly, rng)
	if len(train) != 2 || len(test) != 3 {
		t.Fatalf("early split sizes %d/%d", len(train), len(test))
	}
	// Same date and recipe: sequence 001 (OB) sorts before 002 (OA).
	if train[0].ID.String() != "OB20180901-001" || train[1].ID.String() != "OA20180901-002" {
		t.Fatalf("early train = %v, %v", train[0].ID, train[1].ID)
	}

	train, _ = Split(runs, 1, PolicyLater, rng)
	if train[0].ID.String() != "OA20180903-001" {
		t.Fatalf("later train = %v", train[0].ID)
	}

	train, test = Split(runs, 0, PolicyRandom, rng)
	if len(train) != 3 || len(test) != 2 {
		t.Fatalf("default size split %d/%d", len(train), len(test))
	}
	seen := map[string]bool{}
	for _, r := range append(append([]Run(nil), train...), test...) {
		seen[r.ID.String()+r.Recipe] = true
	}
	if len(seen) != 5 {
		t.Fatal("random split must partition the runs")
	}

	train, test = Split(runs[:1], 0, PolicyRandom, rng)
	if len(train) != 1 || len(test) != 1 || test[0].ID != train[0].ID {
		t.Fatal("an empty test set must reuse the training runs")
	}

	if _, err := ParsePolicy("middle"); err == nil {
		t.Fatal("expected policy error")
	}
}

func TestCalibrate(t *testing.T) {
	mean := mat.NewDense(4, 2, []float64{0, 0, 0, 0, 0, 0, 0, 0})
	y := mat.NewDense(4, 2, []float64{1, 2, 2, 4, 3, 6, 4, 8})
	std := []float64{1, 1, 0, 1}

	thr, cal := Calibrate(mean, std, y)
	// Zero std is replaced by 1, so z equals y.
	if math.Abs(thr[0]-3.85) > 1e-12 || math.Abs(thr[1]-7.7) > 1e-12 {
		t.Fatalf("thresholds = %v", thr)
	}
	if cal.ZMean[0] != 2.5 || math.Abs(cal.ZStd[0]-math.Sqrt(1.25)) > 1e-12 {
		t.Fatalf("calibration = %+v", cal)
	}

	z := ZScores(mean, []float64{0, 0, 0, 0}, y)
	if z.At(0, 0) != 1/1e-5 {
		t.Fatalf("all-zero std must fall back to 1e-5, z=%v", z.At(0, 0))
	}
}

func syntheticRun(t *testing.T, id, recipe string, n int, offset float64) Run {
	t.Helper()
	ts := make([]time.Time, n)
	pmv, amv := make([]float64, n), make([]float64, n)
	v0, v10, v20 := make([]float64, n), make([]float64, n), make([]float64, n)
	start := time.Date(2018, 8, 29, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ts[i] = start.Add(time.Duration(i) * time.Minute)
		pmv[i] = 20 + float64(i)*0.3
		amv[i] = math.Sin(float64(i) / 5)
		v0[i] = offset + 0.1*pmv[i] + amv[i]
		v10[i] = v0[i] + 1
		v20[i] = v0[i] + 2
	}
	f := series.NewFrame(ts)
	for name, col := range map[string][]float64{"PMV": pmv, "AMV": amv, "value_0": v0, "value_10": v10, "value_20": v20} {
		if err := f.Set(name, col); err != nil {
			t.Fatal(err)
		}
	}
	return Run{ID: mustID(t, id), Recipe: recipe, Frame: f}
}

func TestTrainerPooledReusesMeanTheta(t *testing.T) {
	groups := []Group{
		{Key: "R1", Recipe: "R1", Runs: []Run{syntheticRun(t, "OA20180829-001", "R1", 30, 0)}},
		{Key: "R2", Recipe: "R2", Runs: []Run{syntheticRun(t, "OA20180830-001", "R2", 30, 1)}},
	}
	trainer := &Trainer{
		Kind:     device.Fan(),
		Strategy: StrategyPooled,
		Cap:      20,
		Rand:     rand.New(rand.NewPCG(3, 4)),
		Logger:   logging.NewNop(),
	}
	fits, err := trainer.Train(context.Background(), groups, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(fits) != 3 {
		t.Fatalf("fits = %d, want 3", len(fits))
	}
	for _, f := range fits[:2] {
		if f.Model.Rows() != 20 {
			t.Fatalf("group %s fitted on %d rows, want the cap", f.Key, f.Model.Rows())
		}
	}
	pooled := fits[2]
	if pooled.Key != "all" || pooled.Model.Rows() != 40 {
		t.Fatalf("pooled key %s rows %d", pooled.Key, pooled.Model.Rows())
	}
	want := meanTheta([][]float64{fits[0].Model.Kernel().Theta(), fits[1].Model.Kernel().Theta()})
	got := pooled.Model.Kernel().Theta()
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("pooled theta %v, want mean %v", got, want)
		}
	}
}

func TestTrainerPooledKeepsUnionBelowDoubleCap(t *testing.T) {
	groups := []Group{
		{Key: "R1", Recipe: "R1", Runs: []Run{syntheticRun(t, "OA20180829-001", "R1", 8, 0)}},
		{Key: "R2", Recipe: "R2", Runs: []Run{syntheticRun(t, "OA20180830-001", "R2", 8, 1)}},
	}
	trainer := &Trainer{
		Kind:     device.Fan(),
		Strategy: StrategyPooled,
		Cap:      10,
		Rand:     rand.New(rand.NewPCG(7, 8)),
		Logger:   logging.NewNop(),
	}
	fits, err := trainer.Train(context.Background(), groups, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(fits) != 3 {
		t.Fatalf("fits = %d, want 3", len(fits))
	}
	if pooled := fits[2]; pooled.Model.Rows() != 16 {
		t.Fatalf("pooled model fitted on %d rows, want the full union of 16", pooled.Model.Rows())
	}

	only, err := trainer.Train(context.Background(), groups, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(only) != 1 || only[0].Model.Rows() != 10 {
		t.Fatalf("pooled-only fit = %+v, want 10 rows", only)
	}
}

func TestTrainerPooledOnly(t *testing.T) {
	groups := []Group{
		{Key: "R1", Recipe: "R1", Runs: []Run{syntheticRun(t, "OA20180829-001", "R1", 15, 0)}},
		{Key: "R2", Recipe: "R2", Runs: []Run{syntheticRun(t, "OA20180830-001", "R2", 15, 1)}},
	}
	trainer := &Trainer{Kind: device.Fan(), Strategy: StrategyPooled, Cap: 5000, Rand: rand.New(rand.NewPCG(1, 1))}
	fits, err := trainer.Train(context.Background(), groups, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(fits) != 1 || fits[0].Key != "all" || fits[0].Model.Rows() != 30 {
		t.Fatalf("pooled-only fits = %+v", fits)
	}
	if fits[0].Metrics.R2 < 0.9 {
		t.Fatalf("pooled R2 = %v", fits[0].Metrics.R2)
	}
}

func TestSelectorPrefersBetterCandidate(t *testing.T) {
	run := syntheticRun(t, "OA20180829-001", "R1", 25, 0)
	x, _ := run.Frame.Matrix([]string{"PMV", "AMV"})
	y, _ := run.Frame.Matrix(device.Fan().Targets())
	trainer := &Trainer{Kind: device.Heater(0), Strategy: StrategySelect, Restarts: 1, Rand: rand.New(rand.NewPCG(5, 6))}
	fit, err := trainer.selectModel(context.Background(), x, y)
	if err != nil {
		t.Fatal(err)
	}
	fixed, _ := fitFixed(context.Background(), x, y, InitialKernel, true)
	if fit.Metrics.R2 < fixed.Metrics.R2 {
		t.Fatalf("selected R2 %v below fixed candidate %v", fit.Metrics.R2, fixed.Metrics.R2)
	}
}

func writeRuns(t *testing.T, dataDir string, ids []string, recipe string) {
	t.Helper()
	for i, id := range ids {
		rows := testsupport.RampRows(time.Date(2018, 8, 29+i, 8, 0, 0, 0, time.UTC), 30, time.Minute)
		testsupport.WriteRun(t, dataDir, id, recipe, "current_fan.csv", rows,
			testsupport.CurrentFor(rows, testsupport.LinearCurrent))
	}
}

func TestPipelineTrainsRecipeAndPooledModels(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeRuns(t, cfg.Paths.DataDir, []string{"OA20180829-001", "OA20180830-001", "OA20180831-001", "OA20180901-001"}, "R1")

	p := &Pipeline{Config: cfg, Logger: logging.NewNop()}
	report, err := p.Run(context.Background(), Options{Device: device.Fan(), Recipe: "R1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.TrainRuns) != 2 || len(report.TestRuns) != 2 {
		t.Fatalf("split %v / %v", report.TrainRuns, report.TestRuns)
	}
	if len(report.Entries) != 2 {
		t.Fatalf("entries = %d, want R1 and all", len(report.Entries))
	}

	store, err := modelstore.Open(context.Background(), cfg.Paths.ModelDir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	for _, key := range []string{"R1", "all"} {
		e, ok, err := store.Get(context.Background(), "fan", "OA", key)
		if err != nil || !ok {
			t.Fatalf("entry %s missing: %v", key, err)
		}
		if e.TrainingID != report.TrainingID || len(e.Threshold) != 3 {
			t.Fatalf("entry %s = %+v", key, e)
		}
		for _, thr := range e.Threshold {
			if math.IsNaN(thr) || thr < 0 {
				t.Fatalf("entry %s threshold %v", key, e.Threshold)
			}
		}
	}
}

func TestPipelinePooledOnlyWithoutRecipe(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeRuns(t, cfg.Paths.DataDir, []string{"OA20180829-001", "OA20180830-001", "OA20180831-001"}, "R1")

	p := &Pipeline{Config: cfg, Logger: logging.NewNop()}
	report, err := p.Run(context.Background(), Options{Device: device.Fan()})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Entries) != 1 || report.Entries[0].GroupKey != "all" {
		t.Fatalf("entries = %+v", report.Entries)
	}
	// Six early runs requested but only three exist: the test set reuses them.
	if len(report.TrainRuns) != 3 || len(report.TestRuns) != 3 {
		t.Fatalf("split %v / %v", report.TrainRuns, report.TestRuns)
	}
}

func TestPipelineFailsFastWhenLocked(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	holder, err := modelstore.Open(context.Background(), cfg.Paths.ModelDir)
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	if err := holder.Lock(); err != nil {
		t.Fatal(err)
	}

	p := &Pipeline{Config: cfg, Logger: logging.NewNop()}
	_, err = p.Run(context.Background(), Options{Device: device.Fan()})
	if !errors.Is(err, faults.ErrBusy) {
		t.Fatalf("err = %v, want busy", err)
	}
}

func TestPipelineWithoutData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p := &Pipeline{Config: cfg, Logger: logging.NewNop()}
	_, err := p.Run(context.Background(), Options{Device: device.Fan(), Recipe: "R9"})
	if !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if faults.ExitCode(err) != faults.ExitNotFound {
		t.Fatalf("exit code = %d", faults.ExitCode(err))
	}
}
