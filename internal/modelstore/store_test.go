package modelstore_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"curewatch/internal/device"
	"curewatch/internal/faults"
	"curewatch/internal/gp"
	"curewatch/internal/modelstore"
)

func fitted(t *testing.T, offset float64) *gp.Regressor {
	t.Helper()
	x := mat.NewDense(6, 1, []float64{0, 1, 2, 3, 4, 5})
	y := mat.NewDense(6, 3, nil)
	for i := 0; i < 6; i++ {
		for j := 0; j < 3; j++ {
			y.Set(i, j, offset+float64(i+j))
		}
	}
	r, err := gp.Fit(context.Background(), x, y, gp.Options{Kernel: gp.Kernel{Noise: 0.01, Sigma0: 1, Length: 2}, NormalizeY: true})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func entry(t *testing.T, kind device.Kind, autoclave, key string, offset float64) modelstore.Entry {
	return modelstore.Entry{
		Device:      kind.String(),
		Autoclave:   autoclave,
		GroupKey:    key,
		Recipe:      key,
		Metrics:     modelstore.Metrics{R2: 0.9, MSE: math.NaN()},
		Threshold:   modelstore.Values{2, 3, math.NaN()},
		Calibration: modelstore.Calibration{ZMean: modelstore.Values{1, 1, 1}, ZStd: modelstore.Values{0.5, 0.5, 0.5}},
		XFeatures:   []string{"PMV"},
		YFeatures:   kind.Targets(),
		TrainingID:  "train-1",
		TrainedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}.WithModel(fitted(t, offset))
}

func open(t *testing.T, dir string) *modelstore.Store {
	t.Helper()
	s, err := modelstore.Open(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := open(t, t.TempDir())
	e := entry(t, device.Fan(), "OA", "R1", 0)
	if err := s.Put(ctx, []modelstore.Entry{e}); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Get(ctx, "fan", "OA", "R1")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got.Metrics.R2 != 0.9 || !math.IsNaN(got.Metrics.MSE) {
		t.Fatalf("metrics = %+v", got.Metrics)
	}
	if got.Threshold[1] != 3 || !math.IsNaN(got.Threshold[2]) {
		t.Fatalf("threshold = %v", got.Threshold)
	}
	if !got.TrainedAt.Equal(e.TrainedAt) || got.TrainingRows != 6 {
		t.Fatalf("entry = %+v", got)
	}

	model, err := got.Model()
	if err != nil {
		t.Fatal(err)
	}
	orig, _ := e.Model()
	q := mat.NewDense(2, 1, []float64{0.5, 4.5})
	m1, _, _ := orig.Predict(q)
	m2, _, _ := model.Predict(q)
	if !mat.EqualApprox(m1, m2, 1e-9) {
		t.Fatal("restored model predicts differently")
	}

	if _, ok, _ := s.Get(ctx, "fan", "OB", "R1"); ok {
		t.Fatal("unexpected entry for OB")
	}

	list, err := s.List(ctx)
	if err != nil || len(list) != 1 || list[0].GroupKey != "R1" || list[0].TrainingRows != 6 {
		t.Fatalf("List = %+v, %v", list, err)
	}
}

func TestPutReplacesExistingEntry(t *testing.T) {
	ctx := context.Background()
	s := open(t, t.TempDir())
	first := entry(t, device.Fan(), "OA", "R1", 0)
	second := entry(t, device.Fan(), "OA", "R1", 10)
	second.TrainingID = "train-2"
	if err := s.Put(ctx, []modelstore.Entry{first}); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, []modelstore.Entry{second}); err != nil {
		t.Fatal(err)
	}
	got, _, _ := s.Get(ctx, "fan", "OA", "R1")
	if got.TrainingID != "train-2" {
		t.Fatalf("training id = %s", got.TrainingID)
	}
}

func TestChainFallbackOrder(t *testing.T) {
	ctx := context.Background()
	primary := open(t, t.TempDir())
	fallback := open(t, t.TempDir())
	heater := device.Heater(1)

	chain := modelstore.Chain{Primary: primary, Default: fallback}
	_, _, err := chain.Lookup(ctx, heater, "OA", "R1")
	if !errors.Is(err, faults.ErrNoModel) {
		t.Fatalf("empty chain err = %v", err)
	}

	_ = fallback.Put(ctx, []modelstore.Entry{entry(t, heater, "OA", modelstore.PooledKey(heater), 0)})
	if _, m, err := chain.Lookup(ctx, heater, "OA", "R1"); err != nil || m != modelstore.MatchDefaultPooled {
		t.Fatalf("match = %v, %v", m, err)
	}
	_ = fallback.Put(ctx, []modelstore.Entry{entry(t, heater, "OA", modelstore.GroupKey("R1", heater), 0)})
	if _, m, _ := chain.Lookup(ctx, heater, "OA", "R1"); m != modelstore.MatchDefaultExact {
		t.Fatalf("match = %v", m)
	}
	_ = primary.Put(ctx, []modelstore.Entry{entry(t, heater, "OA", "all1", 0)})
	if _, m, _ := chain.Lookup(ctx, heater, "OA", "R1"); m != modelstore.MatchPooled {
		t.Fatalf("match = %v", m)
	}
	_ = primary.Put(ctx, []modelstore.Entry{entry(t, heater, "OA", "R11", 0)})
	e, m, _ := chain.Lookup(ctx, heater, "OA", "R1")
	if m != modelstore.MatchExact || e.GroupKey != "R11" {
		t.Fatalf("match = %v key = %s", m, e.GroupKey)
	}
}

func TestLockIsExclusive(t *testing.T) {
	dir := t.TempDir()
	a := open(t, dir)
	b := open(t, dir)
	if err := a.Lock(); err != nil {
		t.Fatal(err)
	}
	if err := b.Lock(); !errors.Is(err, faults.ErrBusy) {
		t.Fatalf("second lock err = %v, want busy", err)
	}
	if err := a.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := b.Lock(); err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	_ = b.Unlock()
}

func TestVibrationArtifacts(t *testing.T) {
	ctx := context.Background()
	s := open(t, t.TempDir())

	sel := modelstore.Selection{Recipe: "R1", SensorType: "fan", Axis: "X", Bins: []int{3, 9, 17, 40}}
	if err := s.PutSelection(ctx, sel); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Selection(ctx, "R1", "fan", "X")
	if err != nil || !ok || got.Mean != nil || len(got.Bins) != 4 || got.Bins[2] != 17 {
		t.Fatalf("Selection = %+v, %v, %v", got, ok, err)
	}
	mean, std := 0.2, 0.05
	sel.Mean, sel.Std = &mean, &std
	_ = s.PutSelection(ctx, sel)
	got, _, _ = s.Selection(ctx, "R1", "fan", "X")
	if got.Mean == nil || *got.Mean != 0.2 || *got.Std != 0.05 {
		t.Fatalf("stats = %+v", got)
	}

	type detector struct{ Trees int }
	if err := s.PutDetector(ctx, "R1-OA-X", detector{Trees: 100}); err != nil {
		t.Fatal(err)
	}
	var d detector
	if ok, err := s.Detector(ctx, "R1-OA-X", &d); err != nil || !ok || d.Trees != 100 {
		t.Fatalf("Detector = %+v, %v, %v", d, ok, err)
	}
	if ok, _ := s.Detector(ctx, "missing", &d); ok {
		t.Fatal("unexpected detector")
	}
}

func TestOpenExisting(t *testing.T) {
	dir := t.TempDir()
	if _, ok, err := modelstore.OpenExisting(context.Background(), dir); ok || err != nil {
		t.Fatalf("OpenExisting on empty dir = %v, %v", ok, err)
	}
	_ = open(t, dir)
	s, ok, err := modelstore.OpenExisting(context.Background(), dir)
	if err != nil || !ok {
		t.Fatalf("OpenExisting = %v, %v", ok, err)
	}
	_ = s.Close()
}
