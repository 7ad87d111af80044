package features_test

import (
	"math"
	"testing"
	"time"

	"curewatch/internal/align"
	"curewatch/internal/config"
	"curewatch/internal/device"
	"curewatch/internal/features"
	"curewatch/internal/runid"
	"curewatch/internal/series"
)

var base = time.Date(2018, 8, 29, 10, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

func TestSlopeFrontPadding(t *testing.T) {
	got := features.Slope([]float64{1, 3, 6, 10})
	want := []float64{2, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slope = %v, want %v", got, want)
		}
	}
	if got := features.Slope([]float64{7}); len(got) != 1 || got[0] != 0 {
		t.Fatalf("single value slope = %v", got)
	}
	if got := features.Slope(nil); len(got) != 0 {
		t.Fatalf("empty slope = %v", got)
	}
	for _, v := range features.Slope([]float64{4, 4, 4, 4}) {
		if v != 0 {
			t.Fatal("constant series must have zero slope")
		}
	}
}

func TestMarkLayersAndAverage(t *testing.T) {
	samples := []series.CurrentSample{
		{Timestamp: at(0), Address: 0, Value: 2},
		{Timestamp: at(0), Address: 0, Value: 4},
		{Timestamp: at(0), Address: 10, Value: 1},
		{Timestamp: at(1), Address: 0, Value: 5},
	}
	layered := features.MarkLayers(samples)
	if layered[0].Layer != 0 || layered[1].Layer != 1 || layered[2].Layer != 0 {
		t.Fatalf("layers = %+v", layered)
	}

	avg := features.Resolve(layered, features.ResolveAverage)
	if len(avg) != 3 {
		t.Fatalf("resolved %d readings, want 3", len(avg))
	}
	if avg[0].Value != 3 || avg[0].Variance != 1 {
		t.Fatalf("average = %+v, want mean 3 variance 1", avg[0])
	}

	first := features.Resolve(layered, features.ResolveFirst)
	if len(first) != 3 || first[0].Value != 2 {
		t.Fatalf("first = %+v", first)
	}

	all := features.Resolve(layered, features.ResolveKeepAll)
	if len(all) != 4 {
		t.Fatalf("keep all = %d readings", len(all))
	}
	// (ts0, layer0, addr0), (ts0, layer0, addr10), (ts0, layer1, addr0), (ts1, ...)
	if all[1].Address != 10 || all[2].Layer != 1 {
		t.Fatalf("keep all order = %+v", all)
	}
}

func TestPivotForwardFillsGaps(t *testing.T) {
	readings := []features.Resolved{
		{Timestamp: at(0), Address: 0, Value: 1},
		{Timestamp: at(0), Address: 10, Value: 10},
		{Timestamp: at(1), Address: 0, Value: 2},
		{Timestamp: at(2), Address: 10, Value: 30},
	}
	f, err := features.Pivot(readings, false)
	if err != nil {
		t.Fatal(err)
	}
	if f.Len() != 3 {
		t.Fatalf("rows = %d", f.Len())
	}
	v0, _ := f.Column("value_0")
	v10, _ := f.Column("value_10")
	if v0[2] != 2 || v10[1] != 10 || v10[2] != 30 {
		t.Fatalf("pivot v0=%v v10=%v", v0, v10)
	}
	if f.Has("var_0") {
		t.Fatal("variance column without tracking")
	}
}

func TestSmoothKeepsEdgesAndLength(t *testing.T) {
	f := series.NewFrame([]time.Time{at(0), at(1), at(2), at(3), at(4), at(5)})
	if err := f.Set("value_0", []float64{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatal(err)
	}
	features.Smooth(f, []string{"value_0"}, 3, features.Mean)
	got, _ := f.Column("value_0")
	want := []float64{1, 2, 3, 4, 5, 6}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("mean smoothing of a line = %v", got)
		}
	}

	g := series.NewFrame([]time.Time{at(0), at(1), at(2), at(3)})
	_ = g.Set("value_0", []float64{0, 3, 4, 0})
	features.Smooth(g, []string{"value_0"}, 2, features.RMS)
	rms, _ := g.Column("value_0")
	// front 0, back 1: rows 0..2 are smoothed windows [0,3],[3,4],[4,0].
	if math.Abs(rms[0]-math.Sqrt(4.5)) > 1e-12 || math.Abs(rms[1]-math.Sqrt(12.5)) > 1e-12 || rms[3] != 0 {
		t.Fatalf("rms = %v", rms)
	}

	h := series.NewFrame([]time.Time{at(0), at(1)})
	_ = h.Set("value_0", []float64{5, 9})
	features.Smooth(h, []string{"value_0"}, 2, features.Mean)
	if v, _ := h.Column("value_0"); v[0] != 5 || v[1] != 9 {
		t.Fatalf("window >= len must be a no-op, got %v", v)
	}
}

func TestParseMethod(t *testing.T) {
	if m, err := features.ParseMethod("RMS"); err != nil || m != features.RMS {
		t.Fatalf("ParseMethod(RMS) = %v, %v", m, err)
	}
	if _, err := features.ParseMethod("median"); err == nil {
		t.Fatal("expected error")
	}
}

func curingRun(t *testing.T, n int) *series.CuringRun {
	t.Helper()
	ts := make([]time.Time, n)
	pmv := make([]float64, n)
	amv := make([]float64, n)
	for i := range ts {
		ts[i] = at(i)
		pmv[i] = float64(20 + i)
		amv[i] = float64(i) * 0.5
	}
	f := series.NewFrame(ts)
	_ = f.Set("PMV", pmv)
	_ = f.Set("AMV", amv)
	id, _ := runid.Parse("OA20180829-001")
	return &series.CuringRun{ID: id, Recipe: "R1", Frame: f}
}

func currentSamples(n int, value func(i, addr int) float64) []series.CurrentSample {
	var out []series.CurrentSample
	for i := 0; i < n; i++ {
		for _, addr := range []int{0, 10, 20} {
			out = append(out, series.CurrentSample{Timestamp: at(i), Address: addr, Value: value(i, addr)})
		}
	}
	return out
}

func TestBuildFanKeepsZeros(t *testing.T) {
	run := curingRun(t, 10)
	samples := currentSamples(10, func(i, addr int) float64 {
		if i == 3 {
			return 0
		}
		return float64(addr + i)
	})
	opts, err := features.TrainingOptions(device.Fan(), config.Default().Features, align.Inner)
	if err != nil {
		t.Fatal(err)
	}
	f, err := features.Build(run, samples, device.Fan(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if f.Len() != 10 {
		t.Fatalf("rows = %d, want 10", f.Len())
	}
	for _, name := range append(device.Fan().Features(), device.Fan().Targets()...) {
		if !f.Has(name) {
			t.Fatalf("missing column %s", name)
		}
	}
}

func TestBuildHeaterTrainingDropsZeroRows(t *testing.T) {
	run := curingRun(t, 10)
	samples := currentSamples(10, func(i, addr int) float64 {
		if i >= 7 {
			return 0
		}
		return 4
	})
	cfg := config.Default().Features
	cfg.HeaterSmoothWindow = 0
	kind := device.Heater(0)

	opts, _ := features.TrainingOptions(kind, cfg, align.Inner)
	train, err := features.Build(run, samples, kind, opts)
	if err != nil {
		t.Fatal(err)
	}
	if train.Len() != 7 {
		t.Fatalf("training rows = %d, want 7", train.Len())
	}
	if !train.Has("AMV_slope") {
		t.Fatal("heater features need AMV_slope")
	}

	scoreOpts, _ := features.ScoringOptions(kind, cfg)
	scored, err := features.Build(run, samples, kind, scoreOpts)
	if err != nil {
		t.Fatal(err)
	}
	if scored.Len() != 10 {
		t.Fatalf("scoring rows = %d, want 10", scored.Len())
	}
}

func TestBuildRejectsMissingAddresses(t *testing.T) {
	run := curingRun(t, 5)
	samples := []series.CurrentSample{{Timestamp: at(0), Address: 0, Value: 1}}
	_, err := features.Build(run, samples, device.Fan(), features.Options{})
	if err == nil {
		t.Fatal("expected error for missing target addresses")
	}
}
