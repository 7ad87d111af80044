package scoring_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"curewatch/internal/config"
	"curewatch/internal/device"
	"curewatch/internal/faults"
	"curewatch/internal/features"
	"curewatch/internal/gp"
	"curewatch/internal/logging"
	"curewatch/internal/modelstore"
	"curewatch/internal/scoring"
	"curewatch/internal/testsupport"
	"curewatch/internal/training"
)

const runID = "OA20180829-001"

var start = time.Date(2018, 8, 29, 8, 0, 0, 0, time.UTC)

func writeFanRun(t *testing.T, cfg *config.Config, n int) []testsupport.CuringRow {
	t.Helper()
	rows := testsupport.RampRows(start, n, 10*time.Second)
	testsupport.WriteRun(t, cfg.Paths.DataDir, runID, "R1", "current_fan.csv", rows,
		testsupport.CurrentFor(rows, testsupport.LinearCurrent))
	return rows
}

// storeModel fits a small model on rows and stores it under key in dir.
func storeModel(t *testing.T, dir string, kind device.Kind, key, recipe string, rows []testsupport.CuringRow) {
	t.Helper()
	cols := len(kind.Features())
	x := mat.NewDense(len(rows), cols, nil)
	y := mat.NewDense(len(rows), 3, nil)
	for i, r := range rows {
		x.Set(i, 0, r.PMV)
		x.Set(i, 1, r.AMV)
		for j, addr := range []int{0, 10, 20} {
			y.Set(i, j, testsupport.LinearCurrent(r, addr))
		}
	}
	model, err := gp.Fit(context.Background(), x, y, gp.Options{Kernel: gp.Kernel{Noise: 0.01, Sigma0: 1, Length: 5}, NormalizeY: true})
	if err != nil {
		t.Fatal(err)
	}
	store, err := modelstore.Open(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	entry := modelstore.Entry{
		Device:    kind.String(),
		Autoclave: "OA",
		GroupKey:  key,
		Recipe:    recipe,
		Threshold: modelstore.Values{2, 2, 2},
		XFeatures: kind.Features(),
		YFeatures: kind.Targets(),
	}.WithModel(model)
	if err := store.Put(context.Background(), []modelstore.Entry{entry}); err != nil {
		t.Fatal(err)
	}
}

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestScoreWritesPredictionsThenSkips(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rows := writeFanRun(t, cfg, 100)
	storeModel(t, cfg.Paths.ModelDir, device.Fan(), "R1", "R1", rows)

	svc := &scoring.Service{Config: cfg, Logger: logging.NewNop()}
	res, err := svc.Score(context.Background(), scoring.Request{RunID: runID, Device: device.Fan()})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != scoring.StatusScored || res.Match != modelstore.MatchExact || res.Rows != 100 {
		t.Fatalf("result = %+v", res)
	}

	lines := readLines(t, res.CSVPath)
	if len(lines) != 101 {
		t.Fatalf("csv lines = %d, want 101", len(lines))
	}
	if lines[0] != "timestamp,PMV,AMV,value_0,value_10,value_20,mean_0,mean_10,mean_20,std" {
		t.Fatalf("header = %s", lines[0])
	}
	for _, line := range lines[1:] {
		requirePredicted(t, line)
	}

	identity := readJSON(t, res.JSONPath)
	if identity["model_autoclave"] != "OA" || identity["model_recipe"] != "R1" {
		t.Fatalf("identity = %v", identity)
	}
	for _, key := range []string{"model_z_thr", "z_mean", "z_std", "z_score"} {
		if v, ok := identity[key].([]any); !ok || len(v) != 3 {
			t.Fatalf("%s = %v", key, identity[key])
		}
	}

	again, err := svc.Score(context.Background(), scoring.Request{RunID: runID, Device: device.Fan()})
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != scoring.StatusUpToDate {
		t.Fatalf("second score status = %v, want up_to_date", again.Status)
	}
}

func TestScoreRescoresWhenModelChanges(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rows := writeFanRun(t, cfg, 40)
	storeModel(t, cfg.Paths.ModelDir, device.Fan(), "all", "all", rows)

	svc := &scoring.Service{Config: cfg, Logger: logging.NewNop()}
	res, err := svc.Score(context.Background(), scoring.Request{RunID: runID, Device: device.Fan()})
	if err != nil || res.Match != modelstore.MatchPooled {
		t.Fatalf("first score = %+v, %v", res, err)
	}

	storeModel(t, cfg.Paths.ModelDir, device.Fan(), "R1", "R1", rows)
	res, err = svc.Score(context.Background(), scoring.Request{RunID: runID, Device: device.Fan()})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != scoring.StatusScored || res.Identity.ModelRecipe != "R1" {
		t.Fatalf("rescore = %+v", res)
	}
}

func TestScoreFallsBackToDefaultStore(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDefaultModelDir())
	rows := writeFanRun(t, cfg, 40)
	storeModel(t, cfg.Paths.DefaultModelDir, device.Fan(), "all", "all", rows)

	svc := &scoring.Service{Config: cfg, Logger: logging.NewNop()}
	res, err := svc.Score(context.Background(), scoring.Request{RunID: runID, Device: device.Fan(), Name: "OA20180829-001-fan"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Match != modelstore.MatchDefaultPooled || filepath.Base(res.CSVPath) != "OA20180829-001-fan.csv" {
		t.Fatalf("result = %+v", res)
	}
}

func TestScoreWithoutModelWritesBareOutputs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeFanRun(t, cfg, 20)

	svc := &scoring.Service{Config: cfg, Logger: logging.NewNop()}
	res, err := svc.Score(context.Background(), scoring.Request{RunID: runID, Device: device.Fan()})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != scoring.StatusNoModel {
		t.Fatalf("status = %v", res.Status)
	}
	lines := readLines(t, res.CSVPath)
	if lines[0] != "timestamp,PMV,AMV,value_0,value_10,value_20" {
		t.Fatalf("header = %s", lines[0])
	}
	if identity := readJSON(t, res.JSONPath); len(identity) != 0 {
		t.Fatalf("identity = %v, want empty", identity)
	}
}

func TestScoreHeaterMasksSwitchedOffRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Features.HeaterSmoothWindow = 0
	rows := testsupport.RampRows(start, 30, time.Minute)
	current := testsupport.CurrentFor(rows, func(r testsupport.CuringRow, addr int) float64 {
		if r.Time.Sub(start) >= 25*time.Minute {
			return 0
		}
		return testsupport.LinearCurrent(r, addr)
	})
	kind := device.Heater(1)
	testsupport.WriteRun(t, cfg.Paths.DataDir, runID, "R1", kind.CurrentFile(), rows, current)

	// Heater models take AMV_slope as a third input.
	cols := len(kind.Features())
	x := mat.NewDense(len(rows), cols, nil)
	y := mat.NewDense(len(rows), 3, nil)
	slope := features.Slope(amvs(rows))
	for i, r := range rows {
		x.SetRow(i, []float64{r.PMV, r.AMV, slope[i]})
		y.SetRow(i, []float64{testsupport.LinearCurrent(r, 0), testsupport.LinearCurrent(r, 10), testsupport.LinearCurrent(r, 20)})
	}
	model, err := gp.Fit(context.Background(), x, y, gp.Options{Kernel: gp.Kernel{Noise: 0.01, Sigma0: 1, Length: 5, Amplitude: 1}, NormalizeY: true})
	if err != nil {
		t.Fatal(err)
	}
	store, err := modelstore.Open(context.Background(), cfg.Paths.ModelDir)
	if err != nil {
		t.Fatal(err)
	}
	entry := modelstore.Entry{Device: kind.String(), Autoclave: "OA", GroupKey: "R11", Recipe: "R1", Threshold: modelstore.Values{1, 1, 1}}.WithModel(model)
	if err := store.Put(context.Background(), []modelstore.Entry{entry}); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	svc := &scoring.Service{Config: cfg, Logger: logging.NewNop()}
	res, err := svc.Score(context.Background(), scoring.Request{RunID: runID, Device: kind})
	if err != nil {
		t.Fatal(err)
	}
	lines := readLines(t, res.CSVPath)
	if len(lines) != 31 {
		t.Fatalf("csv lines = %d, want 31", len(lines))
	}
	if !strings.HasSuffix(lines[30], ",0,0,0,,,,") {
		t.Fatalf("switched-off row not masked: %s", lines[30])
	}
	if strings.HasSuffix(lines[1], ",,,,") {
		t.Fatalf("active row masked: %s", lines[1])
	}
	if len(res.Identity.ZScore) != 3 {
		t.Fatalf("z summary = %+v", res.Identity)
	}
}

func TestScoreFanKeepsZeroCurrentRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Features.FanSmoothWindow = 0
	rows := testsupport.RampRows(start, 30, time.Minute)
	current := testsupport.CurrentFor(rows, func(r testsupport.CuringRow, addr int) float64 {
		if r.Time.Sub(start) >= 25*time.Minute {
			return 0
		}
		return testsupport.LinearCurrent(r, addr)
	})
	testsupport.WriteRun(t, cfg.Paths.DataDir, runID, "R1", "current_fan.csv", rows, current)
	storeModel(t, cfg.Paths.ModelDir, device.Fan(), "R1", "R1", rows)

	svc := &scoring.Service{Config: cfg, Logger: logging.NewNop()}
	res, err := svc.Score(context.Background(), scoring.Request{RunID: runID, Device: device.Fan()})
	if err != nil {
		t.Fatal(err)
	}
	lines := readLines(t, res.CSVPath)
	if len(lines) != 31 {
		t.Fatalf("csv lines = %d, want 31", len(lines))
	}
	for _, line := range lines[26:] {
		fields := strings.Split(line, ",")
		if fields[3] != "0" || fields[4] != "0" || fields[5] != "0" {
			t.Fatalf("expected zero current in %s", line)
		}
		requirePredicted(t, line)
	}
	if len(res.Identity.ZScore) != 3 {
		t.Fatalf("z summary = %+v", res.Identity)
	}
}

// requirePredicted fails unless every mean_* and std cell of a CSV row is set.
func requirePredicted(t *testing.T, line string) {
	t.Helper()
	fields := strings.Split(line, ",")
	if len(fields) != 10 {
		t.Fatalf("row has %d fields: %s", len(fields), line)
	}
	for _, cell := range fields[6:] {
		if cell == "" {
			t.Fatalf("missing prediction in %s", line)
		}
	}
}

func TestTrainThenScoreRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ids := []string{runID, "OA20180830-001", "OA20180831-001", "OA20180901-001"}
	for i, id := range ids {
		rows := testsupport.RampRows(start.AddDate(0, 0, i), 100, 10*time.Second)
		testsupport.WriteRun(t, cfg.Paths.DataDir, id, "R1", "current_fan.csv", rows,
			testsupport.CurrentFor(rows, testsupport.LinearCurrent))
	}

	pipeline := &training.Pipeline{Config: cfg, Logger: logging.NewNop()}
	report, err := pipeline.Run(context.Background(), training.Options{Device: device.Fan(), Recipe: "R1"})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range report.Entries {
		if len(e.Threshold) != 3 {
			t.Fatalf("entry %s threshold = %v, want 3 values", e.GroupKey, e.Threshold)
		}
	}

	svc := &scoring.Service{Config: cfg, Logger: logging.NewNop()}
	res, err := svc.Score(context.Background(), scoring.Request{RunID: runID, Device: device.Fan()})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != scoring.StatusScored || res.Rows != 100 {
		t.Fatalf("result = %+v", res)
	}
	lines := readLines(t, res.CSVPath)
	if len(lines) != 101 {
		t.Fatalf("csv lines = %d, want 101", len(lines))
	}
	for _, line := range lines[1:] {
		requirePredicted(t, line)
	}
	identity := readJSON(t, res.JSONPath)
	if thr, ok := identity["model_z_thr"].([]any); !ok || len(thr) != 3 {
		t.Fatalf("model_z_thr = %v", identity["model_z_thr"])
	}
}

func amvs(rows []testsupport.CuringRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.AMV
	}
	return out
}

func TestScoreRejectsBadRunID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := &scoring.Service{Config: cfg, Logger: logging.NewNop()}
	_, err := svc.Score(context.Background(), scoring.Request{RunID: "not-a-run", Device: device.Fan()})
	if !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}
