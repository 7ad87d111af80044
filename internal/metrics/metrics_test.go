package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderObservations(t *testing.T) {
	r := New()
	r.RunFinished("train", nil)
	r.RunFinished("train", errors.New("boom"))
	r.ObserveStage("fit", time.Now().Add(-2*time.Second))
	r.ObserveModel("fan", "OA", "R1", 0.93, 5000, []string{"value_0", "value_10"}, []float64{2.5, 3})
	r.ObserveScore("fan", "scored", []string{"value_0"}, []float64{1.2})
	r.ObserveVibration("R1-OA-X", 0.02, -0.5)

	if got := testutil.ToFloat64(r.runs.WithLabelValues("train", "failure")); got != 1 {
		t.Fatalf("failure runs = %v", got)
	}
	if got := testutil.ToFloat64(r.threshold.WithLabelValues("fan", "OA", "R1", "value_10")); got != 3 {
		t.Fatalf("threshold = %v", got)
	}
	if got := testutil.ToFloat64(r.anomalyScore.WithLabelValues("R1-OA-X")); got != -0.5 {
		t.Fatalf("anomaly score = %v", got)
	}
	if n := testutil.CollectAndCount(r.stageDuration); n != 1 {
		t.Fatalf("stage series = %d", n)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.RunFinished("score", nil)
	path := filepath.Join(t.TempDir(), "curewatch.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `curewatch_runs_total{command="score",outcome="success"} 1`) {
		t.Fatalf("textfile missing run counter:\n%s", data)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.RunFinished("train", nil)
	r.ObserveVibration("x", 1, 1)
	if err := r.WriteTextfile("/nonexistent/dir/file"); err != nil {
		t.Fatal(err)
	}
}
