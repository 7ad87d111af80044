package statutil_test

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"curewatch/internal/statutil"
)

func TestPercentileLinear(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	cases := map[float64]float64{0: 1, 50: 2.5, 95: 3.85, 100: 4}
	for q, want := range cases {
		if got := statutil.Percentile(values, q); math.Abs(got-want) > 1e-12 {
			t.Fatalf("Percentile(%v) = %v, want %v", q, got, want)
		}
	}
	if got := statutil.Percentile([]float64{math.NaN(), 5}, 95); got != 5 {
		t.Fatalf("NaN must be ignored, got %v", got)
	}
	if !math.IsNaN(statutil.Percentile(nil, 50)) {
		t.Fatal("empty percentile must be NaN")
	}
}

func TestGuardStd(t *testing.T) {
	got := statutil.GuardStd([]float64{0, 0.5, 2})
	if got[0] != 0.5 || got[1] != 0.5 || got[2] != 2 {
		t.Fatalf("GuardStd = %v", got)
	}
	got = statutil.GuardStd([]float64{0, 0})
	if got[0] != statutil.MinStd {
		t.Fatalf("all-zero guard = %v", got)
	}
}

func TestPopMeanStd(t *testing.T) {
	mean, std := statutil.PopMeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 || math.Abs(std-2) > 1e-12 {
		t.Fatalf("mean=%v std=%v", mean, std)
	}
}

func TestR2AndMSE(t *testing.T) {
	y := mat.NewDense(3, 2, []float64{1, 5, 2, 5, 3, 5})
	if r2 := statutil.R2(y, y); r2 != 1 {
		t.Fatalf("perfect R2 = %v", r2)
	}
	pred := mat.NewDense(3, 2, []float64{2, 5, 2, 5, 2, 5})
	// column 0: ssRes=2, ssTot=2 -> 0; column 1 constant and exact -> 1.
	if r2 := statutil.R2(y, pred); math.Abs(r2-0.5) > 1e-12 {
		t.Fatalf("R2 = %v, want 0.5", r2)
	}
	if mse := statutil.MSE(y, pred); math.Abs(mse-2.0/6) > 1e-12 {
		t.Fatalf("MSE = %v", mse)
	}
}
