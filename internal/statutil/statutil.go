// Package statutil holds the small numeric helpers shared by training,
// scoring and the vibration detector.
package statutil

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MinStd replaces a zero or negative standard deviation.
const MinStd = 1e-5

// Percentile returns the q-th percentile (0..100) of values using linear
// interpolation between closest ranks, ignoring NaNs. It returns NaN for an
// empty input.
func Percentile(values []float64, q float64) float64 {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return math.NaN()
	}
	slices.Sort(sorted)
	pos := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// PopMeanStd returns the mean and population (ddof 0) standard deviation of
// the non-NaN values.
func PopMeanStd(values []float64) (mean, std float64) {
	clean := DropNaN(values)
	if len(clean) == 0 {
		return math.NaN(), math.NaN()
	}
	return stat.PopMeanStdDev(clean, nil)
}

// DropNaN returns the non-NaN values.
func DropNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// GuardStd replaces non-positive entries of std with the smallest positive
// entry, or MinStd when none is positive. The input is not modified.
func GuardStd(std []float64) []float64 {
	floor := math.Inf(1)
	for _, s := range std {
		if s > 0 && s < floor {
			floor = s
		}
	}
	if math.IsInf(floor, 1) {
		floor = MinStd
	}
	out := make([]float64, len(std))
	for i, s := range std {
		if s > 0 {
			out[i] = s
		} else {
			out[i] = floor
		}
	}
	return out
}

// R2 is the coefficient of determination averaged uniformly over the target
// columns. A column with zero variance scores 1 when predicted exactly and 0
// otherwise.
func R2(yTrue, yPred mat.Matrix) float64 {
	rows, cols := yTrue.Dims()
	if rows == 0 || cols == 0 {
		return math.NaN()
	}
	var total float64
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		var ssRes float64
		for i := 0; i < rows; i++ {
			col[i] = yTrue.At(i, j)
			d := col[i] - yPred.At(i, j)
			ssRes += d * d
		}
		mean := stat.Mean(col, nil)
		var ssTot float64
		for _, v := range col {
			ssTot += (v - mean) * (v - mean)
		}
		switch {
		case ssTot > 0:
			total += 1 - ssRes/ssTot
		case ssRes == 0:
			total++
		}
	}
	return total / float64(cols)
}

// MSE is the mean squared error averaged over every cell.
func MSE(yTrue, yPred mat.Matrix) float64 {
	rows, cols := yTrue.Dims()
	if rows == 0 || cols == 0 {
		return math.NaN()
	}
	var diff mat.Dense
	diff.Sub(yTrue, yPred)
	return floats.Dot(diff.RawMatrix().Data, diff.RawMatrix().Data) / float64(rows*cols)
}
