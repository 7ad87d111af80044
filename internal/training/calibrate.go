package training

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"curewatch/internal/modelstore"
	"curewatch/internal/statutil"
)

// ThresholdPercentile is the z-score percentile used as the anomaly threshold.
const ThresholdPercentile = 95

// ZScores returns |y - mean| / std per cell. Zero standard deviations are
// replaced by the smallest positive one (or statutil.MinStd).
func ZScores(mean *mat.Dense, std []float64, y mat.Matrix) *mat.Dense {
	rows, cols := y.Dims()
	guarded := statutil.GuardStd(std)
	z := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			z.Set(i, j, math.Abs(y.At(i, j)-mean.At(i, j))/guarded[i])
		}
	}
	return z
}

// Calibrate computes per-column thresholds and z-score summary statistics
// from held-out predictions.
func Calibrate(mean *mat.Dense, std []float64, y mat.Matrix) (modelstore.Values, modelstore.Calibration) {
	z := ZScores(mean, std, y)
	_, cols := z.Dims()
	thr := make(modelstore.Values, cols)
	cal := modelstore.Calibration{ZMean: make(modelstore.Values, cols), ZStd: make(modelstore.Values, cols)}
	for j := 0; j < cols; j++ {
		col := mat.Col(nil, j, z)
		thr[j] = statutil.Percentile(col, ThresholdPercentile)
		cal.ZMean[j], cal.ZStd[j] = statutil.PopMeanStd(col)
	}
	return thr, cal
}
