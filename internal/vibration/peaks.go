package vibration

import (
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/mat"

	"curewatch/internal/statutil"
)

// SelectedBins is the number of frequency bins a detector watches.
const SelectedBins = 4

// PeakWidths are the Ricker wavelet widths used to find spectral peaks.
var PeakWidths = []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}

const (
	peakMinSNR    = 1
	peakNoisePerc = 10
)

// SelectFrequencies votes for the bins that are spectral peaks in each of
// the first maxColumns segments and returns the SelectedBins most voted bins
// in descending vote order. Ties go to the lower bin.
func SelectFrequencies(spec *Spectrogram, maxColumns int) []int {
	rows, cols := spec.Power.Dims()
	if maxColumns > 0 && cols > maxColumns {
		cols = maxColumns
	}
	votes := make([]int, rows)
	column := make([]float64, rows)
	for c := 0; c < cols; c++ {
		mat.Col(column, c, spec.Power)
		for _, p := range FindPeaksCWT(column, PeakWidths) {
			votes[p]++
		}
	}

	order := make([]int, rows)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return votes[order[i]] > votes[order[j]] })
	n := min(SelectedBins, rows)
	return slices.Clone(order[:n])
}

// Ricker returns the Mexican hat wavelet of the given number of points and
// width parameter a.
func Ricker(points int, a float64) []float64 {
	amp := 2 / (math.Sqrt(3*a) * math.Pow(math.Pi, 0.25))
	wsq := a * a
	out := make([]float64, points)
	for i := range out {
		x := float64(i) - float64(points-1)/2
		xsq := x * x
		out[i] = amp * (1 - xsq/wsq) * math.Exp(-xsq/(2*wsq))
	}
	return out
}

// CWT convolves data with a Ricker wavelet of each width. Row i holds the
// response to widths[i], centered on data.
func CWT(data []float64, widths []float64) [][]float64 {
	out := make([][]float64, len(widths))
	for i, w := range widths {
		points := min(int(10*w), len(data))
		out[i] = convolveSame(data, Ricker(points, w))
	}
	return out
}

func convolveSame(data, kernel []float64) []float64 {
	n, m := len(data), len(kernel)
	size := max(n, m)
	offset := (min(n, m) - 1) / 2
	out := make([]float64, size)
	for i := range out {
		k := i + offset
		lo, hi := max(0, k-m+1), min(k, n-1)
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += data[j] * kernel[k-j]
		}
		out[i] = sum
	}
	return out
}

type ridge struct {
	rows []int
	cols []int
	gap  int
}

// FindPeaksCWT locates peaks in vector as ridge lines of relative maxima
// across the wavelet scales, keeping ridges that span at least a quarter of
// the widths and stand out from the local noise floor of the finest scale.
// The returned indices are sorted and unique.
func FindPeaksCWT(vector []float64, widths []float64) []int {
	if len(vector) == 0 || len(widths) == 0 {
		return nil
	}
	coef := CWT(vector, widths)
	maxDistances := make([]float64, len(widths))
	for i, w := range widths {
		maxDistances[i] = w / 4
	}
	gapThresh := int(math.Ceil(widths[0]))
	lines := ridgeLines(coef, maxDistances, gapThresh)

	minLength := int(math.Ceil(float64(len(widths)) / 4))
	windowSize := int(math.Ceil(float64(len(vector)) / 20))
	noises := noiseFloor(coef[0], windowSize)

	var peaks []int
	for _, line := range lines {
		if len(line.rows) < minLength {
			continue
		}
		row, col := line.rows[0], line.cols[0]
		snr := math.Abs(coef[row][col] / noises[col])
		if snr < peakMinSNR {
			continue
		}
		peaks = append(peaks, col)
	}
	slices.Sort(peaks)
	return slices.Compact(peaks)
}

func noiseFloor(row []float64, windowSize int) []float64 {
	half, odd := windowSize/2, windowSize%2
	noises := make([]float64, len(row))
	for i := range row {
		start := max(i-half, 0)
		end := min(i+half+odd, len(row))
		noises[i] = statutil.Percentile(row[start:end], peakNoisePerc)
	}
	return noises
}

// relativeMaxima reports the indices strictly greater than both neighbors.
// The end points never qualify.
func relativeMaxima(row []float64) []int {
	var idx []int
	for i := 1; i < len(row)-1; i++ {
		if row[i] > row[i-1] && row[i] > row[i+1] {
			idx = append(idx, i)
		}
	}
	return idx
}

// ridgeLines links relative maxima from the coarsest scale that has any
// down to the finest. A maximum joins the nearest open ridge within the
// row's max distance, otherwise it starts a new ridge; ridges that miss more
// than gapThresh rows are closed. Returned ridges list rows ascending.
func ridgeLines(coef [][]float64, maxDistances []float64, gapThresh int) []*ridge {
	maxima := make([][]int, len(coef))
	start := -1
	for r, row := range coef {
		maxima[r] = relativeMaxima(row)
		if len(maxima[r]) > 0 {
			start = r
		}
	}
	if start < 0 {
		return nil
	}

	open := make([]*ridge, 0, len(maxima[start]))
	for _, c := range maxima[start] {
		open = append(open, &ridge{rows: []int{start}, cols: []int{c}})
	}
	var closed []*ridge
	for row := start - 1; row >= 0; row-- {
		for _, line := range open {
			line.gap++
		}
		prev := make([]int, len(open))
		for i, line := range open {
			prev[i] = line.cols[len(line.cols)-1]
		}
		for _, col := range maxima[row] {
			var line *ridge
			if len(prev) > 0 {
				closest, best := 0, math.Inf(1)
				for i, p := range prev {
					if d := math.Abs(float64(col - p)); d < best {
						closest, best = i, d
					}
				}
				if best <= maxDistances[row] {
					line = open[closest]
				}
			}
			if line != nil {
				line.rows = append(line.rows, row)
				line.cols = append(line.cols, col)
				line.gap = 0
			} else {
				open = append(open, &ridge{rows: []int{row}, cols: []int{col}})
			}
		}
		for i := len(open) - 1; i >= 0; i-- {
			if open[i].gap > gapThresh {
				closed = append(closed, open[i])
				open = slices.Delete(open, i, i+1)
			}
		}
	}

	out := append(closed, open...)
	for _, line := range out {
		slices.Reverse(line.rows)
		slices.Reverse(line.cols)
	}
	return out
}
