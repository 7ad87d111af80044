package features

import (
	"fmt"
	"math"
	"strings"

	"curewatch/internal/series"
)

// Method selects the smoothing kernel.
type Method int

const (
	// Mean is a centered moving average.
	Mean Method = iota
	// RMS squares, averages, then takes the square root.
	RMS
)

// ParseMethod accepts "mean" and "rms".
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mean":
		return Mean, nil
	case "rms":
		return RMS, nil
	default:
		return Mean, fmt.Errorf("unknown smoothing method %q", s)
	}
}

func (m Method) String() string {
	if m == RMS {
		return "rms"
	}
	return "mean"
}

// Smooth replaces each named column by its centered moving mean (or RMS)
// over window samples. The first (window-1)/2 and the last
// window-1-(window-1)/2 samples keep their original values so the series
// length is unchanged. Windows outside (0, rows) leave the frame untouched.
func Smooth(f *series.Frame, columns []string, window int, method Method) {
	n := f.Len()
	if window <= 0 || window >= n {
		return
	}
	front := (window - 1) / 2
	for _, name := range columns {
		col, ok := f.Column(name)
		if !ok {
			continue
		}
		work := make([]float64, n)
		for i, v := range col {
			if method == RMS {
				v *= v
			}
			work[i] = v
		}
		smoothed := movingAverage(work, window)
		for i, v := range smoothed {
			work[front+i] = v
		}
		if method == RMS {
			for i := range work {
				work[i] = math.Sqrt(work[i])
			}
		}
		_ = f.Set(name, work)
	}
}

// movingAverage is the fully overlapping ("valid") convolution with a box of
// width w: len(values)-w+1 outputs. Each window is summed independently so a
// missing value only affects the windows that contain it.
func movingAverage(values []float64, w int) []float64 {
	out := make([]float64, len(values)-w+1)
	for i := range out {
		var sum float64
		for _, v := range values[i : i+w] {
			sum += v
		}
		out[i] = sum / float64(w)
	}
	return out
}
