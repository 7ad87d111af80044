package features

import (
	"curewatch/internal/faults"
	"curewatch/internal/series"
)

// ProcessColumns are the curing variables carried into the feature frame.
var ProcessColumns = []string{"PMV", "AMV"}

// Slope returns the first difference of values, front-padded by repeating the
// first difference so the result has the same length as the input.
func Slope(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) < 2 {
		return out
	}
	for i := 1; i < len(values); i++ {
		out[i] = values[i] - values[i-1]
	}
	out[0] = out[1]
	return out
}

// CuringFeatures projects a curing run onto PMV, AMV and their slopes.
func CuringFeatures(run *series.CuringRun) (*series.Frame, error) {
	if !run.Frame.Has(ProcessColumns...) {
		return nil, faults.Wrap(faults.ErrValidation, "features", "curing", run.ID.String()+" lacks PMV/AMV columns", nil)
	}
	out := series.NewFrame(run.Frame.Timestamps)
	for _, name := range ProcessColumns {
		col, _ := run.Frame.Column(name)
		if err := out.Set(name, append([]float64(nil), col...)); err != nil {
			return nil, err
		}
	}
	for _, name := range ProcessColumns {
		col, _ := run.Frame.Column(name)
		if err := out.Set(name+"_slope", Slope(col)); err != nil {
			return nil, err
		}
	}
	return out, nil
}
