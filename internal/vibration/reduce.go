package vibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes columns to zero mean and unit population variance.
// Constant columns keep a scale of one.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitScaler learns per-column mean and standard deviation of x.
func FitScaler(x mat.Matrix) Scaler {
	r, c := x.Dims()
	s := Scaler{Mean: make([]float64, c), Scale: make([]float64, c)}
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j], s.Scale[j] = mean, std
	}
	return s
}

// Transform returns the standardized copy of x.
func (s Scaler) Transform(x mat.Matrix) (*mat.Dense, error) {
	r, c := x.Dims()
	if c != len(s.Mean) {
		return nil, fmt.Errorf("scaler fitted on %d columns, got %d", len(s.Mean), c)
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, x)
	return out, nil
}

// Projection maps centered rows onto leading principal components.
// Components holds one direction per row.
type Projection struct {
	Mean       []float64   `json:"mean"`
	Components [][]float64 `json:"components"`
}

// FitPCA computes the first k principal directions of x.
func FitPCA(x mat.Matrix, k int) (Projection, error) {
	r, c := x.Dims()
	if r < 2 {
		return Projection{}, errors.New("principal components need at least two rows")
	}
	if k > c {
		k = c
	}
	var pc stat.PC
	if !pc.PrincipalComponents(x, nil) {
		return Projection{}, errors.New("principal component decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	p := Projection{Mean: make([]float64, c), Components: make([][]float64, k)}
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		p.Mean[j] = stat.Mean(col, nil)
	}
	for i := 0; i < k; i++ {
		dir := mat.Col(nil, i, &vecs)
		flipSign(dir)
		p.Components[i] = dir
	}
	return p, nil
}

// flipSign makes the largest-magnitude loading positive so repeated fits
// yield the same orientation.
func flipSign(dir []float64) {
	best := 0
	for i, v := range dir {
		if math.Abs(v) > math.Abs(dir[best]) {
			best = i
		}
	}
	if dir[best] < 0 {
		for i := range dir {
			dir[i] = -dir[i]
		}
	}
}

// Transform projects x onto the fitted components.
func (p Projection) Transform(x mat.Matrix) (*mat.Dense, error) {
	r, c := x.Dims()
	if c != len(p.Mean) {
		return nil, fmt.Errorf("projection fitted on %d columns, got %d", len(p.Mean), c)
	}
	k := len(p.Components)
	out := mat.NewDense(r, k, nil)
	for i := 0; i < r; i++ {
		for j, dir := range p.Components {
			var sum float64
			for f := 0; f < c; f++ {
				sum += (x.At(i, f) - p.Mean[f]) * dir[f]
			}
			out.Set(i, j, sum)
		}
	}
	return out, nil
}
