package gp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"curewatch/internal/statutil"
)

// ErrNotPositiveDefinite is returned when the Gram matrix cannot be factorized.
var ErrNotPositiveDefinite = errors.New("gp: kernel matrix is not positive definite")

// predictBatch bounds the number of query rows whose cross-covariance is held
// in memory at once.
const predictBatch = 1000

// Options configures a fit.
type Options struct {
	// Kernel is the starting point of the optimizer, or the final kernel
	// when Optimize is false.
	Kernel   Kernel
	Optimize bool
	// Restarts is the number of extra optimizer runs from random log-uniform
	// starting points inside the bounds.
	Restarts int
	// NormalizeY centers each target column before fitting.
	NormalizeY bool
	Seed       uint64
}

// Regressor is a fitted Gaussian process. It is immutable after Fit.
type Regressor struct {
	kernel     Kernel
	normalizeY bool
	x          *mat.Dense
	y          *mat.Dense
	yMean      []float64
	chol       mat.Cholesky
	alpha      *mat.Dense
	lml        float64
}

// Fit trains a regressor on x (n×d) and y (n×m).
func Fit(ctx context.Context, x, y *mat.Dense, opts Options) (*Regressor, error) {
	n, _ := x.Dims()
	ny, m := y.Dims()
	if n == 0 {
		return nil, errors.New("gp: no training rows")
	}
	if n != ny {
		return nil, fmt.Errorf("gp: %d input rows for %d target rows", n, ny)
	}
	if err := opts.Kernel.Validate(); err != nil {
		return nil, err
	}

	yMean := make([]float64, m)
	centered := mat.DenseCopyOf(y)
	if opts.NormalizeY {
		for j := 0; j < m; j++ {
			col := mat.Col(nil, j, y)
			var sum float64
			for _, v := range col {
				sum += v
			}
			yMean[j] = sum / float64(n)
			for i := range col {
				centered.Set(i, j, col[i]-yMean[j])
			}
		}
	}

	kernel := opts.Kernel
	if opts.Optimize {
		fitted, err := optimizeKernel(ctx, x, centered, opts)
		if err != nil {
			return nil, err
		}
		kernel = fitted
	}

	r := &Regressor{
		kernel:     kernel,
		normalizeY: opts.NormalizeY,
		x:          mat.DenseCopyOf(x),
		y:          mat.DenseCopyOf(y),
		yMean:      yMean,
	}
	if err := r.factorize(centered); err != nil {
		return nil, err
	}
	return r, nil
}

// gram builds the training covariance including noise and jitter.
func gram(k Kernel, x *mat.Dense) *mat.SymDense {
	n, _ := x.Dims()
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		xi := x.RawRowView(i)
		for j := i; j < n; j++ {
			v, _, _ := k.terms(xi, x.RawRowView(j))
			if i == j {
				v += k.Noise + jitter
			}
			data[i*n+j] = v
			data[j*n+i] = v
		}
	}
	return mat.NewSymDense(n, data)
}

func (r *Regressor) factorize(centered *mat.Dense) error {
	if ok := r.chol.Factorize(gram(r.kernel, r.x)); !ok {
		return fmt.Errorf("%w: %s", ErrNotPositiveDefinite, r.kernel)
	}
	var alpha mat.Dense
	if err := r.chol.SolveTo(&alpha, centered); err != nil {
		return fmt.Errorf("gp: solve: %w", err)
	}
	r.alpha = &alpha
	r.lml = logMarginal(&r.chol, centered, &alpha)
	return nil
}

func logMarginal(chol *mat.Cholesky, y, alpha *mat.Dense) float64 {
	n, m := y.Dims()
	var fit float64
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			fit += y.At(i, j) * alpha.At(i, j)
		}
	}
	return -0.5*fit - 0.5*float64(m)*chol.LogDet() - 0.5*float64(m*n)*math.Log(2*math.Pi)
}

// Kernel returns the fitted kernel.
func (r *Regressor) Kernel() Kernel { return r.kernel }

// LogMarginalLikelihood of the training targets under the fitted kernel.
func (r *Regressor) LogMarginalLikelihood() float64 { return r.lml }

// Rows returns the number of training rows.
func (r *Regressor) Rows() int {
	n, _ := r.x.Dims()
	return n
}

// Predict returns the posterior mean (rows×targets) and the posterior
// standard deviation, which is shared by every target column.
func (r *Regressor) Predict(x mat.Matrix) (*mat.Dense, []float64, error) {
	rows, d := x.Dims()
	_, trainD := r.x.Dims()
	if d != trainD {
		return nil, nil, fmt.Errorf("gp: predict with %d features, trained on %d", d, trainD)
	}
	n, _ := r.x.Dims()
	_, m := r.alpha.Dims()
	mean := mat.NewDense(rows, m, nil)
	std := make([]float64, rows)
	query := mat.DenseCopyOf(x)

	for start := 0; start < rows; start += predictBatch {
		end := min(start+predictBatch, rows)
		b := end - start
		ks := mat.NewDense(b, n, nil)
		for i := 0; i < b; i++ {
			qi := query.RawRowView(start + i)
			row := ks.RawRowView(i)
			for j := 0; j < n; j++ {
				row[j], _, _ = r.kernel.terms(qi, r.x.RawRowView(j))
			}
		}

		var mu mat.Dense
		mu.Mul(ks, r.alpha)
		var solved mat.Dense
		if err := r.chol.SolveTo(&solved, ks.T()); err != nil {
			return nil, nil, fmt.Errorf("gp: predictive variance: %w", err)
		}
		for i := 0; i < b; i++ {
			for j := 0; j < m; j++ {
				mean.Set(start+i, j, mu.At(i, j)+r.yMean[j])
			}
			v := r.kernel.diag(query.RawRowView(start+i))
			row := ks.RawRowView(i)
			for j := 0; j < n; j++ {
				v -= row[j] * solved.At(j, i)
			}
			if v < 0 {
				v = 0
			}
			std[start+i] = math.Sqrt(v)
		}
	}
	return mean, std, nil
}

// Score returns the uniform-average R² of the prediction on x against y.
func (r *Regressor) Score(x, y *mat.Dense) (float64, error) {
	mean, _, err := r.Predict(x)
	if err != nil {
		return 0, err
	}
	return statutil.R2(y, mean), nil
}
