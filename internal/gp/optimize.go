package gp

import (
	"context"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const maxIterations = 200

// objective evaluates the negative log marginal likelihood and its gradient
// with respect to the log hyperparameters, remembering the best point seen.
type objective struct {
	shape Kernel
	x     *mat.Dense
	y     *mat.Dense

	lastTheta []float64
	lastF     float64
	lastGrad  []float64

	bestTheta []float64
	bestLML   float64
}

func newObjective(shape Kernel, x, y *mat.Dense) *objective {
	return &objective{shape: shape, x: x, y: y, bestLML: math.Inf(-1)}
}

func clip(theta []float64) ([]float64, []bool) {
	lo, hi := math.Log(LowerBound), math.Log(UpperBound)
	out := make([]float64, len(theta))
	clipped := make([]bool, len(theta))
	for i, v := range theta {
		switch {
		case v < lo:
			out[i], clipped[i] = lo, true
		case v > hi:
			out[i], clipped[i] = hi, true
		default:
			out[i] = v
		}
	}
	return out, clipped
}

func sameTheta(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (o *objective) evaluate(theta []float64) {
	if sameTheta(theta, o.lastTheta) {
		return
	}
	o.lastTheta = append(o.lastTheta[:0], theta...)
	bounded, clipped := clip(theta)
	lml, grad := o.lmlGrad(bounded)
	if math.IsInf(lml, -1) || math.IsNaN(lml) {
		o.lastF = math.Inf(1)
		o.lastGrad = make([]float64, len(theta))
		return
	}
	o.lastF = -lml
	o.lastGrad = make([]float64, len(theta))
	for i, g := range grad {
		if !clipped[i] {
			o.lastGrad[i] = -g
		}
	}
	if lml > o.bestLML {
		o.bestLML = lml
		o.bestTheta = bounded
	}
}

// lmlGrad computes the log marginal likelihood and its gradient:
//
//	∂L/∂θ = ½ Σᵢⱼ (Σₖ αᵢₖαⱼₖ − m·K⁻¹ᵢⱼ) ∂Kᵢⱼ/∂θ
func (o *objective) lmlGrad(theta []float64) (float64, []float64) {
	k := o.shape.WithTheta(theta)
	n, _ := o.x.Dims()
	_, m := o.y.Dims()

	var chol mat.Cholesky
	if !chol.Factorize(gram(k, o.x)) {
		return math.Inf(-1), nil
	}
	var alpha mat.Dense
	if err := chol.SolveTo(&alpha, o.y); err != nil {
		return math.Inf(-1), nil
	}
	lml := logMarginal(&chol, o.y, &alpha)

	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return math.Inf(-1), nil
	}

	var gNoise, gSigma, gAmp, gLength float64
	l2 := k.Length * k.Length
	for i := 0; i < n; i++ {
		xi := o.x.RawRowView(i)
		ai := alpha.RawRowView(i)
		for j := i; j < n; j++ {
			aj := alpha.RawRowView(j)
			var aa float64
			for c := 0; c < m; c++ {
				aa += ai[c] * aj[c]
			}
			w := aa - float64(m)*inv.At(i, j)
			if i != j {
				w *= 2
			} else {
				gNoise += w
			}
			_, rbf, sq := k.terms(xi, o.x.RawRowView(j))
			gSigma += w
			gAmp += w * rbf
			gLength += w * rbf * sq / l2
		}
	}
	grad := []float64{
		0.5 * gNoise * k.Noise,
		0.5 * gSigma * 2 * k.Sigma0 * k.Sigma0,
	}
	if k.Scaled() {
		grad = append(grad, 0.5*gAmp)
	}
	grad = append(grad, 0.5*gLength)
	return lml, grad
}

func (o *objective) run(start []float64) {
	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			o.evaluate(theta)
			return o.lastF
		},
		Grad: func(grad, theta []float64) {
			o.evaluate(theta)
			copy(grad, o.lastGrad)
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-5,
		MajorIterations:   maxIterations,
	}
	o.evaluate(start)
	// A failed line search still leaves the best evaluated point behind.
	_, _ = optimize.Minimize(problem, start, settings, &optimize.LBFGS{})
}

func optimizeKernel(ctx context.Context, x, y *mat.Dense, opts Options) (Kernel, error) {
	obj := newObjective(opts.Kernel, x, y)
	obj.run(opts.Kernel.Theta())

	if opts.Restarts > 0 {
		rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
		lo, hi := math.Log(LowerBound), math.Log(UpperBound)
		dims := len(opts.Kernel.Theta())
		for r := 0; r < opts.Restarts; r++ {
			if err := ctx.Err(); err != nil {
				return Kernel{}, err
			}
			start := make([]float64, dims)
			for i := range start {
				start[i] = lo + rng.Float64()*(hi-lo)
			}
			obj.lastTheta = nil
			obj.run(start)
		}
	}
	if obj.bestTheta == nil {
		return Kernel{}, ErrNotPositiveDefinite
	}
	return opts.Kernel.WithTheta(obj.bestTheta), nil
}
