// Package gp implements Gaussian-process regression with a composite
// White + DotProduct + RBF kernel, optionally scaling the RBF term by a
// constant amplitude. Hyperparameters are fitted by maximizing the log
// marginal likelihood in log space.
package gp

import (
	"fmt"
	"math"
)

// Hyperparameter bounds shared by every kernel term.
const (
	LowerBound = 1e-5
	UpperBound = 1e5
)

// jitter is added to the training Gram diagonal for numerical stability.
const jitter = 1e-10

// Kernel holds the positive hyperparameters of
//
//	k(x, x') = Noise·δ(x, x') + Sigma0² + x·x' + A·exp(-|x-x'|² / (2·Length²))
//
// where A is Amplitude when positive and 1 otherwise.
type Kernel struct {
	Noise     float64 `json:"noise"`
	Sigma0    float64 `json:"sigma0"`
	Length    float64 `json:"length"`
	Amplitude float64 `json:"amplitude,omitempty"`
}

// Scaled reports whether the RBF term carries a fitted amplitude.
func (k Kernel) Scaled() bool { return k.Amplitude > 0 }

func (k Kernel) amplitude() float64 {
	if k.Scaled() {
		return k.Amplitude
	}
	return 1
}

// Validate rejects non-positive hyperparameters.
func (k Kernel) Validate() error {
	if !(k.Noise > 0) || !(k.Sigma0 > 0) || !(k.Length > 0) || k.Amplitude < 0 {
		return fmt.Errorf("invalid kernel %s", k)
	}
	return nil
}

// Theta returns the log hyperparameters in the order noise, sigma0,
// amplitude (scaled kernels only), length.
func (k Kernel) Theta() []float64 {
	theta := []float64{math.Log(k.Noise), math.Log(k.Sigma0)}
	if k.Scaled() {
		theta = append(theta, math.Log(k.Amplitude))
	}
	return append(theta, math.Log(k.Length))
}

// WithTheta returns a kernel of the same shape with hyperparameters taken
// from theta.
func (k Kernel) WithTheta(theta []float64) Kernel {
	out := Kernel{Noise: math.Exp(theta[0]), Sigma0: math.Exp(theta[1])}
	if k.Scaled() {
		out.Amplitude = math.Exp(theta[2])
		out.Length = math.Exp(theta[3])
		return out
	}
	out.Length = math.Exp(theta[2])
	return out
}

func (k Kernel) String() string {
	rbf := fmt.Sprintf("RBF(length_scale=%.3g)", k.Length)
	if k.Scaled() {
		rbf = fmt.Sprintf("%.3g**2 * %s", math.Sqrt(k.Amplitude), rbf)
	}
	return fmt.Sprintf("WhiteKernel(noise_level=%.3g) + DotProduct(sigma_0=%.3g) + %s", k.Noise, k.Sigma0, rbf)
}

// terms evaluates the noise-free kernel between rows a and b of width d and
// returns the total together with the RBF contribution and the squared
// distance, which the gradient needs.
func (k Kernel) terms(a, b []float64) (total, rbf, sqdist float64) {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
		diff := a[i] - b[i]
		sqdist += diff * diff
	}
	rbf = k.amplitude() * math.Exp(-0.5*sqdist/(k.Length*k.Length))
	return k.Sigma0*k.Sigma0 + dot + rbf, rbf, sqdist
}

// diag is k(x, x) including the white-noise term.
func (k Kernel) diag(x []float64) float64 {
	var dot float64
	for _, v := range x {
		dot += v * v
	}
	return k.Sigma0*k.Sigma0 + dot + k.amplitude() + k.Noise
}
