package vibration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"

	"curewatch/internal/faults"
)

// STFT configures the short-time Fourier transform.
type STFT struct {
	SampleRate   float64
	WindowLength int
	Overlap      int
	TukeyAlpha   float64
}

// Spectrogram is a one-sided power spectrum per time segment. Power has one
// row per frequency bin and one column per segment; Times are segment
// centers in seconds from the first sample.
type Spectrogram struct {
	Freqs []float64
	Times []float64
	Power *mat.Dense
}

// Bins returns the number of frequency bins.
func (s *Spectrogram) Bins() int { return len(s.Freqs) }

// Segments returns the number of time segments.
func (s *Spectrogram) Segments() int { return len(s.Times) }

// Tukey returns a tapered-cosine window of n points. A periodic window is
// the first n points of the symmetric window of n+1 points, as used for
// spectral analysis.
func Tukey(n int, alpha float64, periodic bool) []float64 {
	m := n
	if periodic {
		m = n + 1
	}
	w := make([]float64, m)
	switch {
	case m == 1:
		w[0] = 1
	case alpha <= 0:
		for i := range w {
			w[i] = 1
		}
	default:
		alpha = math.Min(alpha, 1)
		width := int(math.Floor(alpha * float64(m-1) / 2))
		for i := range w {
			x := float64(i)
			switch {
			case i <= width:
				w[i] = 0.5 * (1 + math.Cos(math.Pi*(-1+2*x/alpha/float64(m-1))))
			case i < m-width-1:
				w[i] = 1
			default:
				w[i] = 0.5 * (1 + math.Cos(math.Pi*(-2/alpha+1+2*x/alpha/float64(m-1))))
			}
		}
	}
	return w[:n]
}

// ComputeSpectrogram splits samples into segments of WindowLength with the
// given overlap, removes each segment's mean, applies the Tukey window and
// returns |FFT|² scaled by 1/(Σw)², doubled for every bin except DC and
// Nyquist.
func ComputeSpectrogram(samples []float64, cfg STFT) (*Spectrogram, error) {
	n := cfg.WindowLength
	step := n - cfg.Overlap
	if n <= 0 || step <= 0 {
		return nil, fmt.Errorf("invalid STFT window %d with overlap %d", n, cfg.Overlap)
	}
	if len(samples) < n {
		return nil, faults.Wrap(faults.ErrValidation, "vibration", "spectrogram",
			fmt.Sprintf("%d samples is shorter than one %d-point segment", len(samples), n), nil)
	}
	segments := (len(samples) - cfg.Overlap) / step
	win := Tukey(n, cfg.TukeyAlpha, true)
	var wsum float64
	for _, v := range win {
		wsum += v
	}
	scale := 1 / (wsum * wsum)

	bins := n/2 + 1
	fft := fourier.NewFFT(n)
	power := mat.NewDense(bins, segments, nil)
	seg := make([]float64, n)
	coeff := make([]complex128, bins)
	for s := 0; s < segments; s++ {
		chunk := samples[s*step : s*step+n]
		var mean float64
		for _, v := range chunk {
			mean += v
		}
		mean /= float64(n)
		for i, v := range chunk {
			seg[i] = (v - mean) * win[i]
		}
		fft.Coefficients(coeff, seg)
		for k, c := range coeff {
			p := (real(c)*real(c) + imag(c)*imag(c)) * scale
			if k != 0 && !(n%2 == 0 && k == bins-1) {
				p *= 2
			}
			power.Set(k, s, p)
		}
	}

	spec := &Spectrogram{
		Freqs: make([]float64, bins),
		Times: make([]float64, segments),
		Power: power,
	}
	for k := range spec.Freqs {
		spec.Freqs[k] = float64(k) * cfg.SampleRate / float64(n)
	}
	for s := range spec.Times {
		spec.Times[s] = (float64(n)/2 + float64(s*step)) / cfg.SampleRate
	}
	return spec, nil
}
