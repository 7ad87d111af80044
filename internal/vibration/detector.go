package vibration

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/mat"

	"curewatch/internal/faults"
)

// Components is the number of principal components kept.
const Components = 2

// Detector is a fitted vibration outlier model for one recipe, oven, sensor
// type and axis.
type Detector struct {
	Name   string           `json:"name"`
	Bins   []int            `json:"bins"`
	First  Scaler           `json:"first"`
	PCA    Projection       `json:"pca"`
	Second Scaler           `json:"second"`
	Forest *IsolationForest `json:"forest"`
}

// Evaluation is a detector's verdict for every time segment.
type Evaluation struct {
	Anomaly   []int
	Scores    []float64
	Anomalies int
	Normals   int
}

// Rate returns anomalies per normal segment. It is zero when either count is
// zero.
func (e Evaluation) Rate() float64 {
	if e.Anomalies == 0 || e.Normals == 0 {
		return 0
	}
	return float64(e.Anomalies) / float64(e.Normals)
}

// DetectorName builds the composite key recipe-oven-axis, with the sensor
// type inserted before the axis for non-fan sensors.
func DetectorName(recipe, oven, sensorType, axis string) string {
	parts := []string{recipe, strings.ToUpper(oven)}
	if t := strings.ToLower(sensorType); t != "" && t != "fan" {
		parts = append(parts, t)
	}
	return strings.Join(append(parts, strings.ToUpper(axis)), "-")
}

// BinMatrix gathers the selected bins of every segment into a
// segments × bins matrix.
func BinMatrix(spec *Spectrogram, bins []int) (*mat.Dense, error) {
	n := spec.Segments()
	if n == 0 {
		return nil, faults.Wrap(faults.ErrValidation, "vibration", "features", "spectrogram has no segments", nil)
	}
	out := mat.NewDense(n, len(bins), nil)
	for j, b := range bins {
		if b < 0 || b >= spec.Bins() {
			return nil, fmt.Errorf("bin %d outside spectrogram of %d bins", b, spec.Bins())
		}
		for i := 0; i < n; i++ {
			out.Set(i, j, spec.Power.At(b, i))
		}
	}
	return out, nil
}

// FitDetector fits scaler, projection, scaler and forest on the selected
// bins of spec.
func FitDetector(name string, spec *Spectrogram, bins []int, opts ForestOptions, rng *rand.Rand) (*Detector, error) {
	x, err := BinMatrix(spec, bins)
	if err != nil {
		return nil, err
	}
	d := &Detector{Name: name, Bins: bins}
	d.First = FitScaler(x)
	scaled, err := d.First.Transform(x)
	if err != nil {
		return nil, err
	}
	d.PCA, err = FitPCA(scaled, Components)
	if err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "vibration", "pca", name, err)
	}
	projected, err := d.PCA.Transform(scaled)
	if err != nil {
		return nil, err
	}
	d.Second = FitScaler(projected)
	reduced, err := d.Second.Transform(projected)
	if err != nil {
		return nil, err
	}
	d.Forest, err = FitForest(reduced, opts, rng)
	if err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "vibration", "forest", name, err)
	}
	return d, nil
}

// Reduce maps a spectrogram into the detector's two-component space.
func (d *Detector) Reduce(spec *Spectrogram) (*mat.Dense, error) {
	x, err := BinMatrix(spec, d.Bins)
	if err != nil {
		return nil, err
	}
	scaled, err := d.First.Transform(x)
	if err != nil {
		return nil, err
	}
	projected, err := d.PCA.Transform(scaled)
	if err != nil {
		return nil, err
	}
	return d.Second.Transform(projected)
}

// Evaluate labels every segment of spec.
func (d *Detector) Evaluate(spec *Spectrogram) (Evaluation, error) {
	reduced, err := d.Reduce(spec)
	if err != nil {
		return Evaluation{}, err
	}
	ev := Evaluation{Scores: d.Forest.ScoreSamples(reduced)}
	ev.Anomaly = make([]int, len(ev.Scores))
	for i, s := range ev.Scores {
		if s < d.Forest.Offset {
			ev.Anomaly[i] = 1
			ev.Anomalies++
		} else {
			ev.Normals++
		}
	}
	return ev, nil
}

// NormalizeRate expresses rate in standard deviations from the historical
// mean. It is zero when the statistics are missing or degenerate, or when the
// evaluation had no anomalies or no normal segments.
func NormalizeRate(ev Evaluation, mean, std *float64) float64 {
	if ev.Anomalies == 0 || ev.Normals == 0 || mean == nil || std == nil {
		return 0
	}
	if *std == 0 || math.IsNaN(*std) || math.IsNaN(*mean) {
		return 0
	}
	return (ev.Rate() - *mean) / *std
}
