// Package metrics records Prometheus metrics for training and scoring runs.
// Batch commands export them through the node-exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns a private registry. A nil *Recorder discards every
// observation.
type Recorder struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	modelR2       *prometheus.GaugeVec
	modelRows     *prometheus.GaugeVec
	threshold     *prometheus.GaugeVec
	scored        *prometheus.CounterVec
	zScore        *prometheus.GaugeVec
	anomalyRate   *prometheus.GaugeVec
	anomalyScore  *prometheus.GaugeVec
}

// New registers the curewatch metric families on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curewatch_runs_total",
			Help: "Completed command runs by command and outcome",
		}, []string{"command", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "curewatch_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
		modelR2: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "curewatch_model_r2",
			Help: "In-sample R2 of the most recently trained model",
		}, []string{"device", "autoclave", "group"}),
		modelRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "curewatch_model_training_rows",
			Help: "Rows used to fit the most recently trained model",
		}, []string{"device", "autoclave", "group"}),
		threshold: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "curewatch_model_z_threshold",
			Help: "Calibrated z-score threshold per target column",
		}, []string{"device", "autoclave", "group", "target"}),
		scored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curewatch_scored_runs_total",
			Help: "Scoring requests by device and result status",
		}, []string{"device", "status"}),
		zScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "curewatch_run_z_score",
			Help: "Mean z-score of the most recently scored run per target",
		}, []string{"device", "target"}),
		anomalyRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "curewatch_vibration_anomaly_rate",
			Help: "Anomaly to normal ratio of the most recently scored run",
		}, []string{"detector"}),
		anomalyScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "curewatch_vibration_anomaly_score",
			Help: "Normalized anomaly rate of the most recently scored run",
		}, []string{"detector"}),
	}
	r.registry.MustRegister(r.runs, r.stageDuration, r.modelR2, r.modelRows, r.threshold,
		r.scored, r.zScore, r.anomalyRate, r.anomalyScore)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RunFinished counts a completed command.
func (r *Recorder) RunFinished(command string, err error) {
	if r == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.runs.WithLabelValues(command, outcome).Inc()
}

// ObserveStage records the duration of a stage that started at start.
func (r *Recorder) ObserveStage(stage string, start time.Time) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// ObserveModel records fit quality and calibration of a trained entry.
func (r *Recorder) ObserveModel(device, autoclave, group string, r2 float64, rows int, targets []string, thresholds []float64) {
	if r == nil {
		return
	}
	r.modelR2.WithLabelValues(device, autoclave, group).Set(r2)
	r.modelRows.WithLabelValues(device, autoclave, group).Set(float64(rows))
	for i, target := range targets {
		if i < len(thresholds) {
			r.threshold.WithLabelValues(device, autoclave, group, target).Set(thresholds[i])
		}
	}
}

// ObserveScore counts a scoring request and records its z-score summary.
func (r *Recorder) ObserveScore(device, status string, targets []string, zMean []float64) {
	if r == nil {
		return
	}
	r.scored.WithLabelValues(device, status).Inc()
	for i, target := range targets {
		if i < len(zMean) {
			r.zScore.WithLabelValues(device, target).Set(zMean[i])
		}
	}
}

// ObserveVibration records the anomaly rate and normalized score of a run.
func (r *Recorder) ObserveVibration(detector string, rate, score float64) {
	if r == nil {
		return
	}
	r.anomalyRate.WithLabelValues(detector).Set(rate)
	r.anomalyScore.WithLabelValues(detector).Set(score)
}

// WriteTextfile writes every gathered metric to path in the text exposition
// format. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
