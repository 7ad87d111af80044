package modelstore

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"curewatch/internal/gp"
)

// PooledGroup is the group key prefix of the per-autoclave pooled model.
const PooledGroup = "all"

// Values is a float slice whose JSON form writes NaN and infinities as null.
type Values []float64

func (v Values) MarshalJSON() ([]byte, error) {
	out := make([]*float64, len(v))
	for i := range v {
		if !math.IsNaN(v[i]) && !math.IsInf(v[i], 0) {
			out[i] = &v[i]
		}
	}
	return json.Marshal(out)
}

func (v *Values) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Values, len(raw))
	for i, p := range raw {
		if p == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *p
		}
	}
	*v = out
	return nil
}

// Metrics holds in-sample fit quality.
type Metrics struct {
	R2  float64
	MSE float64
}

func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Values Values `json:"r2_mse"`
	}{Values{m.R2, m.MSE}})
}

func (m *Metrics) UnmarshalJSON(data []byte) error {
	var raw struct {
		Values Values `json:"r2_mse"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Values) != 2 {
		return fmt.Errorf("metrics: want 2 values, got %d", len(raw.Values))
	}
	m.R2, m.MSE = raw.Values[0], raw.Values[1]
	return nil
}

// Calibration summarizes held-out z-scores per target column.
type Calibration struct {
	ZMean Values `json:"z_mean"`
	ZStd  Values `json:"z_std"`
}

// Entry is one trained current model with its calibration. Entries read from
// a store rebuild their regressor from the snapshot on first use.
type Entry struct {
	Device       string      `json:"device"`
	Autoclave    string      `json:"autoclave"`
	GroupKey     string      `json:"group_key"`
	Recipe       string      `json:"recipe"`
	Kernel       gp.Kernel   `json:"kernel"`
	Metrics      Metrics     `json:"metrics"`
	Threshold    Values      `json:"threshold"`
	Calibration  Calibration `json:"calibration"`
	XFeatures    []string    `json:"x_features"`
	YFeatures    []string    `json:"y_features"`
	TrainingRows int         `json:"training_rows"`
	TrainingID   string      `json:"training_id"`
	TrainedAt    time.Time   `json:"trained_at"`
	Snapshot     gp.Snapshot `json:"snapshot"`

	lazy *lazyModel
}

type lazyModel struct {
	once  sync.Once
	model *gp.Regressor
	err   error
}

// WithModel returns e bound to a fitted regressor, taking its snapshot.
func (e Entry) WithModel(model *gp.Regressor) Entry {
	e.Kernel = model.Kernel()
	e.Snapshot = model.Snapshot()
	e.TrainingRows = model.Rows()
	e.lazy = &lazyModel{model: model}
	e.lazy.once.Do(func() {})
	return e
}

// Model returns the regressor, restoring it from the snapshot on first use.
func (e Entry) Model() (*gp.Regressor, error) {
	if e.lazy == nil {
		return nil, fmt.Errorf("model %s/%s/%s was not loaded from a store", e.Device, e.Autoclave, e.GroupKey)
	}
	lm := e.lazy
	lm.once.Do(func() {
		lm.model, lm.err = gp.Restore(e.Snapshot)
		if lm.err != nil {
			lm.err = fmt.Errorf("restore model %s/%s/%s: %w", e.Device, e.Autoclave, e.GroupKey, lm.err)
		}
	})
	return lm.model, lm.err
}

// Summary is the listing view of an entry without its training data.
type Summary struct {
	Device       string
	Autoclave    string
	GroupKey     string
	Recipe       string
	TrainingID   string
	TrainedAt    time.Time
	R2           float64
	MSE          float64
	TrainingRows int
}

// Summary returns the listing view of e.
func (e Entry) Summary() Summary {
	return Summary{
		Device:       e.Device,
		Autoclave:    e.Autoclave,
		GroupKey:     e.GroupKey,
		Recipe:       e.Recipe,
		TrainingID:   e.TrainingID,
		TrainedAt:    e.TrainedAt,
		R2:           e.Metrics.R2,
		MSE:          e.Metrics.MSE,
		TrainingRows: e.TrainingRows,
	}
}

func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Device       string    `json:"device"`
		Autoclave    string    `json:"autoclave"`
		GroupKey     string    `json:"group_key"`
		Recipe       string    `json:"recipe"`
		TrainingID   string    `json:"training_id"`
		TrainedAt    time.Time `json:"trained_at"`
		Metrics      Metrics   `json:"metrics"`
		TrainingRows int       `json:"training_rows"`
	}{s.Device, s.Autoclave, s.GroupKey, s.Recipe, s.TrainingID, s.TrainedAt, Metrics{R2: s.R2, MSE: s.MSE}, s.TrainingRows})
}
