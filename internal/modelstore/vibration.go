package modelstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Selection is a persisted frequency selection with its historical
// anomaly-rate statistics. Mean and Std are nil until rates are computed.
type Selection struct {
	Recipe     string
	SensorType string
	Axis       string
	Bins       []int
	Mean       *float64
	Std        *float64
}

// PutDetector stores a JSON-encodable vibration detector under name.
func (s *Store) PutDetector(ctx context.Context, name string, detector any) error {
	payload, err := json.Marshal(detector)
	if err != nil {
		return fmt.Errorf("marshal detector %s: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO vibration_detectors (name, trained_at, payload) VALUES (?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET trained_at = excluded.trained_at, payload = excluded.payload`,
		name, time.Now().UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("insert detector %s: %w", name, err)
	}
	return nil
}

// Detector decodes the detector stored under name into dst.
func (s *Store) Detector(ctx context.Context, name string, dst any) (bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM vibration_detectors WHERE name = ?", name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query detector %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return false, fmt.Errorf("decode detector %s: %w", name, err)
	}
	return true, nil
}

// PutSelection stores sel, replacing any selection for the same recipe,
// sensor type and axis.
func (s *Store) PutSelection(ctx context.Context, sel Selection) error {
	bins, err := json.Marshal(sel.Bins)
	if err != nil {
		return fmt.Errorf("marshal bins: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO frequency_selections (recipe, sensor_type, axis, bins, mean, std)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(recipe, sensor_type, axis) DO UPDATE SET bins = excluded.bins, mean = excluded.mean, std = excluded.std`,
		sel.Recipe, sel.SensorType, sel.Axis, string(bins), optional(sel.Mean), optional(sel.Std))
	if err != nil {
		return fmt.Errorf("insert frequency selection: %w", err)
	}
	return nil
}

// Selection returns the stored selection for (recipe, sensorType, axis).
func (s *Store) Selection(ctx context.Context, recipe, sensorType, axis string) (Selection, bool, error) {
	var (
		bins      string
		mean, std sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT bins, mean, std FROM frequency_selections WHERE recipe = ? AND sensor_type = ? AND axis = ?",
		recipe, sensorType, axis,
	).Scan(&bins, &mean, &std)
	if errors.Is(err, sql.ErrNoRows) {
		return Selection{}, false, nil
	}
	if err != nil {
		return Selection{}, false, fmt.Errorf("query frequency selection: %w", err)
	}
	sel := Selection{Recipe: recipe, SensorType: sensorType, Axis: axis}
	if err := json.Unmarshal([]byte(bins), &sel.Bins); err != nil {
		return Selection{}, false, fmt.Errorf("decode bins: %w", err)
	}
	if mean.Valid {
		sel.Mean = &mean.Float64
	}
	if std.Valid {
		sel.Std = &std.Float64
	}
	return sel, true, nil
}

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
