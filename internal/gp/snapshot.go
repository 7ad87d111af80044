package gp

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Snapshot is the persisted form of a fitted regressor: the kernel and the
// training data. Restoring refactorizes without optimizing.
type Snapshot struct {
	Kernel     Kernel      `json:"kernel"`
	NormalizeY bool        `json:"normalize_y"`
	X          [][]float64 `json:"x"`
	Y          [][]float64 `json:"y"`
}

// Snapshot captures the regressor for storage.
func (r *Regressor) Snapshot() Snapshot {
	return Snapshot{
		Kernel:     r.kernel,
		NormalizeY: r.normalizeY,
		X:          rowsOf(r.x),
		Y:          rowsOf(r.y),
	}
}

// Restore rebuilds a regressor from a snapshot.
func Restore(s Snapshot) (*Regressor, error) {
	x, err := denseOf(s.X)
	if err != nil {
		return nil, fmt.Errorf("restore inputs: %w", err)
	}
	y, err := denseOf(s.Y)
	if err != nil {
		return nil, fmt.Errorf("restore targets: %w", err)
	}
	return Fit(context.Background(), x, y, Options{Kernel: s.Kernel, NormalizeY: s.NormalizeY})
}

func rowsOf(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = append([]float64(nil), m.RawRowView(i)...)
	}
	return out
}

func denseOf(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows")
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}
