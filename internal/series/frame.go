package series

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Frame is a column-oriented table indexed by timestamp. Timestamps may
// repeat when duplicate sensor layers are kept.
type Frame struct {
	Timestamps []time.Time
	columns    []string
	index      map[string]int
	values     [][]float64
}

// NewFrame returns an empty frame over the given timestamps.
func NewFrame(timestamps []time.Time) *Frame {
	return &Frame{Timestamps: timestamps, index: map[string]int{}}
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Timestamps)
}

// Empty reports whether the frame has no rows.
func (f *Frame) Empty() bool { return f.Len() == 0 }

// Columns returns the column names in insertion order.
func (f *Frame) Columns() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.columns...)
}

// Set adds or replaces a column. The slice is retained.
func (f *Frame) Set(name string, values []float64) error {
	if len(values) != len(f.Timestamps) {
		return fmt.Errorf("column %s: %d values for %d rows", name, len(values), len(f.Timestamps))
	}
	if idx, ok := f.index[name]; ok {
		f.values[idx] = values
		return nil
	}
	f.index[name] = len(f.columns)
	f.columns = append(f.columns, name)
	f.values = append(f.values, values)
	return nil
}

// Column returns the named column.
func (f *Frame) Column(name string) ([]float64, bool) {
	if f == nil {
		return nil, false
	}
	idx, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.values[idx], true
}

// Has reports whether every named column exists.
func (f *Frame) Has(names ...string) bool {
	for _, name := range names {
		if _, ok := f.Column(name); !ok {
			return false
		}
	}
	return true
}

// Matrix copies the named columns into a rows x len(names) matrix.
func (f *Frame) Matrix(names []string) (*mat.Dense, error) {
	if f.Len() == 0 {
		return nil, fmt.Errorf("matrix: frame is empty")
	}
	cols := make([][]float64, len(names))
	for j, name := range names {
		col, ok := f.Column(name)
		if !ok {
			return nil, fmt.Errorf("matrix: missing column %s", name)
		}
		cols[j] = col
	}
	m := mat.NewDense(f.Len(), len(names), nil)
	for j, col := range cols {
		m.SetCol(j, col)
	}
	return m, nil
}

// Filter returns a new frame holding the rows for which keep returns true.
func (f *Frame) Filter(keep func(row int) bool) *Frame {
	rows := make([]int, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return f.Take(rows)
}

// Take returns a new frame with the given rows in the given order.
func (f *Frame) Take(rows []int) *Frame {
	ts := make([]time.Time, len(rows))
	for i, r := range rows {
		ts[i] = f.Timestamps[r]
	}
	out := NewFrame(ts)
	for j, name := range f.columns {
		src := f.values[j]
		dst := make([]float64, len(rows))
		for i, r := range rows {
			dst[i] = src[r]
		}
		_ = out.Set(name, dst)
	}
	return out
}

// DropMissing removes every row holding a NaN in any column.
func (f *Frame) DropMissing() *Frame {
	return f.Filter(func(row int) bool {
		for _, col := range f.values {
			if math.IsNaN(col[row]) {
				return false
			}
		}
		return true
	})
}

// Clone deep-copies the frame.
func (f *Frame) Clone() *Frame {
	rows := make([]int, f.Len())
	for i := range rows {
		rows[i] = i
	}
	return f.Take(rows)
}
