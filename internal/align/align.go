// Package align joins a curing process-variable frame with a pivoted current
// frame on their shared timestamps.
package align

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"curewatch/internal/series"
)

// Mode selects the join strategy.
type Mode int

const (
	// Inner keeps only timestamps present in both frames.
	Inner Mode = iota
	// Extend performs an outer join and fills gaps forward, then backward.
	Extend
)

// ParseMode accepts "inner" and "extend".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inner":
		return Inner, nil
	case "extend", "outer":
		return Extend, nil
	default:
		return Inner, fmt.Errorf("unknown align mode %q", s)
	}
}

func (m Mode) String() string {
	if m == Extend {
		return "extend"
	}
	return "inner"
}

// Align joins left and right on timestamp. Left columns come first; right
// columns that share a name with a left column are ignored. The result is
// sorted by timestamp and holds no missing values.
func Align(left, right *series.Frame, mode Mode) *series.Frame {
	leftCols := left.Columns()
	rightCols := make([]string, 0)
	for _, c := range right.Columns() {
		if !slices.Contains(leftCols, c) {
			rightCols = append(rightCols, c)
		}
	}
	if left.Empty() || right.Empty() {
		return emptyFrame(leftCols, rightCols)
	}

	leftRows := groupRows(left)
	rightRows := groupRows(right)

	var keys []int64
	switch mode {
	case Extend:
		keys = unionKeys(leftRows, rightRows)
	default:
		for k := range leftRows {
			if _, ok := rightRows[k]; ok {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)
	}

	type pair struct{ l, r int }
	var pairs []pair
	var stamps []time.Time
	for _, k := range keys {
		ls, rs := leftRows[k], rightRows[k]
		if len(ls) == 0 {
			ls = []int{-1}
		}
		if len(rs) == 0 {
			rs = []int{-1}
		}
		for _, l := range ls {
			for _, r := range rs {
				pairs = append(pairs, pair{l, r})
				stamps = append(stamps, time.Unix(0, k).UTC())
			}
		}
	}

	out := series.NewFrame(stamps)
	fill := func(src *series.Frame, cols []string, pick func(pair) int) {
		for _, name := range cols {
			col, _ := src.Column(name)
			dst := make([]float64, len(pairs))
			for i, p := range pairs {
				if row := pick(p); row >= 0 {
					dst[i] = col[row]
				} else {
					dst[i] = math.NaN()
				}
			}
			if mode == Extend {
				forwardFill(dst)
				backwardFill(dst)
			}
			_ = out.Set(name, dst)
		}
	}
	fill(left, leftCols, func(p pair) int { return p.l })
	fill(right, rightCols, func(p pair) int { return p.r })

	return out.DropMissing()
}

func emptyFrame(leftCols, rightCols []string) *series.Frame {
	out := series.NewFrame(nil)
	for _, c := range append(append([]string(nil), leftCols...), rightCols...) {
		_ = out.Set(c, []float64{})
	}
	return out
}

// groupRows maps a timestamp key to the frame rows carrying it, in row order.
func groupRows(f *series.Frame) map[int64][]int {
	rows := make(map[int64][]int, f.Len())
	for i, ts := range f.Timestamps {
		k := ts.UnixNano()
		rows[k] = append(rows[k], i)
	}
	return rows
}

func unionKeys(a, b map[int64][]int) []int64 {
	keys := make([]int64, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

func forwardFill(values []float64) {
	last := math.NaN()
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = last
			continue
		}
		last = v
	}
}

func backwardFill(values []float64) {
	next := math.NaN()
	for i := len(values) - 1; i >= 0; i-- {
		if math.IsNaN(values[i]) {
			values[i] = next
			continue
		}
		next = values[i]
	}
}
