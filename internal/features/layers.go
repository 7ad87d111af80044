package features

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"curewatch/internal/series"
)

// Resolution selects how duplicate layers are merged.
type Resolution int

const (
	// ResolveAverage merges all layers of a key into their mean and tracks
	// the population variance.
	ResolveAverage Resolution = iota
	// ResolveFirst keeps only layer 0.
	ResolveFirst
	// ResolveKeepAll keeps every layer, ordered by timestamp, layer, address.
	ResolveKeepAll
)

// Resolved is one current reading after duplicate resolution. Variance is
// NaN unless the resolution tracks it.
type Resolved struct {
	Timestamp time.Time
	Layer     int
	Address   int
	Value     float64
	Variance  float64
}

type sampleKey struct {
	ts   int64
	addr int
}

// DropZero removes samples whose raw value is exactly zero.
func DropZero(samples []series.CurrentSample) []series.CurrentSample {
	out := make([]series.CurrentSample, 0, len(samples))
	for _, s := range samples {
		if s.Value != 0 {
			out = append(out, s)
		}
	}
	return out
}

// MarkLayers numbers repeated (timestamp, address) readings in input order:
// the first occurrence is layer 0, the second layer 1, and so on.
func MarkLayers(samples []series.CurrentSample) []series.CurrentSample {
	seen := make(map[sampleKey]int, len(samples))
	out := make([]series.CurrentSample, len(samples))
	for i, s := range samples {
		k := sampleKey{s.Timestamp.UnixNano(), s.Address}
		s.Layer = seen[k]
		seen[k]++
		out[i] = s
	}
	return out
}

// Resolve applies the duplicate policy to layered samples.
func Resolve(samples []series.CurrentSample, policy Resolution) []Resolved {
	switch policy {
	case ResolveFirst:
		out := make([]Resolved, 0, len(samples))
		for _, s := range samples {
			if s.Layer == 0 {
				out = append(out, Resolved{Timestamp: s.Timestamp, Address: s.Address, Value: s.Value, Variance: math.NaN()})
			}
		}
		return out
	case ResolveKeepAll:
		out := make([]Resolved, len(samples))
		for i, s := range samples {
			out[i] = Resolved{Timestamp: s.Timestamp, Layer: s.Layer, Address: s.Address, Value: s.Value, Variance: math.NaN()}
		}
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.Before(b.Timestamp)
			}
			if a.Layer != b.Layer {
				return a.Layer < b.Layer
			}
			return a.Address < b.Address
		})
		return out
	default:
		return average(samples)
	}
}

func average(samples []series.CurrentSample) []Resolved {
	order := make([]sampleKey, 0, len(samples))
	groups := make(map[sampleKey][]float64, len(samples))
	stamps := make(map[sampleKey]time.Time, len(samples))
	for _, s := range samples {
		k := sampleKey{s.Timestamp.UnixNano(), s.Address}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
			stamps[k] = s.Timestamp
		}
		groups[k] = append(groups[k], s.Value)
	}
	out := make([]Resolved, len(order))
	for i, k := range order {
		values := groups[k]
		var sum float64
		for _, v := range values {
			sum += v
		}
		mean := sum / float64(len(values))
		var ss float64
		for _, v := range values {
			ss += (v - mean) * (v - mean)
		}
		out[i] = Resolved{Timestamp: stamps[k], Address: k.addr, Value: mean, Variance: ss / float64(len(values))}
	}
	return out
}

// ValueColumn names the pivoted value column of an address.
func ValueColumn(addr int) string { return "value_" + strconv.Itoa(addr) }

// VarianceColumn names the pivoted variance column of an address.
func VarianceColumn(addr int) string { return "var_" + strconv.Itoa(addr) }

// Pivot converts resolved readings from long to wide form: one row per
// (timestamp, layer), one value column per address (and one variance column
// when withVariance is set), forward-filled across address-specific gaps.
func Pivot(readings []Resolved, withVariance bool) (*series.Frame, error) {
	type rowKey struct {
		ts    int64
		layer int
	}
	rowIndex := map[rowKey]int{}
	var keys []rowKey
	stamps := map[rowKey]time.Time{}
	addrSet := map[int]struct{}{}
	for _, r := range readings {
		k := rowKey{r.Timestamp.UnixNano(), r.Layer}
		if _, ok := rowIndex[k]; !ok {
			rowIndex[k] = -1
			keys = append(keys, k)
			stamps[k] = r.Timestamp
		}
		addrSet[r.Address] = struct{}{}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ts != keys[j].ts {
			return keys[i].ts < keys[j].ts
		}
		return keys[i].layer < keys[j].layer
	})
	timestamps := make([]time.Time, len(keys))
	for i, k := range keys {
		rowIndex[k] = i
		timestamps[i] = stamps[k]
	}

	addrs := make([]int, 0, len(addrSet))
	for a := range addrSet {
		addrs = append(addrs, a)
	}
	sort.Ints(addrs)

	columns := map[string][]float64{}
	newColumn := func() []float64 {
		col := make([]float64, len(keys))
		for i := range col {
			col[i] = math.NaN()
		}
		return col
	}
	for _, a := range addrs {
		columns[ValueColumn(a)] = newColumn()
		if withVariance {
			columns[VarianceColumn(a)] = newColumn()
		}
	}
	for _, r := range readings {
		row := rowIndex[rowKey{r.Timestamp.UnixNano(), r.Layer}]
		columns[ValueColumn(r.Address)][row] = r.Value
		if withVariance {
			columns[VarianceColumn(r.Address)][row] = r.Variance
		}
	}

	frame := series.NewFrame(timestamps)
	for _, a := range addrs {
		names := []string{ValueColumn(a)}
		if withVariance {
			names = append(names, VarianceColumn(a))
		}
		for _, name := range names {
			col := columns[name]
			forwardFill(col)
			if err := frame.Set(name, col); err != nil {
				return nil, fmt.Errorf("pivot: %w", err)
			}
		}
	}
	return frame, nil
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
