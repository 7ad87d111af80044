package vibration

import (
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"curewatch/internal/statutil"
)

const (
	// MaxSamples caps the subsample each isolation tree is grown on.
	MaxSamples = 256
	eulerGamma = 0.5772156649015329
)

// ForestOptions configures an isolation forest.
type ForestOptions struct {
	Trees         int
	Contamination float64
}

type forestNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Size      int     `json:"n"`
}

type isolationTree struct {
	Nodes []forestNode `json:"nodes"`
}

// IsolationForest scores points by how quickly random axis-aligned splits
// isolate them. Offset is the score below which a point is anomalous.
type IsolationForest struct {
	Trees      []isolationTree `json:"trees"`
	SampleSize int             `json:"sample_size"`
	Offset     float64         `json:"offset"`
}

// FitForest grows opts.Trees trees on subsamples of x drawn without
// replacement and places the decision offset at the contamination quantile
// of the training scores.
func FitForest(x mat.Matrix, opts ForestOptions, rng *rand.Rand) (*IsolationForest, error) {
	n, d := x.Dims()
	if n == 0 || d == 0 {
		return nil, errors.New("isolation forest needs data")
	}
	if opts.Trees <= 0 {
		return nil, errors.New("isolation forest needs at least one tree")
	}
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}

	psi := min(MaxSamples, n)
	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))
	f := &IsolationForest{Trees: make([]isolationTree, opts.Trees), SampleSize: psi}
	for t := range f.Trees {
		sample := rng.Perm(n)[:psi]
		var tree isolationTree
		tree.grow(rows, sample, 0, maxDepth, rng)
		f.Trees[t] = tree
	}

	scores := f.ScoreSamples(x)
	f.Offset = statutil.Percentile(scores, 100*opts.Contamination)
	return f, nil
}

func (t *isolationTree) grow(rows [][]float64, idx []int, depth, maxDepth int, rng *rand.Rand) int {
	at := len(t.Nodes)
	t.Nodes = append(t.Nodes, forestNode{Feature: -1, Left: -1, Right: -1, Size: len(idx)})
	if len(idx) < 2 || depth >= maxDepth {
		return at
	}

	// Draw features until one varies within the node.
	d := len(rows[idx[0]])
	feature, lo, hi := -1, 0.0, 0.0
	for _, f := range rng.Perm(d) {
		lo, hi = math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			v := rows[i][f]
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		if hi > lo {
			feature = f
			break
		}
	}
	if feature < 0 {
		return at
	}
	threshold := lo + rng.Float64()*(hi-lo)
	if threshold >= hi {
		threshold = lo
	}

	var left, right []int
	for _, i := range idx {
		if rows[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := t.grow(rows, left, depth+1, maxDepth, rng)
	r := t.grow(rows, right, depth+1, maxDepth, rng)
	t.Nodes[at].Feature = feature
	t.Nodes[at].Threshold = threshold
	t.Nodes[at].Left, t.Nodes[at].Right = l, r
	return at
}

func (t isolationTree) pathLength(x []float64) float64 {
	i, depth := 0, 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return float64(depth) + averagePathLength(n.Size)
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}

// averagePathLength is the expected path length of an unsuccessful search
// in a binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		m := float64(n)
		return 2*(math.Log(m-1)+eulerGamma) - 2*(m-1)/m
	}
}

// ScoreSamples returns −2^(−E[h(x)]/c(ψ)) per row; lower is more anomalous.
func (f *IsolationForest) ScoreSamples(x mat.Matrix) []float64 {
	n, d := x.Dims()
	norm := averagePathLength(f.SampleSize)
	if norm == 0 {
		norm = 1
	}
	scores := make([]float64, n)
	row := make([]float64, d)
	for i := range scores {
		mat.Row(row, i, x)
		var total float64
		for _, t := range f.Trees {
			total += t.pathLength(row)
		}
		mean := total / float64(len(f.Trees))
		scores[i] = -math.Pow(2, -mean/norm)
	}
	return scores
}

// Predict flags rows scoring below the offset as anomalous (1); the rest
// are normal (0).
func (f *IsolationForest) Predict(x mat.Matrix) []int {
	scores := f.ScoreSamples(x)
	out := make([]int, len(scores))
	for i, s := range scores {
		if s < f.Offset {
			out[i] = 1
		}
	}
	return out
}
