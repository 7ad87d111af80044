package training

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"

	"curewatch/internal/device"
	"curewatch/internal/gp"
	"curewatch/internal/logging"
	"curewatch/internal/modelstore"
	"curewatch/internal/statutil"
)

// InitialKernel is the starting kernel of the pooled strategy and the fixed
// candidate of the select strategy.
var InitialKernel = gp.Kernel{Noise: 10, Sigma0: 100, Length: 10}

// Strategy names accepted by training.strategy.
const (
	StrategyPooled = "pooled"
	StrategySelect = "select"
)

// Group is the training data of one model.
type Group struct {
	Key    string
	Recipe string
	Runs   []Run
}

// Fitted is a trained model with its in-sample metrics.
type Fitted struct {
	Key     string
	Recipe  string
	Model   *gp.Regressor
	Metrics modelstore.Metrics
}

// Trainer fits the models of one autoclave.
type Trainer struct {
	Kind     device.Kind
	Strategy string
	// Cap bounds the rows of a group fit and of a pooled-only fit; a pooled
	// model trained alongside group fits may use up to twice as many.
	Cap      int
	Restarts int
	Rand     *rand.Rand
	Logger   *slog.Logger
}

// Train fits one model per recipe group (unless pooledOnly) and the pooled
// model over the union of the groups' training rows.
func (t *Trainer) Train(ctx context.Context, groups []Group, pooledOnly bool) ([]Fitted, error) {
	logger := logging.NewComponentLogger(t.Logger, "trainer")
	features, targets := t.Kind.Features(), t.Kind.Targets()

	var (
		fits      []Fitted
		thetas    [][]float64
		pooledX   []*mat.Dense
		pooledY   []*mat.Dense
		pooledSum int
	)
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x, y, err := stack(g.Runs, features, targets)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", g.Key, err)
		}
		x, y = t.downsample(x, y, t.Cap)
		pooledX = append(pooledX, x)
		pooledY = append(pooledY, y)
		rows, _ := x.Dims()
		pooledSum += rows
		if pooledOnly {
			continue
		}

		fit, err := t.fit(ctx, x, y)
		if err != nil {
			return nil, fmt.Errorf("fit group %s: %w", g.Key, err)
		}
		fit.Key, fit.Recipe = g.Key, g.Recipe
		thetas = append(thetas, fit.Model.Kernel().Theta())
		fits = append(fits, fit)
		logger.Info("group model fitted",
			logging.String("group", g.Key),
			logging.Int("rows", rows),
			logging.String("kernel", fit.Model.Kernel().String()),
			logging.Float64("r2", fit.Metrics.R2),
		)
	}
	if pooledSum == 0 {
		return nil, fmt.Errorf("no training rows")
	}

	x, y := vstack(pooledX), vstack(pooledY)
	var (
		pooled Fitted
		err    error
	)
	switch {
	case t.Strategy == StrategyPooled && pooledSum >= 2*t.Cap && len(thetas) > 0:
		kernel := InitialKernel.WithTheta(meanTheta(thetas))
		x, y = t.downsample(x, y, 2*t.Cap)
		pooled, err = fitFixed(ctx, x, y, kernel, false)
	default:
		// Group fits already capped their rows; only a pooled-only model is
		// held to a single cap.
		limit := 2 * t.Cap
		if len(thetas) == 0 {
			limit = t.Cap
		}
		x, y = t.downsample(x, y, limit)
		pooled, err = t.fit(ctx, x, y)
	}
	if err != nil {
		return nil, fmt.Errorf("fit pooled model: %w", err)
	}
	pooled.Key = modelstore.PooledKey(t.Kind)
	pooled.Recipe = modelstore.PooledGroup
	logger.Info("pooled model fitted",
		logging.Int("rows", pooled.Model.Rows()),
		logging.String("kernel", pooled.Model.Kernel().String()),
		logging.Float64("r2", pooled.Metrics.R2),
	)
	return append(fits, pooled), nil
}

func (t *Trainer) fit(ctx context.Context, x, y *mat.Dense) (Fitted, error) {
	if t.Strategy == StrategySelect {
		return t.selectModel(ctx, x, y)
	}
	return fitOptions(ctx, x, y, gp.Options{Kernel: InitialKernel, Optimize: true, Seed: t.Rand.Uint64()})
}

// selectModel fits the fixed and the free candidate and keeps the one with
// the higher in-sample R².
func (t *Trainer) selectModel(ctx context.Context, x, y *mat.Dense) (Fitted, error) {
	free := gp.Kernel{Noise: 1, Sigma0: 1, Length: 1}
	if t.Kind.IsHeater() {
		free.Amplitude = 1
	}
	fixed, err := fitFixed(ctx, x, y, InitialKernel, true)
	if err != nil {
		return Fitted{}, err
	}
	tuned, err := fitOptions(ctx, x, y, gp.Options{
		Kernel:     free,
		Optimize:   true,
		Restarts:   t.Restarts,
		NormalizeY: true,
		Seed:       t.Rand.Uint64(),
	})
	if err != nil {
		return fixed, nil
	}
	if tuned.Metrics.R2 > fixed.Metrics.R2 {
		return tuned, nil
	}
	return fixed, nil
}

func fitFixed(ctx context.Context, x, y *mat.Dense, kernel gp.Kernel, normalize bool) (Fitted, error) {
	return fitOptions(ctx, x, y, gp.Options{Kernel: kernel, NormalizeY: normalize})
}

func fitOptions(ctx context.Context, x, y *mat.Dense, opts gp.Options) (Fitted, error) {
	model, err := gp.Fit(ctx, x, y, opts)
	if err != nil {
		return Fitted{}, err
	}
	mean, _, err := model.Predict(x)
	if err != nil {
		return Fitted{}, err
	}
	return Fitted{
		Model:   model,
		Metrics: modelstore.Metrics{R2: statutil.R2(y, mean), MSE: statutil.MSE(y, mean)},
	}, nil
}

// downsample keeps a uniform random subset of limit rows in original order.
func (t *Trainer) downsample(x, y *mat.Dense, limit int) (*mat.Dense, *mat.Dense) {
	rows, _ := x.Dims()
	if limit <= 0 || rows <= limit {
		return x, y
	}
	idx := t.Rand.Perm(rows)[:limit]
	slices.Sort(idx)
	return takeRows(x, idx), takeRows(y, idx)
}

func takeRows(m *mat.Dense, idx []int) *mat.Dense {
	_, cols := m.Dims()
	out := mat.NewDense(len(idx), cols, nil)
	for i, r := range idx {
		out.SetRow(i, m.RawRowView(r))
	}
	return out
}

func stack(runs []Run, features, targets []string) (*mat.Dense, *mat.Dense, error) {
	var xs, ys []*mat.Dense
	for _, r := range runs {
		if r.Frame.Empty() {
			continue
		}
		x, err := r.Frame.Matrix(features)
		if err != nil {
			return nil, nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		y, err := r.Frame.Matrix(targets)
		if err != nil {
			return nil, nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		xs, ys = append(xs, x), append(ys, y)
	}
	if len(xs) == 0 {
		return nil, nil, fmt.Errorf("no rows")
	}
	return vstack(xs), vstack(ys), nil
}

func vstack(parts []*mat.Dense) *mat.Dense {
	var rows, cols int
	for _, p := range parts {
		r, c := p.Dims()
		rows += r
		cols = c
	}
	out := mat.NewDense(rows, cols, nil)
	offset := 0
	for _, p := range parts {
		r, _ := p.Dims()
		for i := 0; i < r; i++ {
			out.SetRow(offset+i, p.RawRowView(i))
		}
		offset += r
	}
	return out
}

func meanTheta(thetas [][]float64) []float64 {
	out := make([]float64, len(thetas[0]))
	for _, th := range thetas {
		for i, v := range th {
			out[i] += v / float64(len(thetas))
		}
	}
	for i, v := range out {
		out[i] = math.Max(math.Log(gp.LowerBound), math.Min(math.Log(gp.UpperBound), v))
	}
	return out
}
