package features

import (
	"fmt"
	"strings"

	"curewatch/internal/align"
	"curewatch/internal/config"
	"curewatch/internal/device"
	"curewatch/internal/faults"
	"curewatch/internal/series"
)

// Options controls how a run's current samples are turned into targets.
type Options struct {
	DropZeros    bool
	Resolution   Resolution
	SmoothWindow int
	SmoothMethod Method
	Align        align.Mode
	// DropZeroTargets removes aligned rows where any target is exactly zero
	// after smoothing.
	DropZeroTargets bool
}

func deviceSmoothing(kind device.Kind, cfg config.Features) (int, Method, error) {
	window, raw := cfg.FanSmoothWindow, cfg.FanSmoothMethod
	if kind.IsHeater() {
		window, raw = cfg.HeaterSmoothWindow, cfg.HeaterSmoothMethod
	}
	method, err := ParseMethod(raw)
	if err != nil {
		return 0, Mean, faults.Wrap(faults.ErrConfiguration, "features", "smoothing", kind.String(), err)
	}
	return window, method, nil
}

// TrainingOptions returns the feature policy used while fitting models for
// kind. Heater training discards switched-off readings.
func TrainingOptions(kind device.Kind, cfg config.Features, mode align.Mode) (Options, error) {
	window, method, err := deviceSmoothing(kind, cfg)
	if err != nil {
		return Options{}, err
	}
	return Options{
		DropZeros:       kind.DropsZeros(),
		DropZeroTargets: kind.DropsZeros(),
		Resolution:      ResolveAverage,
		SmoothWindow:    window,
		SmoothMethod:    method,
		Align:           mode,
	}, nil
}

// ScoringOptions returns the feature policy used for prediction. Zeros are
// kept so that switched-off rows can be masked in the output.
func ScoringOptions(kind device.Kind, cfg config.Features) (Options, error) {
	window, method, err := deviceSmoothing(kind, cfg)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Resolution:   ResolveAverage,
		SmoothWindow: window,
		SmoothMethod: method,
		Align:        align.Inner,
	}, nil
}

// Build composes the feature frame for one run: zero filter, duplicate
// layers, resolution, pivot, smoothing of the targets, then alignment against
// the curing features. The returned frame carries kind.Features() and
// kind.Targets() columns.
func Build(run *series.CuringRun, samples []series.CurrentSample, kind device.Kind, opts Options) (*series.Frame, error) {
	curing, err := CuringFeatures(run)
	if err != nil {
		return nil, err
	}
	if opts.DropZeros {
		samples = DropZero(samples)
	}
	readings := Resolve(MarkLayers(samples), opts.Resolution)
	wide, err := Pivot(readings, opts.Resolution == ResolveAverage)
	if err != nil {
		return nil, err
	}
	targets := kind.Targets()
	if !wide.Has(targets...) {
		return nil, faults.Wrap(faults.ErrValidation, "features", "pivot",
			fmt.Sprintf("%s: current data lacks %v", run.ID, targets), nil)
	}
	smoothed := append([]string(nil), targets...)
	for _, name := range wide.Columns() {
		if strings.HasPrefix(name, "var_") {
			smoothed = append(smoothed, name)
		}
	}
	Smooth(wide, smoothed, opts.SmoothWindow, opts.SmoothMethod)

	aligned := align.Align(curing, wide, opts.Align)
	if opts.DropZeroTargets {
		cols := make([][]float64, len(targets))
		for i, name := range targets {
			cols[i], _ = aligned.Column(name)
		}
		aligned = aligned.Filter(func(row int) bool {
			for _, col := range cols {
				if col[row] == 0 {
					return false
				}
			}
			return true
		})
	}
	return aligned, nil
}
