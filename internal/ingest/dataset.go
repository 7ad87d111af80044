package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"curewatch/internal/device"
	"curewatch/internal/faults"
	"curewatch/internal/logging"
	"curewatch/internal/runid"
	"curewatch/internal/series"
)

// Run is one usable training run: its curing report and the raw current
// samples of the requested device.
type Run struct {
	ID      runid.ID
	Dir     string
	Curing  *series.CuringRun
	Current []series.CurrentSample
}

// Recipe returns the run's recipe name.
func (r Run) Recipe() string { return r.Curing.Recipe }

// Filter narrows dataset discovery. Empty fields match everything; dates are
// inclusive YYYYMMDD strings.
type Filter struct {
	Device    device.Kind
	Autoclave string
	Recipe    string
	Start     string
	End       string
}

// Discover walks dataDir for run directories (named after their run id) and
// loads every run that matches filter and has a valid current file for the
// requested device. Runs with unreadable inputs are logged and skipped.
func Discover(ctx context.Context, dataDir string, filter Filter, logger *slog.Logger) ([]Run, error) {
	logger = logging.NewComponentLogger(logger, "dataset")
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, faults.Wrap(faults.ErrNotFound, "ingest", "discover", dataDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var (
		runs             []Run
		ignoredAutoclave int
		ignoredRecipe    int
	)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, ok := runid.Find(name)
		if !ok {
			continue
		}
		if filter.Start != "" && id.Date < filter.Start {
			continue
		}
		if filter.End != "" && id.Date > filter.End {
			continue
		}
		if filter.Autoclave != "" && id.Autoclave != filter.Autoclave {
			ignoredAutoclave++
			continue
		}

		dir := filepath.Join(dataDir, name)
		if _, err := os.Stat(filepath.Join(dir, id.CuringFile())); err != nil {
			continue
		}
		curing, err := ReadCuring(dir, id)
		if err != nil {
			logger.Debug("skip run: curing file unusable", logging.String(logging.FieldRunID, id.String()), logging.Error(err))
			continue
		}
		if filter.Recipe != "" && curing.Recipe != filter.Recipe {
			ignoredRecipe++
			continue
		}
		current, err := ReadCurrent(filepath.Join(dir, filter.Device.CurrentFile()))
		if err != nil {
			logger.Debug("skip run: current file unusable", logging.String(logging.FieldRunID, id.String()), logging.Error(err))
			continue
		}
		runs = append(runs, Run{ID: id, Dir: dir, Curing: curing, Current: current})
	}

	if len(runs) == 0 {
		var parts []string
		if ignoredAutoclave > 0 {
			parts = append(parts, filter.Autoclave)
		}
		if ignoredRecipe > 0 {
			parts = append(parts, filter.Recipe)
		}
		msg := "no usable runs in " + dataDir
		if len(parts) > 0 {
			msg = "no data for " + strings.Join(parts, " ")
		}
		return nil, faults.Wrap(faults.ErrNotFound, "ingest", "discover", msg, nil)
	}
	logger.Info("dataset discovered",
		logging.Int("runs", len(runs)),
		logging.String(logging.FieldDevice, filter.Device.String()),
	)
	return runs, nil
}

// CuringFiles lists Calc_<oven>*.csv report files directly under dir or one
// level below it, sorted by file name.
func CuringFiles(dir, oven string) ([]string, error) {
	seen := map[string]struct{}{}
	var files []string
	for _, pattern := range []string{
		filepath.Join(dir, "Calc_"+oven+"*.csv"),
		filepath.Join(dir, "*", "Calc_"+oven+"*.csv"),
	} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob curing files: %w", err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return filepath.Base(files[i]) < filepath.Base(files[j])
	})
	if len(files) == 0 {
		return nil, faults.Wrap(faults.ErrNotFound, "ingest", "curing files", fmt.Sprintf("no Calc_%s*.csv under %s", oven, dir), nil)
	}
	return files, nil
}

// LoadCuringFile reads a curing report given its full path.
func LoadCuringFile(path string) (*series.CuringRun, error) {
	id, ok := runid.Find(filepath.Base(path))
	if !ok {
		return nil, faults.Wrap(faults.ErrValidation, "ingest", "curing", "no run id in "+path, nil)
	}
	return ReadCuring(filepath.Dir(path), id)
}
