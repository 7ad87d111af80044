package vibration

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"curewatch/internal/faults"
	"curewatch/internal/series"
)

// StampLayout is the timestamp embedded in vibration file names.
const StampLayout = "2006-01-02_1504"

// WindowBounds trims pad from both ends of a curing run.
func WindowBounds(run *series.CuringRun, pad time.Duration) (time.Time, time.Time) {
	return run.Start().Add(pad), run.End().Add(-pad)
}

// ResolveWindow lists the vibration files of sensor code covering
// [start, end). Files live in dir/<YYYY-MM-DD>/ and carry their minute stamp
// in the name.
//
// Within one day the files from the one stamped at start up to, but not
// including, the one stamped at end are used. Across midnight the first
// day contributes the file stamped at start and everything after it, and the
// second day everything before the file stamped at end.
func ResolveWindow(dir string, start, end time.Time, code string) ([]string, error) {
	startStamp, endStamp := start.Format(StampLayout), end.Format(StampLayout)
	day1, day2 := startStamp[:10], endStamp[:10]

	var files []string
	if day1 != day2 {
		first, err := dayFiles(dir, day1, code)
		if err != nil {
			return nil, err
		}
		appending := false
		for _, f := range first {
			if strings.Contains(filepath.Base(f), startStamp) {
				appending = true
			}
			if appending {
				files = append(files, f)
			}
		}
		second, err := dayFiles(dir, day2, code)
		if err != nil {
			return nil, err
		}
		appending = true
		for _, f := range second {
			if strings.Contains(filepath.Base(f), endStamp) {
				appending = false
			}
			if appending {
				files = append(files, f)
			}
		}
	} else {
		all, err := dayFiles(dir, day1, code)
		if err != nil {
			return nil, err
		}
		startIdx, endIdx := 0, 0
		for i, f := range all {
			name := filepath.Base(f)
			if strings.Contains(name, startStamp) {
				startIdx = i
			} else if strings.Contains(name, endStamp) {
				endIdx = i
			}
		}
		if len(all) == 0 || endIdx <= startIdx {
			return nil, faults.Wrap(faults.ErrWindow, "vibration", "window",
				fmt.Sprintf("no files for %s..%s under %s", startStamp, endStamp, filepath.Join(dir, day1)), nil)
		}
		files = all[startIdx:endIdx]
	}
	if len(files) == 0 {
		return nil, faults.Wrap(faults.ErrWindow, "vibration", "window",
			fmt.Sprintf("no files for %s..%s with sensor %s", startStamp, endStamp, code), nil)
	}
	return files, nil
}

func dayFiles(dir, day, code string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, day, "*"+code+".csv"))
	if err != nil {
		return nil, fmt.Errorf("glob vibration files: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}
