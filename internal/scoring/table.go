package scoring

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"curewatch/internal/fileutil"
	"curewatch/internal/series"
)

// TimestampLayout is the timestamp format of the prediction table.
const TimestampLayout = "2006-01-02 15:04:05"

// writeTable writes timestamp followed by the named frame columns. Missing
// values are written as empty cells.
func writeTable(path string, frame *series.Frame, columns []string) error {
	cols := make([][]float64, len(columns))
	for i, name := range columns {
		col, ok := frame.Column(name)
		if !ok {
			return fmt.Errorf("write %s: missing column %s", path, name)
		}
		cols[i] = col
	}
	return fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(append([]string{"timestamp"}, columns...)); err != nil {
			return err
		}
		record := make([]string, len(columns)+1)
		for row, ts := range frame.Timestamps {
			record[0] = ts.Format(TimestampLayout)
			for i, col := range cols {
				record[i+1] = formatCell(col[row])
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
