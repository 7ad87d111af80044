package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"curewatch/internal/faults"
)

// VibrationScale converts the stored acceleration to the analysis unit.
const VibrationScale = 1000

var axisColumns = map[string]int{"X": 2, "Y": 3, "Z": 4}

// AxisColumn validates an axis name and returns its column in vibration files.
func AxisColumn(axis string) (int, error) {
	col, ok := axisColumns[strings.ToUpper(strings.TrimSpace(axis))]
	if !ok {
		return 0, faults.Wrap(faults.ErrValidation, "ingest", "vibration", fmt.Sprintf("unknown axis %q", axis), nil)
	}
	return col, nil
}

// ReadVibration concatenates one axis of the given headerless vibration files
// (id,timestamp,X,Y,Z,index) in order, scaled by VibrationScale.
func ReadVibration(paths []string, axis string) ([]float64, error) {
	col, err := AxisColumn(axis)
	if err != nil {
		return nil, err
	}
	var samples []float64
	for _, path := range paths {
		samples, err = appendVibration(samples, path, col)
		if err != nil {
			return nil, err
		}
	}
	return samples, nil
}

func appendVibration(dst []float64, path string, col int) ([]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return dst, fmt.Errorf("open vibration file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return dst, nil
		}
		if err != nil {
			return dst, faults.Wrap(faults.ErrValidation, "ingest", "vibration", fmt.Sprintf("%s line %d", path, line), err)
		}
		if col >= len(record) {
			return dst, faults.Wrap(faults.ErrValidation, "ingest", "vibration", fmt.Sprintf("%s line %d: %d columns", path, line, len(record)), nil)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
		if err != nil {
			return dst, faults.Wrap(faults.ErrValidation, "ingest", "vibration", fmt.Sprintf("%s line %d", path, line), err)
		}
		dst = append(dst, v*VibrationScale)
	}
}
