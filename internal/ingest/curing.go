package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"curewatch/internal/faults"
	"curewatch/internal/runid"
	"curewatch/internal/series"
)

const (
	curingLayout   = "02/01/2006 15:04:05"
	curingHeaderAt = 3
	curingDataAt   = 5
)

// ReadCuring loads Calc_<id>.csv from dir.
func ReadCuring(dir string, id runid.ID) (*series.CuringRun, error) {
	path := filepath.Join(dir, id.CuringFile())
	recipe, header, rows, err := readCuringRecords(path)
	if err != nil {
		return nil, err
	}

	dateCol, timeCol := indexOf(header, "Fecha"), indexOf(header, "Hora")
	if dateCol < 0 || timeCol < 0 {
		return nil, faults.Wrap(faults.ErrValidation, "ingest", "curing", fmt.Sprintf("%s: missing Fecha/Hora columns", path), nil)
	}

	timestamps := make([]time.Time, 0, len(rows))
	kept := make([][]string, 0, len(rows))
	for i, row := range rows {
		if len(row) <= max(dateCol, timeCol) {
			continue
		}
		ts, err := time.Parse(curingLayout, strings.TrimSpace(row[dateCol])+" "+strings.TrimSpace(row[timeCol]))
		if err != nil {
			return nil, faults.Wrap(faults.ErrValidation, "ingest", "curing", fmt.Sprintf("%s: row %d timestamp", path, i+curingDataAt), err)
		}
		timestamps = append(timestamps, ts)
		kept = append(kept, row)
	}
	if len(timestamps) == 0 {
		return nil, faults.Wrap(faults.ErrValidation, "ingest", "curing", path+" has no data", nil)
	}

	frame := series.NewFrame(timestamps)
	for j, name := range header {
		if j == dateCol || j == timeCol || name == "" {
			continue
		}
		values := make([]float64, len(kept))
		for i, row := range kept {
			values[i] = parseCell(row, j)
		}
		if err := frame.Set(name, values); err != nil {
			return nil, err
		}
	}

	return &series.CuringRun{ID: id, Recipe: recipe, Frame: frame}, nil
}

// ReadRecipe returns the recipe name from the first header row of a curing file.
func ReadRecipe(path string) (string, error) {
	file, err := openCuring(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	reader := newCuringReader(file)
	first, err := reader.Read()
	if err != nil {
		return "", faults.Wrap(faults.ErrValidation, "ingest", "recipe", path, err)
	}
	if len(first) < 2 {
		return "", faults.Wrap(faults.ErrValidation, "ingest", "recipe", path+": header has no recipe column", nil)
	}
	return strings.TrimSpace(first[1]), nil
}

func readCuringRecords(path string) (string, []string, [][]string, error) {
	file, err := openCuring(path)
	if err != nil {
		return "", nil, nil, err
	}
	defer file.Close()

	records, err := newCuringReader(file).ReadAll()
	if err != nil {
		return "", nil, nil, faults.Wrap(faults.ErrValidation, "ingest", "curing", path, err)
	}
	if len(records) <= curingHeaderAt || len(records[0]) < 2 {
		return "", nil, nil, faults.Wrap(faults.ErrValidation, "ingest", "curing", path+": truncated header", nil)
	}

	recipe := strings.TrimSpace(records[0][1])
	header := trimAll(records[curingHeaderAt])
	if len(header) < 3 {
		return "", nil, nil, faults.Wrap(faults.ErrValidation, "ingest", "curing", path+": data header too short", nil)
	}
	// The trailing column is not data.
	header = header[:len(header)-1]

	var rows [][]string
	if len(records) > curingDataAt {
		rows = records[curingDataAt:]
	}
	return recipe, header, rows, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

func openCuring(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, faults.Wrap(faults.ErrNotFound, "ingest", "curing", path+" does not exist", nil)
		}
		return nil, fmt.Errorf("open curing file: %w", err)
	}
	return readCloser{Reader: charmap.ISO8859_1.NewDecoder().Reader(file), Closer: file}, nil
}

func newCuringReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	return reader
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func parseCell(row []string, col int) float64 {
	if col >= len(row) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
