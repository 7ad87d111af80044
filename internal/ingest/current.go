package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"curewatch/internal/faults"
	"curewatch/internal/series"
)

// RequiredAddresses are the sensor channels every current file must carry.
var RequiredAddresses = []int{0, 10, 20}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
}

// ReadCurrent loads a current sensor file (addr,value,timestamp). The file
// is rejected unless each required address is present with a nonzero mean.
func ReadCurrent(path string) ([]series.CurrentSample, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, faults.Wrap(faults.ErrNotFound, "ingest", "current", path+" does not exist", nil)
		}
		return nil, fmt.Errorf("open current file: %w", err)
	}
	defer file.Close()

	samples, err := parseCurrent(file)
	if err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "ingest", "current", filepath.Base(path), err)
	}
	if err := checkChannels(samples); err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "ingest", "current", filepath.Base(path), err)
	}
	return samples, nil
}

func parseCurrent(r io.Reader) ([]series.CurrentSample, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = trimAll(header)
	addrCol, valueCol, tsCol := indexOf(header, "addr"), indexOf(header, "value"), indexOf(header, "timestamp")
	if addrCol < 0 || valueCol < 0 || tsCol < 0 {
		return nil, fmt.Errorf("header %v lacks addr,value,timestamp", header)
	}

	var samples []series.CurrentSample
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		addr, err := strconv.Atoi(strings.TrimSpace(record[addrCol]))
		if err != nil {
			return nil, fmt.Errorf("line %d addr: %w", line, err)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[valueCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d value: %w", line, err)
		}
		ts, err := ParseTimestamp(record[tsCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, series.CurrentSample{Timestamp: ts, Address: addr, Value: value})
	}
	if len(samples) == 0 {
		return nil, errors.New("no samples")
	}
	return samples, nil
}

func checkChannels(samples []series.CurrentSample) error {
	sums := map[int]float64{}
	counts := map[int]int{}
	for _, s := range samples {
		sums[s.Address] += s.Value
		counts[s.Address]++
	}
	for _, addr := range RequiredAddresses {
		if counts[addr] == 0 {
			return fmt.Errorf("missing address %d", addr)
		}
		if sums[addr]/float64(counts[addr]) == 0 {
			return fmt.Errorf("address %d reads zero on average", addr)
		}
	}
	return nil
}

// ParseTimestamp parses the sensor timestamp formats seen in current files.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
