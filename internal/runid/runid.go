// Package runid parses and formats curing run identifiers such as
// OA20180829-001 (autoclave code, date, sequence).
package runid

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"curewatch/internal/faults"
)

var (
	exact   = regexp.MustCompile(`^(\w{2})(\d{8})-(\d{3})$`)
	partial = regexp.MustCompile(`(\w{2})(\d{8})-(\d{3})`)
)

// ID identifies one physical cure cycle.
type ID struct {
	Autoclave string
	Date      string
	Sequence  string
}

// Parse validates s as a complete run identifier.
func Parse(s string) (ID, error) {
	m := exact.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ID{}, faults.Wrap(faults.ErrValidation, "runid", "parse", fmt.Sprintf("invalid run identifier %q", s), nil)
	}
	return ID{Autoclave: m[1], Date: m[2], Sequence: m[3]}, nil
}

// Find extracts the first run identifier embedded in s, e.g. a run directory
// named OA20180829-001-F.
func Find(s string) (ID, bool) {
	m := partial.FindStringSubmatch(s)
	if m == nil {
		return ID{}, false
	}
	return ID{Autoclave: m[1], Date: m[2], Sequence: m[3]}, true
}

func (id ID) String() string {
	return id.Autoclave + id.Date + "-" + id.Sequence
}

// Day returns the run date at midnight UTC.
func (id ID) Day() (time.Time, error) {
	return time.Parse("20060102", id.Date)
}

// CuringFile is the run-report file name for the run.
func (id ID) CuringFile() string {
	return "Calc_" + id.String() + ".csv"
}
