package testsupport

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// CuringRow is one process-variable sample of a synthetic run report.
type CuringRow struct {
	Time time.Time
	PMV  float64
	AMV  float64
}

// CurrentRow is one synthetic current reading.
type CurrentRow struct {
	Time  time.Time
	Addr  int
	Value float64
}

// RampRows returns n rows spaced step apart with smoothly varying PMV/AMV.
func RampRows(start time.Time, n int, step time.Duration) []CuringRow {
	rows := make([]CuringRow, n)
	for i := range rows {
		x := float64(i)
		rows[i] = CuringRow{
			Time: start.Add(time.Duration(i) * step),
			PMV:  20 + 0.5*x + 3*math.Sin(x/7),
			AMV:  1 + 0.02*x,
		}
	}
	return rows
}

// CurrentFor derives readings on addresses 0, 10, 20 for every curing row
// using value(row, addr).
func CurrentFor(rows []CuringRow, value func(row CuringRow, addr int) float64) []CurrentRow {
	out := make([]CurrentRow, 0, len(rows)*3)
	for _, r := range rows {
		for _, addr := range []int{0, 10, 20} {
			out = append(out, CurrentRow{Time: r.Time, Addr: addr, Value: value(r, addr)})
		}
	}
	return out
}

// LinearCurrent is a current model linear in PMV and AMV with a per-address offset.
func LinearCurrent(row CuringRow, addr int) float64 {
	return 5 + 0.1*row.PMV + 2*row.AMV + float64(addr)/10
}

// WriteCuring writes an ISO-8859-1 Calc_<id>.csv report into dir and returns its path.
func WriteCuring(t testing.TB, dir, id, recipe string, rows []CuringRow) string {
	t.Helper()

	var b strings.Builder
	fmt.Fprintf(&b, "Receta,%s,,,,\n", recipe)
	fmt.Fprintf(&b, "Autoclave,%s,,,,\n", id[:2])
	b.WriteString("Ciclo de curado,,,,,\n")
	b.WriteString("Fecha,Hora,PMV,AMV,Presión,\n")
	b.WriteString("dd/mm/aaaa,hh:mm:ss,°C,bar,bar,\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s,%s,%g,%g,%g,\n",
			r.Time.Format("02/01/2006"), r.Time.Format("15:04:05"), r.PMV, r.AMV, r.AMV*1.1)
	}

	encoded, err := charmap.ISO8859_1.NewEncoder().String(b.String())
	if err != nil {
		t.Fatalf("encode curing file: %v", err)
	}
	path := filepath.Join(dir, "Calc_"+id+".csv")
	writeFile(t, path, encoded)
	return path
}

// WriteCurrent writes a current sensor file (addr,value,timestamp).
func WriteCurrent(t testing.TB, path string, rows []CurrentRow) {
	t.Helper()

	var b strings.Builder
	b.WriteString("addr,value,timestamp\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%d,%g,%s\n", r.Addr, r.Value, r.Time.Format("2006-01-02 15:04:05"))
	}
	writeFile(t, path, b.String())
}

// WriteRun creates <dataDir>/<id>/ with a curing report and one current file.
func WriteRun(t testing.TB, dataDir, id, recipe, currentFile string, rows []CuringRow, current []CurrentRow) string {
	t.Helper()

	dir := filepath.Join(dataDir, id)
	WriteCuring(t, dir, id, recipe, rows)
	WriteCurrent(t, filepath.Join(dir, currentFile), current)
	return dir
}

// WriteVibration writes a headerless vibration file whose X/Y/Z columns hold
// the given samples.
func WriteVibration(t testing.TB, path string, x, y, z []float64) {
	t.Helper()

	var b strings.Builder
	for i := range x {
		fmt.Fprintf(&b, "%d,%d,%g,%g,%g,%d\n", i, 1535536800+i, x[i], y[i], z[i], i)
	}
	writeFile(t, path, b.String())
}

// TouchVibration creates an empty vibration file, used for file-selection tests.
func TouchVibration(t testing.TB, path string) {
	t.Helper()
	writeFile(t, path, "")
}

func writeFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
