package logs_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"curewatch/internal/logs"
)

const sample = `{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"dataset discovered","component":"dataset"}
{"time":"2026-01-02T10:00:01Z","level":"INFO","msg":"run scored","component":"scoring","run_id":"OA20180829-001"}
{"time":"2026-01-02T10:00:02Z","level":"WARN","msg":"no model available","component":"scoring","run_id":"OA20180830-001"}
{"time":"2026-01-02T10:00:03Z","level":"INFO","msg":"outputs up to date","component":"scoring","run_id":"OA20180829-001"}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "curewatch.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestLastLines(t *testing.T) {
	path := writeLog(t, sample)

	lines, offset, err := logs.Last(path, 2, logs.Filter{})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || offset != int64(len(sample)) {
		t.Fatalf("got %d lines at offset %d", len(lines), offset)
	}

	lines, _, err = logs.Last(path, 10, logs.Filter{RunID: "OA20180829-001"})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("run filter kept %d lines", len(lines))
	}

	lines, _, err = logs.Last(path, 10, logs.Filter{MinLevel: slog.LevelWarn, HasLevel: true})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("level filter kept %d lines", len(lines))
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 5, logs.Filter{})
	if err != nil || len(lines) != 0 || offset != 0 {
		t.Fatalf("missing file: lines=%v offset=%d err=%v", lines, offset, err)
	}
}

func TestConsoleLineFilter(t *testing.T) {
	f := logs.Filter{RunID: "OA20180829-001", Component: "scoring"}
	if !f.Match("2026-01-02T10:00:01Z INFO scoring: run scored run_id=OA20180829-001 rows=100") {
		t.Fatal("expected console line to match")
	}
	if f.Match("2026-01-02T10:00:01Z INFO training: run scored run_id=OA20180829-001") {
		t.Fatal("component mismatch should not match")
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := writeLog(t, sample)
	_, offset, err := logs.Last(path, 0, logs.Filter{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, logs.Filter{Component: "training"}, 20*time.Millisecond, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
		})
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	want := `{"level":"INFO","msg":"models stored","component":"training"}`
	if _, err := f.WriteString(`{"level":"INFO","msg":"ignored","component":"scoring"}` + "\n" + want + "\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = f.Close()

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("follow did not emit the appended line")
		case <-time.After(20 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(got, []string{want}) {
		t.Fatalf("got %v", got)
	}
}
