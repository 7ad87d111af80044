package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"curewatch/internal/config"
	"curewatch/internal/logging"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Format = "json"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "curewatch.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"hello"`) {
		t.Fatalf("expected json message in log file, got %q", content)
	}
}

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	component := logging.NewComponentLogger(logger, "trainer")
	component.Info("fitted model", logging.String("group", "RECIPE A"), logging.Int("rows", 42))
	component.Debug("suppressed")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "INFO trainer: fitted model") {
		t.Fatalf("missing component prefix: %q", line)
	}
	if !strings.Contains(line, `group="RECIPE A"`) || !strings.Contains(line, "rows=42") {
		t.Fatalf("missing fields: %q", line)
	}
	if strings.Contains(line, "suppressed") {
		t.Fatalf("debug line should be filtered at info level: %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithRunID(context.Background(), "OA20180829-001")
	logging.WarnWithContext(logging.WithContext(ctx, logger), "window unresolved", "vibration_window_missing",
		logging.String(logging.FieldErrorHint, "check vibration_dir"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record[logging.FieldRunID] != "OA20180829-001" {
		t.Fatalf("run id missing: %v", record)
	}
	if record[logging.FieldEventType] != "vibration_window_missing" {
		t.Fatalf("event type missing: %v", record)
	}
	if record[logging.FieldErrorHint] != "check vibration_dir" {
		t.Fatalf("error hint should keep caller value: %v", record)
	}
	if record[logging.FieldImpact] == nil {
		t.Fatalf("impact default missing: %v", record)
	}
	if record["level"] != "warn" {
		t.Fatalf("unexpected level: %v", record["level"])
	}
}

func TestErrorWithContextDefaultsHint(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "error.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.ErrorWithContext(logger, "autoclave training failed", "training_fit",
		logging.String("autoclave", "OA"),
		logging.Bool("pooled_only", true))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record[logging.FieldEventType] != "training_fit" {
		t.Fatalf("event type missing: %v", record)
	}
	if record[logging.FieldErrorHint] == nil {
		t.Fatalf("error hint default missing: %v", record)
	}
	if record["pooled_only"] != true {
		t.Fatalf("bool attribute lost: %v", record)
	}
	if record["level"] != "error" {
		t.Fatalf("unexpected level: %v", record["level"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 12) {
		t.Fatal("nop logger should not be enabled")
	}
}
