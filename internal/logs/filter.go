package logs

import (
	"encoding/json"
	"log/slog"
	"strings"

	"curewatch/internal/logging"
)

// Filter selects log lines. Zero fields match everything.
type Filter struct {
	RunID     string
	Component string
	MinLevel  slog.Level
	HasLevel  bool
}

// Empty reports whether f accepts every line.
func (f Filter) Empty() bool {
	return f.RunID == "" && f.Component == "" && !f.HasLevel
}

// Match reports whether line passes f. JSON lines are matched on their
// fields; console lines fall back to matching their "component: " prefix
// and key=value pairs.
func (f Filter) Match(line string) bool {
	if f.Empty() {
		return true
	}
	var rec map[string]any
	if strings.HasPrefix(strings.TrimSpace(line), "{") && json.Unmarshal([]byte(line), &rec) == nil {
		return f.matchRecord(rec)
	}
	if f.RunID != "" && !strings.Contains(line, logging.FieldRunID+"="+f.RunID) {
		return false
	}
	if f.Component != "" && !strings.Contains(line, " "+f.Component+": ") {
		return false
	}
	if f.HasLevel {
		for _, lvl := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
			if lvl < f.MinLevel && strings.Contains(line, " "+lvl.String()+" ") {
				return false
			}
		}
	}
	return true
}

func (f Filter) matchRecord(rec map[string]any) bool {
	if f.RunID != "" && rec[logging.FieldRunID] != f.RunID {
		return false
	}
	if f.Component != "" && rec[logging.FieldComponent] != f.Component {
		return false
	}
	if f.HasLevel {
		raw, _ := rec[slog.LevelKey].(string)
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(raw)); err != nil || lvl < f.MinLevel {
			return false
		}
	}
	return true
}
