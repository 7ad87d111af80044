package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the curing run identifier (e.g. OA20180829-001).
	FieldRunID = "run_id"
	// FieldDevice is the current device label (fan, heater, heater1, heater2).
	FieldDevice = "device"
	// FieldStage is the pipeline stage name.
	FieldStage = "stage"
	// FieldTrainingID correlates every entry written by one training run.
	FieldTrainingID = "training_id"
	FieldEventType  = "event_type"
	FieldErrorHint  = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey int

const (
	runIDKey contextKey = iota
	stageKey
	trainingIDKey
)

// WithRunID returns a child context carrying the curing run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithStage returns a child context carrying the pipeline stage.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// WithTrainingID returns a child context carrying the training run correlation id.
func WithTrainingID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, trainingIDKey, id)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldRunID, v))
	}
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldStage, v))
	}
	if v, ok := ctx.Value(trainingIDKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldTrainingID, v))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
