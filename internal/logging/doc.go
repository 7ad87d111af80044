// Package logging assembles structured slog loggers and formatting helpers used
// across curewatch pipelines.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes context helpers so pipeline code can tag log lines with the curing
// run, device, and stage being processed. The package also provides a no-op
// logger for tests and wiring code that cannot fail.
package logging
