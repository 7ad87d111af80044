// Package faults classifies pipeline failures.
//
// Stages wrap underlying errors with one of the exported markers so the CLI can
// decide between a fatal abort (nonzero exit) and graceful degradation (no
// model available, vibration window unresolved) without string matching.
package faults
