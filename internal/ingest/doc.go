// Package ingest reads the raw inputs of the analysis pipelines: curing run
// reports (ISO-8859-1 text), per-device current sensor files, and headerless
// vibration sample files. It also discovers the run directories that make up
// a training dataset.
//
// Readers validate what they load and return faults.ErrValidation or
// faults.ErrNotFound wrapped errors so callers can skip unusable runs during
// discovery and fail fast when scoring a single run.
package ingest
