// Package scoring predicts expected current for a curing run with the best
// available model and writes the per-timestamp prediction table plus a JSON
// side file describing the model used and the run's z-score summary.
//
// A run whose outputs already exist is skipped when the model that would be
// selected now is the one recorded in the side file.
package scoring
