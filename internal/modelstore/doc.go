// Package modelstore persists trained current models and vibration detector
// artifacts in a SQLite database under the model directory.
//
// Entries are addressed by device label, autoclave code and group key, where
// the group key is the recipe name (or "all" for the pooled model) followed
// by the heater suffix. Chain resolves a scoring request through the exact,
// pooled and default-store fallbacks. Training runs hold an exclusive file
// lock next to the database for their whole duration.
package modelstore
