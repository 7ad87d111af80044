// Package config loads, normalizes, and validates curewatch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CUREWATCH_DATA_DIR and CUREWATCH_MODEL_DIR. The Config type centralizes the
// directory layout, training recipe knobs, and vibration STFT settings so the
// CLI and pipelines discover everything in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
