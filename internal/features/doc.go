// Package features turns raw curing and current data into regression-ready
// frames: slope columns for process variables, duplicate-layer resolution
// and pivoting for current samples, and centered moving mean/RMS smoothing.
package features
