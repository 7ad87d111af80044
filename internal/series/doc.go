// Package series holds the in-memory data model shared by the current
// pipelines: curing runs, raw current samples, and timestamp-indexed frames
// whose missing cells are NaN.
package series
