// Package vibration detects anomalous vibration spectra during curing runs.
//
// A run's vibration window (curing start plus padding to curing end minus
// padding) is resolved to per-minute sensor files, turned into a power
// spectrogram, reduced to a handful of dominant frequency bins, scaled,
// projected onto two principal components and scored by an isolation
// forest. The ratio of anomalous to normal time bins is normalized against
// the rates of historical runs of the same recipe.
package vibration
