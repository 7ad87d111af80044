// Package training fits and calibrates the per-(autoclave, recipe) current
// models.
//
// Runs are split into training and held-out sets, each group is fitted with
// a Gaussian process (pooled strategy: per-recipe fits plus a pooled "all"
// model that reuses their mean hyperparameters when the pooled data is
// large; select strategy: best of two kernel candidates), and every model is
// calibrated with the 95th percentile of held-out z-scores before being
// written to the model store.
package training
