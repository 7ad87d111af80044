// Package main hosts the curewatch CLI entrypoint and command graph.
//
// The Cobra command tree wires configuration, logging and metrics into the
// training, scoring and vibration pipelines that live under internal/. Keep
// this package thin: behaviour belongs in the internal packages, commands
// only translate flags into requests and render the results.
package main
