// Package metrics provides internal prometheus metrics collection for adapters,
// the tool bridge and the team context broker.
// This package is internal and should not be imported by external projects.
package metrics
