// Package memory contains concrete TurnStore implementations. The store
// interface resides in the core package; depend on core.TurnStore in your
// code and select an implementation (in-memory or Redis) at wiring time.
package memory
