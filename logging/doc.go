// Package logging provides a minimal logging interface and adapters for agentbridge.
//
// The Logger interface defines the key/value logging methods (Debug, Info, Warn, Error)
// that adapters, facades and the tool bridge use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZapAdapter wrapping a sugared zap logger
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger, err := logging.New(logging.Config{Backend: "zap", Level: "debug"})
//	adapter := engine.NewAdapter(func(o *engine.AdapterOptions) { o.Logger = logger })
//
// Event names are dotted ("adapter.run.start", "tool.call.failed") so they can
// be filtered without parsing free text.
package logging
