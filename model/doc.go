// Package model defines the provider-neutral text generation interface used by
// the model-driven reasoner, plus a MockModel for tests. Concrete providers
// live in the anthropic and openai sub-packages.
//
// Generate returns a response channel and an error channel; Collect drains
// both and yields the final text.
package model
