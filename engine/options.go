package engine

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/internal/metrics"
	"github.com/hupe1980/agentbridge/logging"
	"github.com/hupe1980/agentbridge/tool"
)

// Default values applied by DefaultConfig.
const (
	DefaultMaxChainLength = 10
	DefaultMaxHistory     = 100
	DefaultRole           = "assistant"
)

// Config holds the per-agent settings passed to Adapter.Initialize.
type Config struct {
	// AgentName identifies the agent. Required.
	AgentName   string
	Role        string
	Description string

	// SystemPrompt is handed to the reasoner with every plan request.
	SystemPrompt string

	// Tools are registered with the adapter's tool bridge.
	Tools []tool.Tool

	// MemoryEnabled feeds earlier turns to the reasoner. Turns are recorded
	// either way.
	MemoryEnabled bool

	// EnableReflection runs the reflect phase after execute.
	EnableReflection bool

	// MaxChainLength bounds the number of plan steps. 0 means unlimited.
	MaxChainLength int

	// MaxHistory bounds how many earlier turns the reasoner sees. 0 means all.
	MaxHistory int

	// Timeout bounds a whole run. 0 means no timeout.
	Timeout time.Duration

	// Degraded turns phase failures into a flagged "[degraded]" reply
	// instead of an error.
	Degraded bool

	// RateLimit caps runs per second for this agent. 0 disables limiting.
	RateLimit float64
	// RateBurst is the limiter burst size, default 1.
	RateBurst int
}

// DefaultConfig returns the defaults used by the facades: memory and
// reflection on, a chain of at most ten steps and a history window of 100.
func DefaultConfig(name string) Config {
	return Config{
		AgentName:        name,
		Role:             DefaultRole,
		MemoryEnabled:    true,
		EnableReflection: true,
		MaxChainLength:   DefaultMaxChainLength,
		MaxHistory:       DefaultMaxHistory,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.AgentName == "" {
		return core.NewConfigurationError("agent_name", "agent name is required")
	}
	if c.MaxChainLength < 0 {
		return core.NewConfigurationError("max_chain_length", "must not be negative")
	}
	if c.MaxHistory < 0 {
		return core.NewConfigurationError("max_history", "must not be negative")
	}
	if c.Timeout < 0 {
		return core.NewConfigurationError("timeout", "must not be negative")
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return core.NewConfigurationError("rate_limit", "must not be negative")
	}

	seen := make(map[string]bool, len(c.Tools))
	for _, t := range c.Tools {
		if t == nil || t.Name() == "" {
			return core.NewConfigurationError("tools", "tool name is required")
		}
		if seen[t.Name()] {
			return &core.ConfigurationError{
				Field:   "tools",
				Message: fmt.Sprintf("duplicate tool %q", t.Name()),
				Err:     tool.ErrDuplicateTool,
			}
		}
		seen[t.Name()] = true
	}
	return nil
}

func (c Config) clone() Config {
	out := c
	out.Tools = append([]tool.Tool(nil), c.Tools...)
	return out
}

// AdapterOptions configures an Adapter using the functional options pattern.
type AdapterOptions struct {
	// Reasoner is the backend engine. Default: SimulatedReasoner.
	Reasoner core.Reasoner

	// Turns stores turn history. Default: in-memory store.
	Turns core.TurnStore

	Logger  logging.Logger
	Metrics *metrics.Collector

	// TracerProvider creates the phase spans. Default: the global provider.
	TracerProvider trace.TracerProvider

	Callbacks *CallbackManager
}

// RunOption customizes a single run.
type RunOption func(o *runOptions)

type runOptions struct {
	preamble string
	timeout  time.Duration
	metadata map[string]string
}

// WithPreamble passes context text (conversation window, team state) to the
// reasoner. The preamble is not recorded as turn input.
func WithPreamble(preamble string) RunOption {
	return func(o *runOptions) { o.preamble = preamble }
}

// WithTimeout overrides Config.Timeout for one run. 0 disables the timeout.
func WithTimeout(d time.Duration) RunOption {
	return func(o *runOptions) { o.timeout = d }
}

// WithMetadata attaches metadata to the recorded turn and callbacks.
func WithMetadata(md map[string]string) RunOption {
	return func(o *runOptions) {
		if o.metadata == nil {
			o.metadata = make(map[string]string, len(md))
		}
		for k, v := range md {
			o.metadata[k] = v
		}
	}
}
