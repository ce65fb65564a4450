package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agentbridge/logging"
)

var (
	// ErrAgentNotFound is returned when no adapter is registered under a name.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAgentExists is returned when registering a name twice.
	ErrAgentExists = errors.New("agent already registered")
)

// Options configures an Engine instance using the functional options pattern.
type Options struct {
	// MaxConcurrentInvocations bounds in-flight runs across all registered
	// agents, whether they are started through the engine or directly on the
	// adapter. 0 means unlimited, so runs for distinct agents never wait on
	// each other.
	MaxConcurrentInvocations int64

	Logger logging.Logger
}

// Engine is a thread-safe registry of initialized adapters keyed by agent
// name. It routes runs by name and optionally caps global concurrency.
//
// Example:
//
//	eng := engine.New(func(o *engine.Options) {
//	    o.MaxConcurrentInvocations = 50
//	})
//	_ = eng.Register(adapter)
//	out, err := eng.Run(ctx, "assistant", "hello")
type Engine struct {
	logger logging.Logger
	sem    *semaphore.Weighted

	mu       sync.RWMutex
	adapters map[string]*Adapter
}

// New creates an empty engine.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	e := &Engine{
		logger:   logging.OrNoOp(opts.Logger),
		adapters: make(map[string]*Adapter),
	}
	if opts.MaxConcurrentInvocations > 0 {
		e.sem = semaphore.NewWeighted(opts.MaxConcurrentInvocations)
	}
	return e
}

// Register adds an initialized adapter under its agent name.
func (e *Engine) Register(a *Adapter) error {
	if a == nil || !a.Initialized() {
		return notInitialized()
	}
	name := a.Name()

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.adapters[name]; ok {
		return fmt.Errorf("%w: %s", ErrAgentExists, name)
	}
	if e.sem != nil {
		a.setSlots(e.sem)
	}
	e.adapters[name] = a
	e.logger.Info("engine.agent.registered", "agent", name)
	return nil
}

// Unregister removes an adapter. Its turn history is left in place.
func (e *Engine) Unregister(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.adapters[name]
	if !ok {
		return false
	}
	if e.sem != nil {
		a.setSlots(nil)
	}
	delete(e.adapters, name)
	e.logger.Info("engine.agent.unregistered", "agent", name)
	return true
}

// Get returns the adapter registered under name.
func (e *Engine) Get(name string) (*Adapter, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.adapters[name]
	return a, ok
}

// Names returns the registered agent names sorted alphabetically.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.adapters))
	for name := range e.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one turn on the named agent. With a concurrency cap the run
// waits for a free slot or the context.
func (e *Engine) Run(ctx context.Context, agent, input string, optFns ...RunOption) (string, error) {
	res, err := e.RunDetailed(ctx, agent, input, optFns...)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// RunDetailed is Run returning the full result.
func (e *Engine) RunDetailed(ctx context.Context, agent, input string, optFns ...RunOption) (*Result, error) {
	a, ok := e.Get(agent)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agent)
	}
	return a.RunDetailed(ctx, input, optFns...)
}

// Reset clears the turn history of the named agent.
func (e *Engine) Reset(ctx context.Context, agent string) error {
	a, ok := e.Get(agent)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agent)
	}
	return a.Reset(ctx)
}
