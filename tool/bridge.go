package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/internal/metrics"
	"github.com/hupe1980/agentbridge/logging"
)

// ErrDuplicateTool is returned when a tool name is already registered.
var ErrDuplicateTool = errors.New("tool already registered")

// Stats is a snapshot of one tool's usage counters.
type Stats struct {
	Name         string        `json:"name"`
	Calls        int           `json:"calls"`
	Failures     int           `json:"failures"`
	TotalLatency time.Duration `json:"total_latency"`
	LastLatency  time.Duration `json:"last_latency"`
	LastCalled   time.Time     `json:"last_called,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	Registered   bool          `json:"registered"`
}

// AverageLatency returns the mean call latency.
func (s Stats) AverageLatency() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Calls)
}

// SuccessRate returns the share of calls that succeeded, 0 when never called.
func (s Stats) SuccessRate() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.Calls-s.Failures) / float64(s.Calls)
}

type entry struct {
	tool  Tool
	mu    sync.Mutex
	stats Stats
}

func (e *entry) record(d time.Duration, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Calls++
	e.stats.TotalLatency += d
	e.stats.LastLatency = d
	e.stats.LastCalled = time.Now().UTC()
	if err != nil {
		e.stats.Failures++
		e.stats.LastError = err.Error()
	}
}

func (e *entry) snapshot() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	// Agent owning the bridge; attached to CallInfo and log lines.
	Agent   string
	Logger  logging.Logger
	Metrics *metrics.Collector
}

// Bridge mediates tool invocations for one agent: lookup, argument passing,
// panic containment and usage statistics. Statistics for each tool are
// updated under that tool's own lock so concurrent calls never lose counts.
type Bridge struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	retired map[string]Stats
	opts    BridgeOptions
}

// NewBridge creates an empty bridge.
func NewBridge(optFns ...func(o *BridgeOptions)) *Bridge {
	opts := BridgeOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Bridge{
		entries: make(map[string]*entry),
		retired: make(map[string]Stats),
		opts:    opts,
	}
}

// Register adds tools. It fails without registering anything if any name is
// empty, repeated or already present.
func (b *Bridge) Register(tools ...Tool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		name := t.Name()
		if name == "" {
			return fmt.Errorf("tool name must not be empty")
		}
		if _, ok := b.entries[name]; ok || seen[name] {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		seen[name] = true
	}

	for _, t := range tools {
		name := t.Name()
		stats := Stats{Name: name, Registered: true}
		if prev, ok := b.retired[name]; ok {
			stats = prev
			stats.Registered = true
			delete(b.retired, name)
		}
		b.entries[name] = &entry{tool: t, stats: stats}
		b.order = append(b.order, name)
		b.opts.Logger.Debug("tool.registered", "agent", b.opts.Agent, "tool", name)
	}

	return nil
}

// Unregister removes a tool. Its final statistics stay available via Stats.
// It reports whether the tool was registered.
func (b *Bridge) Unregister(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[name]
	if !ok {
		return false
	}
	final := e.snapshot()
	final.Registered = false
	b.retired[name] = final
	delete(b.entries, name)
	for i, n := range b.order {
		if n == name {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	b.opts.Logger.Debug("tool.unregistered", "agent", b.opts.Agent, "tool", name)

	return true
}

// Has reports whether name is registered.
func (b *Bridge) Has(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[name]
	return ok
}

// Get returns the registered tool.
func (b *Bridge) Get(name string) (Tool, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Names returns registered tool names in registration order.
func (b *Bridge) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Len returns the number of registered tools.
func (b *Bridge) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Specs describes the registered tools in registration order.
func (b *Bridge) Specs() []core.ToolSpec {
	b.mu.RLock()
	defer b.mu.RUnlock()
	specs := make([]core.ToolSpec, 0, len(b.order))
	for _, name := range b.order {
		specs = append(specs, Spec(b.entries[name].tool))
	}
	return specs
}

// Invoke runs the named tool. An unknown name yields *core.UnknownToolError;
// a failing or panicking tool yields *core.ToolExecutionError wrapping the
// cause. Failures are reported, never retried.
func (b *Bridge) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	b.mu.RLock()
	e, ok := b.entries[name]
	b.mu.RUnlock()
	if !ok {
		b.opts.Logger.Warn("tool.call.unknown", "agent", b.opts.Agent, "tool", name)
		return nil, &core.UnknownToolError{Name: name}
	}

	callID := core.NewID()
	if info, ok := ctx.Value(callInfoKey{}).(CallInfo); ok && info.CallID != "" {
		callID = info.CallID
	}
	ctx = WithCallInfo(ctx, CallInfo{Agent: b.opts.Agent, CallID: callID, Logger: b.opts.Logger})

	start := time.Now()
	result, err := safeCall(ctx, e.tool, args)
	d := time.Since(start)

	e.record(d, err)
	b.opts.Metrics.RecordToolCall(name, d, err)
	logging.LogToolCall(b.opts.Logger, b.opts.Agent, name, d, err)

	if err != nil {
		return nil, &core.ToolExecutionError{Tool: name, Err: err}
	}
	return result, nil
}

func safeCall(ctx context.Context, t Tool, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.Call(ctx, args)
}

// Stats returns usage statistics for a registered or previously
// unregistered tool.
func (b *Bridge) Stats(name string) (Stats, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if e, ok := b.entries[name]; ok {
		return e.snapshot(), true
	}
	s, ok := b.retired[name]
	return s, ok
}

// AllStats returns statistics for every tool the bridge has known, sorted by name.
func (b *Bridge) AllStats() []Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Stats, 0, len(b.entries)+len(b.retired))
	for _, e := range b.entries {
		out = append(out, e.snapshot())
	}
	for _, s := range b.retired {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TotalCalls sums calls across all known tools.
func (b *Bridge) TotalCalls() int {
	total := 0
	for _, s := range b.AllStats() {
		total += s.Calls
	}
	return total
}
