package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/logging"
	"github.com/hupe1980/agentbridge/memory"
	"github.com/hupe1980/agentbridge/tool"
)

const tracerName = "github.com/hupe1980/agentbridge/engine"

// DegradedPrefix starts every reply produced in degraded mode.
const DegradedPrefix = "[degraded]"

// degradedRecordTimeout bounds recording a degraded turn after the run
// context is already done.
const degradedRecordTimeout = time.Second

// Result is the detailed outcome of a run.
type Result struct {
	Output   string
	Turn     core.Turn
	Plan     *core.Plan
	Steps    []core.StepResult
	Phases   []core.Phase
	Degraded bool
	Duration time.Duration
}

// Adapter wraps a backend reasoner behind the fixed initialize / run / reset
// surface the orchestration layer calls.
//
// Each run walks the workflow plan → execute → reflect → done. Every reasoner
// call honours the run context, so a run blocks only its own caller. Distinct
// adapters share no locks; concurrent runs on one adapter are allowed and
// each appends its own turn.
//
// A run either records exactly one turn or, on failure, none.
type Adapter struct {
	opts   AdapterOptions
	tracer trace.Tracer

	mu          sync.RWMutex
	cfg         Config
	bridge      *tool.Bridge
	limiter     *rate.Limiter
	slots       *semaphore.Weighted
	initialized bool
}

// NewAdapter creates an uninitialized adapter with in-memory defaults.
//
// Example:
//
//	a := engine.NewAdapter(func(o *engine.AdapterOptions) {
//	    o.Logger = logger
//	})
//	if err := a.Initialize(engine.DefaultConfig("assistant")); err != nil {
//	    return err
//	}
//	out, err := a.Run(ctx, "hello")
func NewAdapter(optFns ...func(o *AdapterOptions)) *Adapter {
	opts := AdapterOptions{
		Reasoner: NewSimulatedReasoner(),
		Turns:    memory.NewInMemoryStore(),
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	return &Adapter{
		opts:   opts,
		tracer: opts.TracerProvider.Tracer(tracerName),
	}
}

// Initialize validates cfg and makes the adapter ready. Re-initialization
// replaces the configuration and tool set but keeps the turn history and the
// statistics of tools that stay registered. The agent name is fixed by the
// first Initialize; a different name is rejected.
func (a *Adapter) Initialize(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.clone()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized && a.cfg.AgentName != cfg.AgentName {
		return core.NewConfigurationError("agent_name",
			fmt.Sprintf("cannot rename initialized agent %q to %q", a.cfg.AgentName, cfg.AgentName))
	}

	if a.bridge == nil {
		a.bridge = tool.NewBridge(func(o *tool.BridgeOptions) {
			o.Agent = cfg.AgentName
			o.Logger = a.opts.Logger
			o.Metrics = a.opts.Metrics
		})
	}
	for _, name := range a.bridge.Names() {
		a.bridge.Unregister(name)
	}
	if err := a.bridge.Register(cfg.Tools...); err != nil {
		return &core.ConfigurationError{Field: "tools", Err: err}
	}

	a.limiter = nil
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst == 0 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	a.cfg = cfg
	a.initialized = true

	a.opts.Logger.Info("adapter.initialized",
		"agent", cfg.AgentName,
		"tools", len(cfg.Tools),
		"reflection", cfg.EnableReflection,
		"max_chain_length", cfg.MaxChainLength,
	)
	return nil
}

// Initialized reports whether Initialize succeeded.
func (a *Adapter) Initialized() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.initialized
}

// Name returns the configured agent name.
func (a *Adapter) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.AgentName
}

// Config returns a copy of the active configuration.
func (a *Adapter) Config() Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.clone()
}

// Tools returns the adapter's tool bridge, or nil before Initialize.
func (a *Adapter) Tools() *tool.Bridge {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bridge
}

// AddTools registers tools at runtime.
func (a *Adapter) AddTools(tools ...tool.Tool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return notInitialized()
	}
	if err := a.bridge.Register(tools...); err != nil {
		return err
	}
	a.cfg.Tools = append(a.cfg.Tools, tools...)
	return nil
}

// RemoveTool unregisters a tool. Its statistics stay readable through the
// bridge and recorded turns are not touched.
func (a *Adapter) RemoveTool(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized || !a.bridge.Unregister(name) {
		return false
	}
	kept := a.cfg.Tools[:0]
	for _, t := range a.cfg.Tools {
		if t.Name() != name {
			kept = append(kept, t)
		}
	}
	a.cfg.Tools = kept
	return true
}

// SetSystemPrompt replaces the system prompt for following runs.
func (a *Adapter) SetSystemPrompt(prompt string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.SystemPrompt = prompt
}

// History returns this agent's recorded turns, oldest first.
func (a *Adapter) History(ctx context.Context) ([]core.Turn, error) {
	name := a.Name()
	if name == "" {
		return nil, nil
	}
	return a.opts.Turns.List(ctx, name)
}

// Recall searches this agent's turns, newest first.
func (a *Adapter) Recall(ctx context.Context, query string, limit int) ([]core.Turn, error) {
	name := a.Name()
	if name == "" {
		return nil, nil
	}
	return a.opts.Turns.Search(ctx, name, query, limit)
}

// Reset clears this agent's turn history. Team context and the statistics
// of other agents are not affected.
func (a *Adapter) Reset(ctx context.Context) error {
	name := a.Name()
	if name == "" {
		return nil
	}
	if err := a.opts.Turns.Clear(ctx, name); err != nil {
		return err
	}
	a.opts.Logger.Info("adapter.reset", "agent", name)
	return nil
}

// Run executes one turn and returns its output.
func (a *Adapter) Run(ctx context.Context, input string, optFns ...RunOption) (string, error) {
	res, err := a.RunDetailed(ctx, input, optFns...)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// setSlots shares a concurrency cap with other adapters. Nil removes it.
func (a *Adapter) setSlots(slots *semaphore.Weighted) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slots = slots
}

// run holds the state of one invocation.
type run struct {
	cfg     Config
	bridge  *tool.Bridge
	limiter *rate.Limiter
	slots   *semaphore.Weighted
	opts    runOptions
	wf      *core.Workflow
	cb      *CallbackContext
	start   time.Time

	plan  *core.Plan
	steps []core.StepResult
	calls []core.ToolCallRecord
}

// RunDetailed executes one turn and returns the full result. Failures are
// returned as *core.WorkflowError unless the adapter runs in degraded mode.
func (a *Adapter) RunDetailed(ctx context.Context, input string, optFns ...RunOption) (*Result, error) {
	a.mu.RLock()
	if !a.initialized {
		a.mu.RUnlock()
		return nil, notInitialized()
	}
	r := &run{
		cfg:     a.cfg.clone(),
		bridge:  a.bridge,
		limiter: a.limiter,
		slots:   a.slots,
		wf:      core.NewWorkflow(),
		start:   time.Now(),
	}
	a.mu.RUnlock()

	r.opts.timeout = r.cfg.Timeout
	for _, fn := range optFns {
		fn(&r.opts)
	}
	r.cb = &CallbackContext{Agent: r.cfg.AgentName, Input: input, Metadata: r.opts.metadata}

	if r.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.timeout)
		defer cancel()
	}

	ctx, span := a.tracer.Start(ctx, "adapter.run", trace.WithAttributes(
		attribute.String("agent", r.cfg.AgentName),
	))
	defer span.End()

	a.opts.Logger.Debug("adapter.run.start", "agent", r.cfg.AgentName, "input_length", len(input))

	// Waiting for a slot counts against the run timeout.
	if r.slots != nil {
		if err := r.slots.Acquire(ctx, 1); err != nil {
			return a.fail(ctx, span, r, input, fmt.Errorf("wait for invocation slot: %w", err))
		}
		defer r.slots.Release(1)
	}

	if err := a.opts.Callbacks.ExecuteCallbacks(ctx, CallbackBeforeRun, r.cb); err != nil {
		return a.fail(ctx, span, r, input, err)
	}

	if err := a.phase(ctx, r, core.PhasePlan, func(ctx context.Context) error {
		return a.planPhase(ctx, r, input)
	}); err != nil {
		return a.fail(ctx, span, r, input, err)
	}

	if err := a.phase(ctx, r, core.PhaseExecute, func(ctx context.Context) error {
		return a.executePhase(ctx, r)
	}); err != nil {
		return a.fail(ctx, span, r, input, err)
	}

	output := Synthesize(r.steps)

	if r.cfg.EnableReflection {
		if err := a.phase(ctx, r, core.PhaseReflect, func(ctx context.Context) error {
			reflected, err := a.opts.Reasoner.Reflect(ctx, core.ReflectRequest{
				Agent:  r.cfg.AgentName,
				Input:  input,
				Result: output,
				Plan:   r.plan,
			})
			if err != nil {
				return err
			}
			output = reflected
			return nil
		}); err != nil {
			return a.fail(ctx, span, r, input, err)
		}
	}

	turn := a.newTurn(r, input, output, false)
	if err := a.opts.Turns.Append(ctx, r.cfg.AgentName, turn); err != nil {
		return a.fail(ctx, span, r, input, fmt.Errorf("record turn: %w", err))
	}
	if err := r.wf.Advance(core.PhaseDone); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("steps", len(r.steps)), attribute.Int("tool_calls", len(r.calls)))
	a.opts.Metrics.RecordRun(r.cfg.AgentName, turn.Duration, false, nil)
	a.opts.Logger.Info("adapter.run.success",
		"agent", r.cfg.AgentName,
		"steps", len(r.steps),
		"tool_calls", len(r.calls),
		"duration", turn.Duration,
	)

	r.cb.Phase = core.PhaseDone
	r.cb.Output = output
	if err := a.opts.Callbacks.ExecuteCallbacks(ctx, CallbackAfterRun, r.cb); err != nil {
		a.opts.Logger.Warn("adapter.callback.failed", "agent", r.cfg.AgentName, "type", CallbackAfterRun, "error", err)
	}

	return &Result{
		Output:   output,
		Turn:     turn.Clone(),
		Plan:     r.plan,
		Steps:    r.steps,
		Phases:   r.wf.Visited(),
		Duration: turn.Duration,
	}, nil
}

// phase runs fn inside the given workflow phase with its own span.
func (a *Adapter) phase(ctx context.Context, r *run, p core.Phase, fn func(ctx context.Context) error) error {
	if err := r.wf.Advance(p); err != nil {
		return err
	}
	r.cb.Phase = p

	ctx, span := a.tracer.Start(ctx, "adapter."+p.String())
	defer span.End()

	start := time.Now()
	if err := a.opts.Callbacks.ExecuteCallbacks(ctx, CallbackBeforePhase, r.cb); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err := fn(ctx)
	if err == nil {
		// A reasoner that ignored cancellation must not complete the phase.
		err = ctx.Err()
	}
	d := time.Since(start)
	logging.LogPhase(a.opts.Logger, r.cfg.AgentName, p.String(), d, err)
	a.opts.Metrics.RecordPhase(p.String(), d)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := a.opts.Callbacks.ExecuteCallbacks(ctx, CallbackAfterPhase, r.cb); err != nil {
		a.opts.Logger.Warn("adapter.callback.failed", "agent", r.cfg.AgentName, "type", CallbackAfterPhase, "error", err)
	}
	return nil
}

func (a *Adapter) planPhase(ctx context.Context, r *run, input string) error {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	var history []core.Turn
	if r.cfg.MemoryEnabled {
		var err error
		if r.cfg.MaxHistory > 0 {
			history, err = a.opts.Turns.Last(ctx, r.cfg.AgentName, r.cfg.MaxHistory)
		} else {
			history, err = a.opts.Turns.List(ctx, r.cfg.AgentName)
		}
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
	}

	plan, err := a.opts.Reasoner.Plan(ctx, core.PlanRequest{
		Agent:        r.cfg.AgentName,
		SystemPrompt: r.cfg.SystemPrompt,
		Preamble:     r.opts.preamble,
		Input:        input,
		Tools:        r.bridge.Specs(),
		History:      history,
	})
	if err != nil {
		return err
	}
	if plan == nil {
		plan = &core.Plan{}
	}
	r.plan = plan
	return nil
}

func (a *Adapter) executePhase(ctx context.Context, r *run) error {
	limiter := core.NewStepLimiter(r.cfg.MaxChainLength)
	if err := limiter.Check(len(r.plan.Steps)); err != nil {
		return err
	}

	r.steps = make([]core.StepResult, 0, len(r.plan.Steps))
	for _, step := range r.plan.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := limiter.Increment(); err != nil {
			return err
		}

		var (
			res core.StepResult
			err error
		)
		if step.Tool != "" {
			res, err = a.toolStep(ctx, r, step)
		} else {
			var out string
			out, err = a.opts.Reasoner.ExecuteStep(ctx, step)
			res = core.StepResult{Step: step, Output: out}
		}
		if err != nil {
			return err
		}
		r.steps = append(r.steps, res)
	}
	return nil
}

func (a *Adapter) toolStep(ctx context.Context, r *run, step core.Step) (core.StepResult, error) {
	r.cb.Step = &step
	r.cb.Tool = nil
	defer func() { r.cb.Step, r.cb.Tool = nil, nil }()

	if err := a.opts.Callbacks.ExecuteCallbacks(ctx, CallbackBeforeTool, r.cb); err != nil {
		return core.StepResult{}, err
	}

	record := core.ToolCallRecord{ID: core.NewID(), Tool: step.Tool, Args: step.Args}
	callCtx := tool.WithCallInfo(ctx, tool.CallInfo{
		Agent:  r.cfg.AgentName,
		CallID: record.ID,
		Logger: a.opts.Logger,
	})

	start := time.Now()
	result, err := r.bridge.Invoke(callCtx, step.Tool, step.Args)
	record.Latency = time.Since(start)
	record.Result = result
	if err != nil {
		record.Error = err.Error()
	}
	r.calls = append(r.calls, record)

	r.cb.Tool = &record
	if cbErr := a.opts.Callbacks.ExecuteCallbacks(ctx, CallbackAfterTool, r.cb); cbErr != nil {
		a.opts.Logger.Warn("adapter.callback.failed", "agent", r.cfg.AgentName, "type", CallbackAfterTool, "error", cbErr)
	}

	if err != nil {
		return core.StepResult{}, err
	}
	return core.StepResult{
		Step:   step,
		Output: fmt.Sprintf("Tool %s returned: %s", step.Tool, FormatValue(result)),
		Tool:   &record,
	}, nil
}

// fail tags err with the active phase. In degraded mode a flagged reply is
// recorded instead of returning the error.
func (a *Adapter) fail(ctx context.Context, span trace.Span, r *run, input string, err error) (*Result, error) {
	phase := r.wf.Fail()
	wfErr := &core.WorkflowError{Agent: r.cfg.AgentName, Phase: phase, Err: err}

	span.RecordError(wfErr)
	span.SetStatus(codes.Error, wfErr.Error())

	r.cb.Phase = phase
	r.cb.Err = wfErr
	if cbErr := a.opts.Callbacks.ExecuteCallbacks(ctx, CallbackOnError, r.cb); cbErr != nil {
		a.opts.Logger.Warn("adapter.callback.failed", "agent", r.cfg.AgentName, "type", CallbackOnError, "error", cbErr)
	}

	if !r.cfg.Degraded {
		a.opts.Metrics.RecordRun(r.cfg.AgentName, time.Since(r.start), false, wfErr)
		a.opts.Logger.Error("adapter.run.failed", "agent", r.cfg.AgentName, "phase", phase.String(), "error", err)
		return nil, wfErr
	}

	output := fmt.Sprintf("%s %s could not complete the request (%s phase failed): %v",
		DegradedPrefix, r.cfg.AgentName, phase, err)
	recordCtx := ctx
	if ctx.Err() != nil {
		// A timed out run still records its flagged reply, within a short window.
		var cancel context.CancelFunc
		recordCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), degradedRecordTimeout)
		defer cancel()
	}
	turn := a.newTurn(r, input, output, true)
	if appendErr := a.opts.Turns.Append(recordCtx, r.cfg.AgentName, turn); appendErr != nil {
		a.opts.Metrics.RecordRun(r.cfg.AgentName, time.Since(r.start), false, wfErr)
		return nil, wfErr
	}

	span.SetAttributes(attribute.Bool("degraded", true))
	a.opts.Metrics.RecordRun(r.cfg.AgentName, turn.Duration, true, nil)
	a.opts.Logger.Warn("adapter.run.degraded", "agent", r.cfg.AgentName, "phase", phase.String(), "error", err)

	return &Result{
		Output:   output,
		Turn:     turn.Clone(),
		Plan:     r.plan,
		Steps:    r.steps,
		Phases:   r.wf.Visited(),
		Degraded: true,
		Duration: turn.Duration,
	}, nil
}

func (a *Adapter) newTurn(r *run, input, output string, degraded bool) core.Turn {
	turn := core.NewTurn(r.cfg.AgentName, input, output)
	turn.Duration = time.Since(r.start)
	turn.Degraded = degraded
	if len(r.calls) > 0 {
		turn.ToolCalls = append([]core.ToolCallRecord(nil), r.calls...)
	}
	if len(r.opts.metadata) > 0 {
		turn.Metadata = make(map[string]string, len(r.opts.metadata))
		for k, v := range r.opts.metadata {
			turn.Metadata[k] = v
		}
	}
	return turn
}

// Synthesize joins step outputs into the final answer. A plan consisting of
// a single respond step yields that step's output unchanged.
func Synthesize(results []core.StepResult) string {
	if len(results) == 0 {
		return "No results to synthesize"
	}
	if len(results) == 1 && results[0].Step.Action == core.ActionRespond {
		return results[0].Output
	}

	var b strings.Builder
	b.WriteString("Completed the following steps:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Output)
	}
	b.WriteString("\nTask completed successfully.")
	return b.String()
}

// FormatValue renders a tool result for step output: strings verbatim,
// everything else as JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// StripReflection removes the reflection note appended by the reflect phase.
func StripReflection(output string) string {
	if idx := strings.Index(output, ReflectionMarker); idx >= 0 {
		output = output[:idx]
	}
	return strings.TrimSpace(output)
}

func notInitialized() error {
	return &core.ConfigurationError{Message: "initialize must be called before use", Err: core.ErrNotInitialized}
}
