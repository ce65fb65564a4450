package harness

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentbridge/agent"
	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/engine"
	"github.com/hupe1980/agentbridge/logging"
)

// Defaults used by New.
const (
	DefaultConcurrency     = 4
	DefaultScenarioTimeout = 10 * time.Second
)

// Scenario is a single named check.
type Scenario struct {
	Name     string
	Category string
	Run      func(ctx context.Context, env *Env) error
}

// Env is handed to every scenario. Each scenario builds its own agents, so
// scenarios never share state.
type Env struct {
	Logger      logging.Logger
	newReasoner func() core.Reasoner
}

// Reasoner returns a fresh backend from the configured factory.
func (e *Env) Reasoner() core.Reasoner {
	return e.newReasoner()
}

// NewAdapter builds and initializes an adapter on the configured backend.
// optFns run after the defaults and may replace the reasoner.
func (e *Env) NewAdapter(cfg engine.Config, optFns ...func(o *engine.AdapterOptions)) (*engine.Adapter, error) {
	a := engine.NewAdapter(append([]func(o *engine.AdapterOptions){func(o *engine.AdapterOptions) {
		o.Reasoner = e.Reasoner()
		o.Logger = e.Logger
	}}, optFns...)...)
	if err := a.Initialize(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// AgentOptions applies the configured backend and logger to a facade.
func (e *Env) AgentOptions(o *agent.Options) {
	o.Reasoner = e.Reasoner()
	o.Logger = e.Logger
}

// Options configures a Harness.
type Options struct {
	// Scenarios to run. Default: Catalogue().
	Scenarios []Scenario

	// Concurrency bounds how many scenarios run at once.
	Concurrency int

	// ScenarioTimeout bounds each scenario. 0 disables the bound.
	ScenarioTimeout time.Duration

	// NewReasoner creates the backend for each scenario. Default: an offline
	// SimulatedReasoner.
	NewReasoner func() core.Reasoner

	Logger logging.Logger
}

// Harness runs scenarios and reports the outcome.
type Harness struct {
	opts Options
}

// New creates a Harness.
func New(optFns ...func(o *Options)) *Harness {
	opts := Options{
		Concurrency:     DefaultConcurrency,
		ScenarioTimeout: DefaultScenarioTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Scenarios == nil {
		opts.Scenarios = Catalogue()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.NewReasoner == nil {
		opts.NewReasoner = func() core.Reasoner { return engine.NewSimulatedReasoner() }
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Harness{opts: opts}
}

// Run executes every scenario and returns the report. Scenario failures are
// recorded in the report; Run itself does not fail.
func (h *Harness) Run(ctx context.Context) *Report {
	start := time.Now()
	results := make([]Result, len(h.opts.Scenarios))

	h.opts.Logger.Info("harness.run.start", "scenarios", len(h.opts.Scenarios), "concurrency", h.opts.Concurrency)

	var g errgroup.Group
	g.SetLimit(h.opts.Concurrency)
	for i, sc := range h.opts.Scenarios {
		g.Go(func() error {
			results[i] = h.runScenario(ctx, sc)
			return nil
		})
	}
	_ = g.Wait()

	report := newReport(start, results)
	h.opts.Logger.Info("harness.run.complete",
		"total", report.Summary.Total,
		"passed", report.Summary.Passed,
		"failed", report.Summary.Failed,
		"duration", report.Summary.Duration,
	)
	return report
}

func (h *Harness) runScenario(ctx context.Context, sc Scenario) (res Result) {
	res = Result{Name: sc.Name, Category: sc.Category}
	start := time.Now()

	if h.opts.ScenarioTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.ScenarioTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			res.Passed = false
			res.Error = fmt.Sprintf("panic: %v", r)
			h.opts.Logger.Error("harness.scenario.panic", "scenario", sc.Name, "panic", r, "stack", string(debug.Stack()))
		}
		res.Duration = time.Since(start)
	}()

	env := &Env{Logger: h.opts.Logger, newReasoner: h.opts.NewReasoner}
	if err := sc.Run(ctx, env); err != nil {
		res.Error = err.Error()
		h.opts.Logger.Warn("harness.scenario.failed", "scenario", sc.Name, "category", sc.Category, "error", err)
		return res
	}
	res.Passed = true
	h.opts.Logger.Debug("harness.scenario.passed", "scenario", sc.Name, "category", sc.Category)
	return res
}
