package harness

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentbridge/engine"
	"github.com/hupe1980/agentbridge/logging"
)

// DefaultTestAgent runs cases that name no agent.
const DefaultTestAgent = "default_test_agent"

// Case statuses.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
	StatusError  = "error"
)

// TestCase is one ad-hoc check. An empty Expected passes any successful run;
// otherwise the output must contain it.
type TestCase struct {
	Agent    string `json:"agent,omitempty" yaml:"agent,omitempty"`
	Input    string `json:"input" yaml:"input"`
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`
}

// CaseResult is the outcome of one TestCase.
type CaseResult struct {
	ID       int           `json:"test_id" yaml:"test_id"`
	Agent    string        `json:"agent" yaml:"agent"`
	Input    string        `json:"input" yaml:"input"`
	Output   string        `json:"output,omitempty" yaml:"output,omitempty"`
	Expected string        `json:"expected,omitempty" yaml:"expected,omitempty"`
	Status   string        `json:"status" yaml:"status"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration `json:"duration_ns" yaml:"duration"`
}

// SuiteResult totals one RunTestSuite call.
type SuiteResult struct {
	Total   int          `json:"total_tests" yaml:"total_tests"`
	Passed  int          `json:"passed" yaml:"passed"`
	Failed  int          `json:"failed" yaml:"failed"`
	Details []CaseResult `json:"details" yaml:"details"`
}

// TestSummary describes every suite run so far.
type TestSummary struct {
	Sessions    int          `json:"total_test_sessions" yaml:"total_test_sessions"`
	Latest      *SuiteResult `json:"latest_results,omitempty" yaml:"latest_results,omitempty"`
	SuccessRate float64      `json:"overall_success_rate" yaml:"overall_success_rate"`
	Message     string       `json:"message,omitempty" yaml:"message,omitempty"`
}

// TestInterface runs ad-hoc cases against named adapters it owns.
type TestInterface struct {
	adapterOpts []func(o *engine.AdapterOptions)
	logger      logging.Logger

	mu     sync.Mutex
	agents map[string]*engine.Adapter
	suites []SuiteResult
}

// NewTestInterface creates a TestInterface. optFns configure every adapter
// it creates.
func NewTestInterface(optFns ...func(o *engine.AdapterOptions)) *TestInterface {
	resolved := engine.AdapterOptions{}
	for _, fn := range optFns {
		fn(&resolved)
	}
	return &TestInterface{
		adapterOpts: optFns,
		logger:      logging.OrNoOp(resolved.Logger),
		agents:      map[string]*engine.Adapter{},
	}
}

// CreateTestAgent creates or replaces the adapter registered under name.
// cfg.AgentName is forced to name.
func (ti *TestInterface) CreateTestAgent(name string, cfg engine.Config) (*engine.Adapter, error) {
	cfg.AgentName = name
	a := engine.NewAdapter(ti.adapterOpts...)
	if err := a.Initialize(cfg); err != nil {
		return nil, err
	}

	ti.mu.Lock()
	ti.agents[name] = a
	ti.mu.Unlock()

	ti.logger.Debug("harness.test_agent.created", "agent", name)
	return a, nil
}

// Agent returns the adapter registered under name.
func (ti *TestInterface) Agent(name string) (*engine.Adapter, bool) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	a, ok := ti.agents[name]
	return a, ok
}

func (ti *TestInterface) agentFor(name string) (*engine.Adapter, error) {
	if a, ok := ti.Agent(name); ok {
		return a, nil
	}
	return ti.CreateTestAgent(name, engine.DefaultConfig(name))
}

// RunTestSuite runs cases in order. Unknown agents are created with the
// default configuration on first use. A failing run marks its case as an
// error and the suite continues.
func (ti *TestInterface) RunTestSuite(ctx context.Context, cases []TestCase) SuiteResult {
	suite := SuiteResult{Total: len(cases), Details: make([]CaseResult, 0, len(cases))}

	for i, tc := range cases {
		name := tc.Agent
		if name == "" {
			name = DefaultTestAgent
		}
		res := CaseResult{ID: i, Agent: name, Input: tc.Input, Expected: tc.Expected}
		start := time.Now()

		a, err := ti.agentFor(name)
		if err == nil {
			res.Output, err = a.Run(ctx, tc.Input)
		}
		res.Duration = time.Since(start)

		switch {
		case err != nil:
			res.Status = StatusError
			res.Error = err.Error()
		case tc.Expected == "" || strings.Contains(res.Output, tc.Expected):
			res.Status = StatusPassed
		default:
			res.Status = StatusFailed
		}

		if res.Status == StatusPassed {
			suite.Passed++
		} else {
			suite.Failed++
			ti.logger.Warn("harness.case.failed", "case", i, "agent", name, "status", res.Status, "error", res.Error)
		}
		suite.Details = append(suite.Details, res)
	}

	ti.mu.Lock()
	ti.suites = append(ti.suites, suite)
	ti.mu.Unlock()
	return suite
}

// Summary reports the latest suite and the success rate across all suites.
func (ti *TestInterface) Summary() TestSummary {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	if len(ti.suites) == 0 {
		return TestSummary{Message: "No tests run yet"}
	}

	var total, passed int
	for _, s := range ti.suites {
		total += s.Total
		passed += s.Passed
	}
	latest := ti.suites[len(ti.suites)-1]
	latest.Details = append([]CaseResult(nil), latest.Details...)

	sum := TestSummary{Sessions: len(ti.suites), Latest: &latest}
	if total > 0 {
		sum.SuccessRate = float64(passed) / float64(total) * 100
	}
	return sum
}

// LoadCases decodes a YAML (or JSON) list of test cases.
func LoadCases(r io.Reader) ([]TestCase, error) {
	var cases []TestCase
	if err := yaml.NewDecoder(r).Decode(&cases); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode test cases: %w", err)
	}
	return cases, nil
}
