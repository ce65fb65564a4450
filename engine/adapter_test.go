package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/internal/metrics"
	"github.com/hupe1980/agentbridge/internal/testutil"
	"github.com/hupe1980/agentbridge/tool"
)

type doubleArgs struct {
	X float64 `json:"x" description:"Number to double"`
}

func newDoubleTool() tool.Tool {
	return tool.NewTypedTool("double", "Double a number", func(_ context.Context, a doubleArgs) (any, error) {
		return a.X * 2, nil
	})
}

func newAdapter(t *testing.T, cfg Config, optFns ...func(o *AdapterOptions)) *Adapter {
	t.Helper()
	a := NewAdapter(optFns...)
	require.NoError(t, a.Initialize(cfg))
	return a
}

func withReasoner(r core.Reasoner) func(o *AdapterOptions) {
	return func(o *AdapterOptions) { o.Reasoner = r }
}

func TestAdapter_InitializeValidation(t *testing.T) {
	a := NewAdapter()

	var cfgErr *core.ConfigurationError
	err := a.Initialize(Config{})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "agent_name", cfgErr.Field)
	assert.False(t, a.Initialized())

	err = a.Initialize(Config{AgentName: "a", MaxChainLength: -1})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "max_chain_length", cfgErr.Field)

	err = a.Initialize(Config{AgentName: "a", Tools: []tool.Tool{tool.NewEchoTool(), tool.NewEchoTool()}})
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, tool.ErrDuplicateTool)
}

func TestAdapter_RunBeforeInitialize(t *testing.T) {
	_, err := NewAdapter().Run(context.Background(), "hello")

	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, core.ErrNotInitialized)
}

func TestAdapter_RunRecordsExactlyOneTurn(t *testing.T) {
	a := newAdapter(t, DefaultConfig("A"))

	out, err := a.Run(context.Background(), "hello")
	require.NoError(t, err)

	want := "Completed the following steps:\n" +
		"1. Analysis of: hello\n" +
		"2. Executed: planned_response\n" +
		"3. Validated: result\n" +
		"\nTask completed successfully." +
		"\n[Reflection] Evaluated result for input: 'hello...'"
	assert.Equal(t, want, out)

	turns, err := a.History(context.Background())
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "A", turns[0].Agent)
	assert.Equal(t, "hello", turns[0].Input)
	assert.Equal(t, out, turns[0].Output)
	assert.False(t, turns[0].Degraded)
}

func TestAdapter_ReflectionDisabled(t *testing.T) {
	cfg := DefaultConfig("A")
	cfg.EnableReflection = false
	a := newAdapter(t, cfg)

	res, err := a.RunDetailed(context.Background(), "hi")
	require.NoError(t, err)
	assert.NotContains(t, res.Output, ReflectionMarker)
	assert.Equal(t, []core.Phase{core.PhasePending, core.PhasePlan, core.PhaseExecute, core.PhaseDone}, res.Phases)
}

func TestAdapter_ToolDirective(t *testing.T) {
	cfg := DefaultConfig("B")
	cfg.Tools = []tool.Tool{newDoubleTool()}
	a := newAdapter(t, cfg)

	res, err := a.RunDetailed(context.Background(), "please compute double(21)")
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Tool double returned: 42")

	stats, ok := a.Tools().Stats("double")
	require.True(t, ok)
	assert.Equal(t, 1, stats.Calls)

	require.Len(t, res.Turn.ToolCalls, 1)
	assert.Equal(t, "double", res.Turn.ToolCalls[0].Tool)
	assert.Equal(t, 42.0, res.Turn.ToolCalls[0].Result)
	assert.Equal(t, []string{"double"}, res.Plan.ToolsNeeded)
}

func TestAdapter_ResetOnlyClearsOwnHistory(t *testing.T) {
	cfgA := DefaultConfig("A")
	cfgA.Tools = []tool.Tool{newDoubleTool()}
	a := newAdapter(t, cfgA)

	cfgB := DefaultConfig("B")
	cfgB.Tools = []tool.Tool{newDoubleTool()}
	b := newAdapter(t, cfgB)

	ctx := context.Background()
	_, err := a.Run(ctx, "double(1)")
	require.NoError(t, err)
	_, err = b.Run(ctx, "double(2)")
	require.NoError(t, err)

	require.NoError(t, a.Reset(context.Background()))

	turnsA, err := a.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, turnsA)

	turnsB, err := b.History(context.Background())
	require.NoError(t, err)
	assert.Len(t, turnsB, 1)

	statsA, _ := a.Tools().Stats("double")
	statsB, _ := b.Tools().Stats("double")
	assert.Equal(t, 1, statsA.Calls)
	assert.Equal(t, 1, statsB.Calls)
}

func TestAdapter_UnregisterKeepsStatsAndTurns(t *testing.T) {
	cfg := DefaultConfig("B")
	cfg.Tools = []tool.Tool{newDoubleTool()}
	a := newAdapter(t, cfg)

	_, err := a.Run(context.Background(), "double(21)")
	require.NoError(t, err)

	before, err := a.History(context.Background())
	require.NoError(t, err)

	require.True(t, a.RemoveTool("double"))
	assert.Empty(t, a.Config().Tools)

	stats, ok := a.Tools().Stats("double")
	require.True(t, ok)
	assert.Equal(t, 1, stats.Calls)
	assert.False(t, stats.Registered)

	after, err := a.History(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Without the tool the directive is plain text.
	out, err := a.Run(context.Background(), "double(21)")
	require.NoError(t, err)
	assert.NotContains(t, out, "Tool double returned")
}

func TestAdapter_AddTools(t *testing.T) {
	a := newAdapter(t, DefaultConfig("A"))
	require.NoError(t, a.AddTools(newDoubleTool()))
	assert.ErrorIs(t, a.AddTools(newDoubleTool()), tool.ErrDuplicateTool)

	out, err := a.Run(context.Background(), "double(x=4)")
	require.NoError(t, err)
	assert.Contains(t, out, "Tool double returned: 8")
}

func TestAdapter_PhaseFailuresRecordNoTurn(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		reasoner *testutil.ScriptedReasoner
		phase    core.Phase
	}{
		{"plan", testutil.NewScriptedReasoner().FailPlan(boom), core.PhasePlan},
		{"execute", testutil.NewScriptedReasoner().FailSteps(boom), core.PhaseExecute},
		{"reflect", testutil.NewScriptedReasoner().FailReflect(boom), core.PhaseReflect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdapter(t, DefaultConfig("A"), withReasoner(tt.reasoner))

			_, err := a.Run(context.Background(), "hello")

			var wfErr *core.WorkflowError
			require.ErrorAs(t, err, &wfErr)
			assert.Equal(t, tt.phase, wfErr.Phase)
			assert.Equal(t, "A", wfErr.Agent)
			assert.ErrorIs(t, err, boom)

			turns, err := a.History(context.Background())
			require.NoError(t, err)
			assert.Empty(t, turns)
		})
	}
}

func TestAdapter_UnknownToolFailsExecute(t *testing.T) {
	plan := testutil.NewPlanBuilder().Tool("missing", nil).Build()
	a := newAdapter(t, DefaultConfig("A"), withReasoner(testutil.NewScriptedReasoner().WithPlan(plan)))

	_, err := a.Run(context.Background(), "x")

	var unknown *core.UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.Name)
	assert.Equal(t, core.PhaseExecute, core.PhaseOf(err))
}

func TestAdapter_ToolFailureIsNotRetried(t *testing.T) {
	cfg := DefaultConfig("A")
	cfg.Tools = []tool.Tool{tool.NewDivideTool()}
	a := newAdapter(t, cfg)

	_, err := a.Run(context.Background(), "divide(1, 0)")

	var execErr *core.ToolExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, core.PhaseExecute, core.PhaseOf(err))

	stats, _ := a.Tools().Stats("divide")
	assert.Equal(t, 1, stats.Calls)
	assert.Equal(t, 1, stats.Failures)
}

func TestAdapter_ChainLimit(t *testing.T) {
	plan := testutil.NewPlanBuilder().Step("a", "1").Step("b", "2").Step("c", "3").Build()
	cfg := DefaultConfig("A")
	cfg.MaxChainLength = 2
	reasoner := testutil.NewScriptedReasoner().WithPlan(plan)
	a := newAdapter(t, cfg, withReasoner(reasoner))

	_, err := a.Run(context.Background(), "x")
	assert.ErrorIs(t, err, core.ErrChainLimit)
	assert.Equal(t, core.PhaseExecute, core.PhaseOf(err))
	assert.Empty(t, reasoner.ExecutedSteps())
}

func TestAdapter_Timeout(t *testing.T) {
	a := newAdapter(t, DefaultConfig("A"), withReasoner(testutil.NewScriptedReasoner().BlockUntilDone()))

	_, err := a.Run(context.Background(), "x", WithTimeout(20*time.Millisecond))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, core.PhasePlan, core.PhaseOf(err))

	cfg := DefaultConfig("B")
	cfg.Timeout = 20 * time.Millisecond
	b := newAdapter(t, cfg, withReasoner(testutil.NewScriptedReasoner().BlockUntilDone()))
	_, err = b.Run(context.Background(), "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAdapter_DegradedMode(t *testing.T) {
	cfg := DefaultConfig("A")
	cfg.Degraded = true
	a := newAdapter(t, cfg, withReasoner(testutil.NewScriptedReasoner().FailPlan(errors.New("backend offline"))))

	res, err := a.RunDetailed(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.True(t, len(res.Output) > len(DegradedPrefix))
	assert.Equal(t, DegradedPrefix, res.Output[:len(DegradedPrefix)])
	assert.Contains(t, res.Output, "backend offline")

	turns, err := a.History(context.Background())
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.True(t, turns[0].Degraded)
}

func TestAdapter_DegradedTimeoutIsRecorded(t *testing.T) {
	cfg := DefaultConfig("A")
	cfg.Degraded = true
	cfg.Timeout = 20 * time.Millisecond
	a := newAdapter(t, cfg, withReasoner(testutil.NewScriptedReasoner().BlockUntilDone()))

	res, err := a.RunDetailed(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, res.Degraded)

	turns, err := a.History(context.Background())
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.True(t, turns[0].Degraded)
}

func TestAdapter_HistoryAndPreamble(t *testing.T) {
	reasoner := testutil.NewScriptedReasoner()
	cfg := DefaultConfig("A")
	cfg.MaxHistory = 1
	a := newAdapter(t, cfg, withReasoner(reasoner))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := a.Run(ctx, fmt.Sprintf("msg %d", i), WithPreamble("team says hi"))
		require.NoError(t, err)
	}

	reqs := reasoner.PlanRequests()
	require.Len(t, reqs, 3)
	assert.Empty(t, reqs[0].History)
	require.Len(t, reqs[2].History, 1)
	assert.Equal(t, "msg 1", reqs[2].History[0].Input)
	assert.Equal(t, "team says hi", reqs[2].Preamble)

	turns, err := a.History(context.Background())
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "msg 2", turns[2].Input)
	assert.Equal(t, "msg 2", turns[2].Output, "single respond step is returned unchanged")
}

func TestAdapter_MemoryDisabledHidesHistory(t *testing.T) {
	reasoner := testutil.NewScriptedReasoner()
	cfg := DefaultConfig("A")
	cfg.MemoryEnabled = false
	a := newAdapter(t, cfg, withReasoner(reasoner))

	for i := 0; i < 2; i++ {
		_, err := a.Run(context.Background(), "x")
		require.NoError(t, err)
	}
	assert.Empty(t, reasoner.PlanRequests()[1].History)

	turns, err := a.History(context.Background())
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestAdapter_ReinitializeKeepsHistory(t *testing.T) {
	a := newAdapter(t, DefaultConfig("A"))
	_, err := a.Run(context.Background(), "hello")
	require.NoError(t, err)

	cfg := DefaultConfig("A")
	cfg.SystemPrompt = "new prompt"
	require.NoError(t, a.Initialize(cfg))

	turns, err := a.History(context.Background())
	require.NoError(t, err)
	assert.Len(t, turns, 1)
	assert.Equal(t, "new prompt", a.Config().SystemPrompt)
}

func TestAdapter_ReinitializeRejectsRename(t *testing.T) {
	cfg := DefaultConfig("A")
	cfg.Tools = []tool.Tool{newDoubleTool()}
	a := newAdapter(t, cfg)
	_, err := a.Run(context.Background(), "double(2)")
	require.NoError(t, err)

	renamed := cfg
	renamed.AgentName = "B"
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, a.Initialize(renamed), &cfgErr)
	assert.Equal(t, "agent_name", cfgErr.Field)

	// The rejected call leaves the adapter untouched.
	assert.Equal(t, "A", a.Name())
	stats, ok := a.Tools().Stats("double")
	require.True(t, ok)
	assert.Equal(t, 1, stats.Calls)
	turns, err := a.History(context.Background())
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestAdapter_Callbacks(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(ct CallbackType) Callback {
		return NewFunctionCallback(ct, func(_ context.Context, cc *CallbackContext) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, fmt.Sprintf("%s:%s", cc.CallbackType, cc.Phase))
			return nil
		})
	}

	callbacks := NewCallbackManager()
	for _, ct := range []CallbackType{CallbackBeforeRun, CallbackBeforePhase, CallbackAfterPhase, CallbackAfterRun} {
		callbacks.RegisterCallback(record(ct))
	}

	cfg := DefaultConfig("A")
	cfg.EnableReflection = false
	a := newAdapter(t, cfg, func(o *AdapterOptions) { o.Callbacks = callbacks })

	_, err := a.Run(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"before_run:pending",
		"before_phase:plan",
		"after_phase:plan",
		"before_phase:execute",
		"after_phase:execute",
		"after_run:done",
	}, events)
}

func TestAdapter_ToolPolicyCallback(t *testing.T) {
	callbacks := NewCallbackManager()
	callbacks.RegisterCallback(NewToolPolicyCallback("add"))

	var onError error
	callbacks.RegisterCallback(NewFunctionCallback(CallbackOnError, func(_ context.Context, cc *CallbackContext) error {
		onError = cc.Err
		return nil
	}))

	cfg := DefaultConfig("A")
	cfg.Tools = []tool.Tool{tool.NewAddTool(), newDoubleTool()}
	a := newAdapter(t, cfg, func(o *AdapterOptions) { o.Callbacks = callbacks })

	out, err := a.Run(context.Background(), "add(2, 3)")
	require.NoError(t, err)
	assert.Contains(t, out, "Tool add returned: 5")

	_, err = a.Run(context.Background(), "double(2)")
	require.Error(t, err)
	assert.Equal(t, core.PhaseExecute, core.PhaseOf(err))
	assert.Contains(t, err.Error(), "not allowed")
	assert.Equal(t, err, onError)

	stats, _ := a.Tools().Stats("double")
	assert.Equal(t, 0, stats.Calls)
}

func TestAdapter_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	a := newAdapter(t, DefaultConfig("A"), func(o *AdapterOptions) { o.TracerProvider = tp })
	_, err := a.Run(context.Background(), "hello")
	require.NoError(t, err)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"adapter.plan", "adapter.execute", "adapter.reflect", "adapter.run"}, names)
}

func TestAdapter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("engine_test", reg)

	a := newAdapter(t, DefaultConfig("A"), func(o *AdapterOptions) { o.Metrics = collector })
	_, err := a.Run(context.Background(), "hello")
	require.NoError(t, err)

	n, err := promtestutil.GatherAndCount(reg, "engine_test_adapter_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = promtestutil.GatherAndCount(reg, "engine_test_adapter_phase_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAdapter_ConcurrentRuns(t *testing.T) {
	a := newAdapter(t, DefaultConfig("A"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.Run(context.Background(), fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	turns, err := a.History(context.Background())
	require.NoError(t, err)
	assert.Len(t, turns, 20)
}

func TestSynthesize(t *testing.T) {
	assert.Equal(t, "No results to synthesize", Synthesize(nil))
	assert.Equal(t, "hi", Synthesize([]core.StepResult{{Step: core.Step{Action: core.ActionRespond}, Output: "hi"}}))
	assert.Equal(t,
		"Completed the following steps:\n1. a\n2. b\n\nTask completed successfully.",
		Synthesize([]core.StepResult{{Output: "a"}, {Output: "b"}}),
	)
}

func TestStripReflection(t *testing.T) {
	assert.Equal(t, "answer", StripReflection("answer\n[Reflection] fine"))
	assert.Equal(t, "answer", StripReflection("  answer  "))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "42", FormatValue(42.0))
	assert.Equal(t, "text", FormatValue("text"))
	assert.Equal(t, "null", FormatValue(nil))
	assert.Equal(t, `{"words":2}`, FormatValue(map[string]any{"words": 2}))
}
