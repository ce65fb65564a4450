package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentbridge/agent"
	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/engine"
	"github.com/hupe1980/agentbridge/memory"
	"github.com/hupe1980/agentbridge/team"
	"github.com/hupe1980/agentbridge/tool"
)

// Scenario categories in report order.
const (
	CategoryBasic          = "Basic Integration"
	CategoryConversational = "Conversational Agents"
	CategoryDialogue       = "Dialogue with Tools"
	CategoryTeam           = "Team Coordination"
	CategoryPerformance    = "Performance Tests"
	CategoryErrors         = "Error Handling"
)

// Categories returns the category names in report order.
func Categories() []string {
	return []string{
		CategoryBasic,
		CategoryConversational,
		CategoryDialogue,
		CategoryTeam,
		CategoryPerformance,
		CategoryErrors,
	}
}

// Catalogue returns the built-in scenarios. Outputs are checked against the
// simulated backend's phrasing where a scenario needs a tool directive.
func Catalogue() []Scenario {
	return []Scenario{
		{Name: "run records exactly one turn", Category: CategoryBasic, Run: runRecordsOneTurn},
		{Name: "reset clears only own history", Category: CategoryBasic, Run: resetIsolatesAgents},
		{Name: "engine routes runs by agent name", Category: CategoryBasic, Run: engineRoutesByName},
		{Name: "reinitialize keeps history", Category: CategoryBasic, Run: reinitializeKeepsHistory},

		{Name: "chat hides reflection", Category: CategoryConversational, Run: chatHidesReflection},
		{Name: "memory keeps exchanges", Category: CategoryConversational, Run: memoryKeepsExchanges},
		{Name: "agent info reflects configuration", Category: CategoryConversational, Run: agentInfoReflectsConfig},
		{Name: "team chat publishes last output", Category: CategoryConversational, Run: teamChatPublishes},

		{Name: "tool directive runs through the bridge", Category: CategoryDialogue, Run: toolDirectiveRuns},
		{Name: "tool chain runs in order", Category: CategoryDialogue, Run: toolChainRuns},
		{Name: "removed tool keeps statistics", Category: CategoryDialogue, Run: removedToolKeepsStats},
		{Name: "reply format and describe", Category: CategoryDialogue, Run: replyFormatAndDescribe},

		{Name: "first member leads and names are unique", Category: CategoryTeam, Run: teamMembership},
		{Name: "concurrent updates are atomic", Category: CategoryTeam, Run: concurrentUpdatesAtomic},
		{Name: "coordination is published", Category: CategoryTeam, Run: coordinationPublished},
		{Name: "context tools share facts", Category: CategoryTeam, Run: contextToolsShareFacts},
		{Name: "teardown clears context", Category: CategoryTeam, Run: teardownClearsContext},

		{Name: "distinct agents do not block each other", Category: CategoryPerformance, Run: distinctAgentsDoNotBlock},
		{Name: "parallel runs across agents", Category: CategoryPerformance, Run: parallelRunsAcrossAgents},
		{Name: "concurrent runs on one agent keep every turn", Category: CategoryPerformance, Run: concurrentRunsOneAgent},
		{Name: "concurrent tool calls keep exact counts", Category: CategoryPerformance, Run: concurrentToolCalls},

		{Name: "plan failure records no turn", Category: CategoryErrors, Run: planFailureNoTurn},
		{Name: "tool failure is reported", Category: CategoryErrors, Run: toolFailureReported},
		{Name: "unknown tool is reported", Category: CategoryErrors, Run: unknownToolReported},
		{Name: "timeout aborts the run", Category: CategoryErrors, Run: timeoutAborts},
		{Name: "degraded mode flags the turn", Category: CategoryErrors, Run: degradedFlagsTurn},
		{Name: "chain limit is enforced", Category: CategoryErrors, Run: chainLimitEnforced},
		{Name: "uninitialized adapter is rejected", Category: CategoryErrors, Run: uninitializedRejected},
	}
}

func check(ok bool, format string, args ...any) error {
	if ok {
		return nil
	}
	return fmt.Errorf(format, args...)
}

func historyLen(ctx context.Context, a *engine.Adapter) (int, error) {
	turns, err := a.History(ctx)
	if err != nil {
		return 0, err
	}
	return len(turns), nil
}

// Basic Integration

func runRecordsOneTurn(ctx context.Context, env *Env) error {
	a, err := env.NewAdapter(engine.DefaultConfig("basic"))
	if err != nil {
		return err
	}
	out, err := a.Run(ctx, "hello")
	if err != nil {
		return err
	}
	turns, err := a.History(ctx)
	if err != nil {
		return err
	}
	if err := check(len(turns) == 1, "want 1 turn, got %d", len(turns)); err != nil {
		return err
	}
	return check(turns[0].Agent == "basic" && turns[0].Input == "hello" && turns[0].Output == out,
		"turn does not match the run: %+v", turns[0])
}

func resetIsolatesAgents(ctx context.Context, env *Env) error {
	store := memory.NewInMemoryStore()
	broker := team.NewInMemoryBroker()
	withStore := func(o *engine.AdapterOptions) { o.Turns = store }

	a, err := env.NewAdapter(engine.DefaultConfig("A"), withStore)
	if err != nil {
		return err
	}
	cfgB := engine.DefaultConfig("B")
	cfgB.Tools = []tool.Tool{tool.NewAddTool()}
	b, err := env.NewAdapter(cfgB, withStore)
	if err != nil {
		return err
	}

	if _, err := a.Run(ctx, "hello"); err != nil {
		return err
	}
	if _, err := b.Run(ctx, "add(1, 2)"); err != nil {
		return err
	}
	if err := broker.Set(ctx, "t", "fact", "kept", "B"); err != nil {
		return err
	}

	if err := a.Reset(ctx); err != nil {
		return err
	}

	if n, err := historyLen(ctx, a); err != nil || n != 0 {
		return check(false, "A history after reset: %d turns (err %v)", n, err)
	}
	if n, err := historyLen(ctx, b); err != nil || n != 1 {
		return check(false, "B history after reset of A: %d turns (err %v)", n, err)
	}
	if st, _ := b.Tools().Stats("add"); st.Calls != 1 {
		return check(false, "B tool stats changed: %d calls", st.Calls)
	}
	_, ok, err := broker.Get(ctx, "t", "fact")
	if err != nil {
		return err
	}
	return check(ok, "team context entry lost on reset")
}

func engineRoutesByName(ctx context.Context, env *Env) error {
	eng := engine.New(func(o *engine.Options) { o.Logger = env.Logger })
	for _, name := range []string{"alpha", "beta"} {
		a, err := env.NewAdapter(engine.DefaultConfig(name))
		if err != nil {
			return err
		}
		if err := eng.Register(a); err != nil {
			return err
		}
	}
	if _, err := eng.Run(ctx, "beta", "ping"); err != nil {
		return err
	}

	alpha, _ := eng.Get("alpha")
	beta, _ := eng.Get("beta")
	na, err := historyLen(ctx, alpha)
	if err != nil {
		return err
	}
	nb, err := historyLen(ctx, beta)
	if err != nil {
		return err
	}
	if err := check(na == 0 && nb == 1, "want 0/1 turns, got %d/%d", na, nb); err != nil {
		return err
	}

	_, err = eng.Run(ctx, "gamma", "ping")
	return check(errors.Is(err, engine.ErrAgentNotFound), "want ErrAgentNotFound, got %v", err)
}

func reinitializeKeepsHistory(ctx context.Context, env *Env) error {
	a, err := env.NewAdapter(engine.DefaultConfig("basic"))
	if err != nil {
		return err
	}
	if _, err := a.Run(ctx, "first"); err != nil {
		return err
	}
	cfg := engine.DefaultConfig("basic")
	cfg.EnableReflection = false
	if err := a.Initialize(cfg); err != nil {
		return err
	}
	n, err := historyLen(ctx, a)
	if err != nil {
		return err
	}
	return check(n == 1, "want history kept across Initialize, got %d turns", n)
}

// Conversational Agents

func chatHidesReflection(ctx context.Context, env *Env) error {
	c, err := agent.NewConversationalAgent("talker", "", true, nil, env.AgentOptions)
	if err != nil {
		return err
	}
	out, err := c.Chat(ctx, "What is Go?", nil)
	if err != nil {
		return err
	}
	if err := check(out != "", "empty reply"); err != nil {
		return err
	}
	return check(!strings.Contains(out, engine.ReflectionMarker), "reply carries the reflection tail: %q", out)
}

func memoryKeepsExchanges(ctx context.Context, env *Env) error {
	c, err := agent.NewConversationalAgent("talker", "", true, nil, env.AgentOptions)
	if err != nil {
		return err
	}
	for _, msg := range []string{"one", "two", "three"} {
		if _, err := c.Chat(ctx, msg, nil); err != nil {
			return err
		}
	}
	mem, err := c.GetMemory(ctx)
	if err != nil {
		return err
	}
	if err := check(len(mem) == 3 && mem[2].Input == "three", "want 3 remembered exchanges, got %d", len(mem)); err != nil {
		return err
	}
	if err := c.ClearMemory(ctx); err != nil {
		return err
	}
	mem, err = c.GetMemory(ctx)
	if err != nil {
		return err
	}
	return check(len(mem) == 0, "memory not cleared: %d turns", len(mem))
}

func agentInfoReflectsConfig(ctx context.Context, env *Env) error {
	c, err := agent.NewConversationalAgent("talker", "Be brief.", false, []tool.Tool{tool.NewEchoTool()}, env.AgentOptions)
	if err != nil {
		return err
	}
	if _, err := c.Chat(ctx, "hi", nil); err != nil {
		return err
	}
	info := c.GetAgentInfo(ctx)
	return check(info.Name == "talker" && !info.MemoryEnabled && info.ToolsCount == 1 && info.SystemPrompt == "Be brief.",
		"unexpected agent info: %+v", info)
}

func teamChatPublishes(ctx context.Context, env *Env) error {
	tm := team.New("harness", team.NewInMemoryBroker())
	withTeam := func(o *agent.Options) {
		env.AgentOptions(o)
		o.Team = tm
	}
	scout, err := agent.NewTeamConversationalAgent("scout", "researcher", "", true, nil, withTeam)
	if err != nil {
		return err
	}
	if _, err := agent.NewTeamConversationalAgent("writer", "", "", true, nil, withTeam); err != nil {
		return err
	}

	out, err := scout.TeamChat(ctx, "collect sources", "writer")
	if err != nil {
		return err
	}
	v, ok, err := tm.Read(ctx, agent.LastOutputKeyPrefix+"scout")
	if err != nil {
		return err
	}
	return check(ok && v == out, "last output not published: %v", v)
}

// Dialogue with Tools

func newDialogue(env *Env, name string, tools ...tool.Tool) (*agent.DialogueAgentWithTools, error) {
	return agent.NewDialogueAgentWithTools(name, "", tools, env.AgentOptions)
}

func toolDirectiveRuns(ctx context.Context, env *Env) error {
	d, err := newDialogue(env, "calc", tool.NewAddTool())
	if err != nil {
		return err
	}
	out, err := d.Send(ctx, "add(a=2, b=3)")
	if err != nil {
		return err
	}
	if err := check(strings.Contains(out, "Tool add returned: 5"), "tool result missing from %q", out); err != nil {
		return err
	}
	tools := d.GetAvailableTools()
	return check(len(tools) == 1 && tools[0].UsageCount == 1, "usage not counted: %+v", tools)
}

func toolChainRuns(ctx context.Context, env *Env) error {
	d, err := newDialogue(env, "calc", tool.NewAddTool(), tool.NewMultiplyTool())
	if err != nil {
		return err
	}
	out, err := d.Send(ctx, "add(1, 2) then multiply(3, 4)")
	if err != nil {
		return err
	}
	iAdd := strings.Index(out, "Tool add returned: 3")
	iMul := strings.Index(out, "Tool multiply returned: 12")
	return check(iAdd >= 0 && iMul > iAdd, "tool results missing or out of order in %q", out)
}

func removedToolKeepsStats(ctx context.Context, env *Env) error {
	d, err := newDialogue(env, "calc", tool.NewAddTool())
	if err != nil {
		return err
	}
	if _, err := d.Send(ctx, "add(2, 2)"); err != nil {
		return err
	}
	if !d.RemoveTool("add") {
		return errors.New("remove reported the tool missing")
	}
	stats := d.GetStats()
	if err := check(stats.ToolsCount == 0 && stats.ToolUsage["add"] == 1, "unexpected stats after removal: %+v", stats); err != nil {
		return err
	}
	return check(len(d.GetDialogueHistory()) == 1, "dialogue history changed on removal")
}

func replyFormatAndDescribe(ctx context.Context, env *Env) error {
	d, err := newDialogue(env, "helper")
	if err != nil {
		return err
	}
	out, err := d.Send(ctx, "hello")
	if err != nil {
		return err
	}
	if err := check(strings.HasPrefix(out, "[helper]: "), "reply not prefixed: %q", out); err != nil {
		return err
	}
	desc := d.Describe()
	return check(desc == "helper (assistant): Tool-enabled agent helper", "unexpected description %q", desc)
}

// Team Coordination

func teamMembership(_ context.Context, _ *Env) error {
	tm := team.New("crew", team.NewInMemoryBroker())
	if _, err := tm.AddMember(core.AgentInfo{Name: "ann"}); err != nil {
		return err
	}
	if _, err := tm.AddMember(core.AgentInfo{Name: "bob", Role: "specialist"}); err != nil {
		return err
	}
	leader, ok := tm.Leader()
	if err := check(ok && leader.Name == "ann", "want ann to lead, got %+v", leader); err != nil {
		return err
	}
	_, err := tm.AddMember(core.AgentInfo{Name: "bob"})
	return check(err != nil, "duplicate member accepted")
}

func concurrentUpdatesAtomic(ctx context.Context, _ *Env) error {
	const writers = 50
	broker := team.NewInMemoryBroker()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			_, err := broker.Update(gctx, "crew", "counter", fmt.Sprintf("w%d", i), func(current any, _ bool) (any, error) {
				n, _ := current.(int)
				return n + 1, nil
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	e, ok, err := broker.Get(ctx, "crew", "counter")
	if err != nil {
		return err
	}
	return check(ok && e.Value == writers, "want counter %d, got %v", writers, e.Value)
}

func coordinationPublished(ctx context.Context, env *Env) error {
	tm := team.New("crew", team.NewInMemoryBroker())
	lead, err := agent.NewTeamDialogueAgent("lead", "", "leader", nil, func(o *agent.Options) {
		env.AgentOptions(o)
		o.Team = tm
	})
	if err != nil {
		return err
	}
	if _, err := lead.CoordinateWithTeam(ctx, "split the work", []string{"scout"}); err != nil {
		return err
	}
	if _, ok, err := tm.Read(ctx, agent.CoordinationKeyPrefix+"lead"); err != nil || !ok {
		return check(false, "coordination entry missing (err %v)", err)
	}
	stats := lead.GetTeamStats()
	return check(stats.CoordinationCount == 1 && stats.TeamRole == "leader", "unexpected team stats: %+v", stats)
}

func contextToolsShareFacts(ctx context.Context, env *Env) error {
	broker := team.NewInMemoryBroker()
	cfg := engine.DefaultConfig("writer")
	cfg.Tools = tool.NewTeamContextTools(broker, "crew", "writer")
	a, err := env.NewAdapter(cfg)
	if err != nil {
		return err
	}
	if _, err := a.Run(ctx, `team_context_set(key="topic", value="go")`); err != nil {
		return err
	}
	e, ok, err := broker.Get(ctx, "crew", "topic")
	if err != nil {
		return err
	}
	return check(ok && e.Value == "go" && e.Author == "writer", "unexpected entry %+v", e)
}

func teardownClearsContext(ctx context.Context, _ *Env) error {
	tm := team.New("crew", team.NewInMemoryBroker())
	if _, err := tm.AddMember(core.AgentInfo{Name: "ann"}); err != nil {
		return err
	}
	if err := tm.Publish(ctx, "ann", "fact", 1); err != nil {
		return err
	}
	if err := tm.Teardown(ctx); err != nil {
		return err
	}
	snap, err := tm.Snapshot(ctx)
	if err != nil {
		return err
	}
	return check(len(snap) == 0 && len(tm.Members()) == 0, "team not torn down: %d entries, %d members", len(snap), len(tm.Members()))
}

// Performance Tests

func distinctAgentsDoNotBlock(ctx context.Context, env *Env) error {
	blocked := blockingReasoner()
	slow, err := env.NewAdapter(engine.DefaultConfig("slow"), func(o *engine.AdapterOptions) { o.Reasoner = blocked })
	if err != nil {
		return err
	}
	fast, err := env.NewAdapter(engine.DefaultConfig("fast"))
	if err != nil {
		return err
	}

	slowCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := slow.Run(slowCtx, "wait")
		done <- err
	}()

	for blocked.planCalls() == 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := fast.Run(ctx, "hello"); err != nil {
		return err
	}
	cancel()
	err = <-done
	return check(errors.Is(err, context.Canceled), "want the blocked run cancelled, got %v", err)
}

func parallelRunsAcrossAgents(ctx context.Context, env *Env) error {
	const agents = 10
	adapters := make([]*engine.Adapter, agents)
	for i := range adapters {
		a, err := env.NewAdapter(engine.DefaultConfig(fmt.Sprintf("agent-%d", i)))
		if err != nil {
			return err
		}
		adapters[i] = a
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range adapters {
		g.Go(func() error {
			_, err := a.Run(gctx, "parallel work")
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, a := range adapters {
		n, err := historyLen(ctx, a)
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("%s: want 1 turn, got %d", a.Name(), n)
		}
	}
	return nil
}

func concurrentRunsOneAgent(ctx context.Context, env *Env) error {
	const runs = 25
	a, err := env.NewAdapter(engine.DefaultConfig("busy"))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < runs; i++ {
		g.Go(func() error {
			_, err := a.Run(gctx, fmt.Sprintf("request %d", i))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	n, err := historyLen(ctx, a)
	if err != nil {
		return err
	}
	return check(n == runs, "want %d turns, got %d", runs, n)
}

func concurrentToolCalls(ctx context.Context, _ *Env) error {
	const calls = 100
	b := tool.NewBridge()
	if err := b.Register(tool.NewAddTool()); err != nil {
		return err
	}

	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Invoke(ctx, "add", map[string]any{"a": float64(i), "b": 1.0}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return err
	}

	st, ok := b.Stats("add")
	return check(ok && st.Calls == calls && st.Failures == 0, "want %d calls, got %+v", calls, st)
}

// Error Handling

func expectNoTurn(ctx context.Context, a *engine.Adapter) error {
	n, err := historyLen(ctx, a)
	if err != nil {
		return err
	}
	return check(n == 0, "failed run recorded %d turns", n)
}

func planFailureNoTurn(ctx context.Context, env *Env) error {
	boom := errors.New("backend unavailable")
	a, err := env.NewAdapter(engine.DefaultConfig("fragile"), func(o *engine.AdapterOptions) {
		o.Reasoner = failingReasoner(boom)
	})
	if err != nil {
		return err
	}
	_, err = a.Run(ctx, "hello")

	var wfErr *core.WorkflowError
	if !errors.As(err, &wfErr) || wfErr.Phase != core.PhasePlan || !errors.Is(err, boom) {
		return fmt.Errorf("want plan WorkflowError wrapping the cause, got %v", err)
	}
	return expectNoTurn(ctx, a)
}

func toolFailureReported(ctx context.Context, env *Env) error {
	cfg := engine.DefaultConfig("calc")
	cfg.Tools = []tool.Tool{tool.NewDivideTool()}
	a, err := env.NewAdapter(cfg)
	if err != nil {
		return err
	}
	_, err = a.Run(ctx, "divide(1, 0)")

	var execErr *core.ToolExecutionError
	if !errors.As(err, &execErr) || core.PhaseOf(err) != core.PhaseExecute {
		return fmt.Errorf("want ToolExecutionError in execute, got %v", err)
	}
	st, _ := a.Tools().Stats("divide")
	if err := check(st.Calls == 1 && st.Failures == 1, "tool retried or not counted: %+v", st); err != nil {
		return err
	}
	return expectNoTurn(ctx, a)
}

func unknownToolReported(ctx context.Context, env *Env) error {
	a, err := env.NewAdapter(engine.DefaultConfig("lost"), func(o *engine.AdapterOptions) {
		o.Reasoner = planReasoner(core.Step{Action: core.ActionTool, Target: "ghost", Tool: "ghost"})
	})
	if err != nil {
		return err
	}
	_, err = a.Run(ctx, "x")

	var unknown *core.UnknownToolError
	if !errors.As(err, &unknown) || unknown.Name != "ghost" {
		return fmt.Errorf("want UnknownToolError for ghost, got %v", err)
	}
	return expectNoTurn(ctx, a)
}

func timeoutAborts(ctx context.Context, env *Env) error {
	cfg := engine.DefaultConfig("sleepy")
	cfg.Timeout = 20 * time.Millisecond
	a, err := env.NewAdapter(cfg, func(o *engine.AdapterOptions) {
		o.Reasoner = blockingReasoner()
	})
	if err != nil {
		return err
	}
	_, err = a.Run(ctx, "x")
	if !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("want deadline exceeded, got %v", err)
	}
	return expectNoTurn(ctx, a)
}

func degradedFlagsTurn(ctx context.Context, env *Env) error {
	cfg := engine.DefaultConfig("fallback")
	cfg.Degraded = true
	a, err := env.NewAdapter(cfg, func(o *engine.AdapterOptions) {
		o.Reasoner = failingReasoner(errors.New("backend offline"))
	})
	if err != nil {
		return err
	}
	out, err := a.Run(ctx, "hello")
	if err != nil {
		return err
	}
	if err := check(strings.HasPrefix(out, engine.DegradedPrefix), "reply not degraded: %q", out); err != nil {
		return err
	}
	turns, err := a.History(ctx)
	if err != nil {
		return err
	}
	return check(len(turns) == 1 && turns[0].Degraded, "degraded turn not flagged")
}

func chainLimitEnforced(ctx context.Context, env *Env) error {
	cfg := engine.DefaultConfig("short")
	cfg.MaxChainLength = 2
	a, err := env.NewAdapter(cfg, func(o *engine.AdapterOptions) {
		o.Reasoner = planReasoner(
			core.Step{Action: "a", Target: "1"},
			core.Step{Action: "b", Target: "2"},
			core.Step{Action: "c", Target: "3"},
		)
	})
	if err != nil {
		return err
	}
	_, err = a.Run(ctx, "x")
	if !errors.Is(err, core.ErrChainLimit) {
		return fmt.Errorf("want ErrChainLimit, got %v", err)
	}
	return expectNoTurn(ctx, a)
}

func uninitializedRejected(ctx context.Context, env *Env) error {
	a := engine.NewAdapter(func(o *engine.AdapterOptions) {
		o.Reasoner = env.Reasoner()
		o.Logger = env.Logger
	})
	_, err := a.Run(ctx, "x")

	var cfgErr *core.ConfigurationError
	if !errors.As(err, &cfgErr) || !errors.Is(err, core.ErrNotInitialized) {
		return fmt.Errorf("want ConfigurationError wrapping ErrNotInitialized, got %v", err)
	}
	return nil
}
