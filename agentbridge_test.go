package agentbridge

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentbridge/agent"
	"github.com/hupe1980/agentbridge/config"
	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/engine"
	"github.com/hupe1980/agentbridge/internal/testutil"
	"github.com/hupe1980/agentbridge/logging"
)

const agentsYAML = `
log:
  backend: none
agents:
  - name: helper
  - name: calc
    kind: dialogue
    tools: [add]
  - name: scout
    type: team
    team: alpha
    team_role: researcher
  - name: lead
    kind: dialogue
    type: team
    team: alpha
`

func newBridge(t *testing.T, optFns ...func(o *Options)) *Bridge {
	t.Helper()
	cfg, err := config.Parse([]byte(agentsYAML))
	require.NoError(t, err)

	b, err := New(append([]func(o *Options){func(o *Options) { o.Config = cfg }}, optFns...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.LoadAgents())
	return b
}

func TestBridge_LoadAgents(t *testing.T) {
	b := newBridge(t)
	ctx := context.Background()

	assert.Equal(t, []string{"calc", "helper", "lead", "scout"}, b.Agents())
	assert.Equal(t, []string{"calc", "helper", "lead", "scout"}, b.Engine().Names())

	out, err := b.Send(ctx, "helper", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "Analysis of: hello")
	assert.NotContains(t, out, engine.ReflectionMarker)

	out, err = b.Send(ctx, "calc", "add(2, 2)")
	require.NoError(t, err)
	assert.Contains(t, out, "[calc]: ")
	assert.Contains(t, out, "Tool add returned: 4")

	_, err = b.Send(ctx, "nobody", "hi")
	assert.ErrorIs(t, err, ErrUnknownAgent)

	out, err = b.Run(ctx, "helper", "raw")
	require.NoError(t, err)
	assert.Contains(t, out, engine.ReflectionMarker, "Run bypasses the facade")
}

func TestBridge_TeamAgentsShareContext(t *testing.T) {
	b := newBridge(t)
	ctx := context.Background()

	assert.Equal(t, []string{"scout", "lead"}, b.Team("alpha").MemberNames())

	c, ok := b.Conversational("scout")
	require.True(t, ok)
	scout, ok := c.(agent.TeamChatter)
	require.True(t, ok)

	out, err := scout.TeamChat(ctx, "found three papers", "lead")
	require.NoError(t, err)

	v, ok, err := b.Team("alpha").Read(ctx, agent.LastOutputKeyPrefix+"scout")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, out, v)

	s, ok := b.Dialogue("lead")
	require.True(t, ok)
	lead, ok := s.(*agent.TeamDialogueAgent)
	require.True(t, ok)

	_, err = lead.CoordinateWithTeam(ctx, "write the summary", []string{"scout"})
	require.NoError(t, err)

	snap, err := b.Broker().Snapshot(ctx, "alpha")
	require.NoError(t, err)
	assert.Contains(t, snap, agent.CoordinationKeyPrefix+"lead")
	assert.Contains(t, snap, agent.LastOutputKeyPrefix+"lead")
}

func TestBridge_RedisBroker(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg, err := config.Parse([]byte(agentsYAML))
	require.NoError(t, err)
	cfg.Broker.Type = config.BrokerRedis
	cfg.Broker.RedisAddr = mr.Addr()

	b, err := New(func(o *Options) { o.Config = cfg })
	require.NoError(t, err)
	defer func() { require.NoError(t, b.Close()) }()
	require.NoError(t, b.LoadAgents())

	ctx := context.Background()
	c, _ := b.Conversational("scout")
	_, err = c.(agent.TeamChatter).TeamChat(ctx, "hi", "")
	require.NoError(t, err)

	assert.True(t, mr.Exists("agentbridge:team:{alpha}:"+agent.LastOutputKeyPrefix+"scout"))
	assert.True(t, mr.Exists("agentbridge:turns:scout"))

	v, ok, err := b.Team("alpha").Read(ctx, agent.LastOutputKeyPrefix+"scout")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, v)
}

func TestBridge_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()

	cfg, err := config.Parse([]byte(agentsYAML))
	require.NoError(t, err)
	cfg.Metrics.Enabled = true

	b, err := New(func(o *Options) {
		o.Config = cfg
		o.Registerer = reg
	})
	require.NoError(t, err)
	require.NoError(t, b.LoadAgents())

	_, err = b.Send(context.Background(), "calc", "add(1, 1)")
	require.NoError(t, err)

	n, err := promtestutil.GatherAndCount(reg, "agentbridge_adapter_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = promtestutil.GatherAndCount(reg, "agentbridge_tool_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBridge_Reasoner(t *testing.T) {
	b, err := New(func(o *Options) { o.Logger = logging.NoOpLogger{} })
	require.NoError(t, err)

	r, err := b.Reasoner("", "")
	require.NoError(t, err)
	assert.IsType(t, &engine.SimulatedReasoner{}, r)

	a1, err := b.Reasoner(config.BackendAnthropic, "claude-3-5-haiku-latest")
	require.NoError(t, err)
	assert.IsType(t, &engine.ModelReasoner{}, a1)

	a2, err := b.Reasoner(config.BackendAnthropic, "claude-3-5-haiku-latest")
	require.NoError(t, err)
	assert.Same(t, a1, a2)

	o, err := b.Reasoner(config.BackendOpenAI, "")
	require.NoError(t, err)
	assert.IsType(t, &engine.ModelReasoner{}, o)

	_, err = b.Reasoner("gemini", "")
	var cfgErr *core.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestBridge_ReasonerOverride(t *testing.T) {
	r := engine.NewSimulatedReasoner()
	b, err := New(func(o *Options) { o.Reasoner = r })
	require.NoError(t, err)

	got, err := b.Reasoner(config.BackendOpenAI, "gpt-4o")
	require.NoError(t, err)
	assert.Same(t, r, got)
}

func TestBridge_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Broker.Type = "etcd"

	_, err := New(func(o *Options) { o.Config = cfg })
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "broker.type", cfgErr.Field)
}

func TestBridge_DuplicateAgent(t *testing.T) {
	b := newBridge(t)
	_, err := b.CreateAgent(config.AgentConfig{Name: "helper"})
	assert.ErrorIs(t, err, engine.ErrAgentExists)
}

func TestBridge_DuplicateTeamAgentLeavesNoMember(t *testing.T) {
	b := newBridge(t)
	before := b.Team("alpha").MemberNames()

	_, err := b.CreateAgent(config.AgentConfig{Name: "helper", Type: config.TypeTeam, Team: "alpha"})
	require.ErrorIs(t, err, engine.ErrAgentExists)

	assert.Equal(t, before, b.Team("alpha").MemberNames())
	assert.NotContains(t, b.Team("alpha").MemberNames(), "helper")
}

func TestBridge_SendRespectsConcurrencyCap(t *testing.T) {
	r := testutil.NewScriptedReasoner().BlockUntilDone()
	b := newBridge(t, func(o *Options) {
		o.Reasoner = r
		o.Config.Engine.MaxConcurrentInvocations = 1
	})

	holdCtx, release := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = b.Send(holdCtx, "helper", "hold the slot")
	}()
	require.Eventually(t, func() bool { return len(r.PlanRequests()) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := b.Send(ctx, "calc", "2 + 2")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, r.PlanRequests(), 1, "the capped send never reached the reasoner")

	release()
	<-done
}
