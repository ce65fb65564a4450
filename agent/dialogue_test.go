package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/internal/testutil"
	"github.com/hupe1980/agentbridge/team"
	"github.com/hupe1980/agentbridge/tool"
)

func mathTools() []tool.Tool {
	return []tool.Tool{tool.NewAddTool(), tool.NewMultiplyTool()}
}

func TestDialogueAgent_SendRunsToolDirectives(t *testing.T) {
	d, err := NewDialogueAgentWithTools("calc", "", mathTools())
	require.NoError(t, err)

	out, err := d.Send(context.Background(), "please add(a=2, b=3)")
	require.NoError(t, err)

	assert.Contains(t, out, "[calc]: Completed the following steps:")
	assert.Contains(t, out, "Tool add returned: 5")

	tools := d.GetAvailableTools()
	require.Len(t, tools, 2)
	assert.Equal(t, ToolInfo{Name: "add", Description: "Add two numbers", UsageCount: 1}, tools[0])
	assert.Equal(t, 0, tools[1].UsageCount)

	history := d.GetDialogueHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "please add(a=2, b=3)", history[0].Message)
	assert.Equal(t, out, history[0].Response)
	assert.Equal(t, 2, history[0].ToolsAvailable)
}

func TestDialogueAgent_Defaults(t *testing.T) {
	d, err := NewDialogueAgentWithTools("", "", nil)
	require.NoError(t, err)

	assert.Equal(t, "DialogueAgent", d.Name())
	assert.Equal(t, "DialogueAgent (assistant): Tool-enabled agent DialogueAgent", d.Describe())
	assert.Equal(t, DefaultDialoguePrompt, d.Adapter().Config().SystemPrompt)
}

func TestDialogueAgent_Preamble(t *testing.T) {
	r := testutil.NewScriptedReasoner()
	d, err := NewDialogueAgentWithTools("calc", "Sys.", mathTools(), withReasoner(r), func(o *Options) {
		o.Role = "calculator"
		o.Description = "does math"
	})
	require.NoError(t, err)

	out, err := d.Send(context.Background(), "hi", WithNote("Urgent."))
	require.NoError(t, err)
	assert.Equal(t, "[calc]: hi", out)

	want := "Sys.\n\nAgent Role: calculator\nDescription: does math\nAvailable Tools: add, multiply\nUrgent."
	assert.Equal(t, want, r.PlanRequests()[0].Preamble)
	assert.Equal(t, "calc (calculator): does math", d.Describe())
}

func TestDialogueAgent_GenerateReply(t *testing.T) {
	d, err := NewDialogueAgentWithTools("calc", "", nil, withReasoner(testutil.NewScriptedReasoner()))
	require.NoError(t, err)

	ctx := context.Background()
	out, err := d.GenerateReply(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "No messages to respond to.", out)
	assert.Empty(t, d.GetDialogueHistory())

	out, err = d.GenerateReply(ctx, []core.Message{
		core.NewMessage("user", "first"),
		core.NewMessage("user", "latest"),
	})
	require.NoError(t, err)
	assert.Equal(t, "[calc]: latest", out)
}

func TestDialogueAgent_RemoveToolKeepsUsage(t *testing.T) {
	d, err := NewDialogueAgentWithTools("calc", "", mathTools())
	require.NoError(t, err)

	_, err = d.Send(context.Background(), "multiply(a=4, b=5)")
	require.NoError(t, err)

	assert.True(t, d.RemoveTool("multiply"))
	assert.False(t, d.RemoveTool("multiply"))

	stats := d.GetStats()
	assert.Equal(t, "calc", stats.Name)
	assert.Equal(t, 1, stats.TotalDialogues)
	assert.Equal(t, 1, stats.ToolsCount)
	assert.Equal(t, 1, stats.ToolUsage["multiply"])
	assert.Equal(t, DefaultBackend, stats.Backend)
	require.NotNil(t, stats.LastActivity)

	require.NoError(t, d.AddTool(tool.NewDivideTool()))
	assert.Len(t, d.GetAvailableTools(), 2)
}

func TestDialogueAgent_ErrorsPassThrough(t *testing.T) {
	r := testutil.NewScriptedReasoner().WithPlan(testutil.NewPlanBuilder().Tool("missing", nil).Build())
	d, err := NewDialogueAgentWithTools("calc", "", nil, withReasoner(r))
	require.NoError(t, err)

	_, err = d.Send(context.Background(), "go")

	var unknown *core.UnknownToolError
	require.ErrorAs(t, err, &unknown)
	var wfErr *core.WorkflowError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, core.PhaseExecute, wfErr.Phase)

	assert.Empty(t, d.GetDialogueHistory())
	turns, err := d.Adapter().History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestDialogueAgent_SendTimeout(t *testing.T) {
	d, err := NewDialogueAgentWithTools("calc", "", nil, withReasoner(testutil.NewScriptedReasoner().BlockUntilDone()))
	require.NoError(t, err)

	_, err = d.Send(context.Background(), "slow", WithSendTimeout(20*time.Millisecond))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDialogueAgent_ClearHistory(t *testing.T) {
	d, err := NewDialogueAgentWithTools("calc", "", nil, withReasoner(testutil.NewScriptedReasoner()))
	require.NoError(t, err)

	_, err = d.Send(context.Background(), "one")
	require.NoError(t, err)

	require.NoError(t, d.ClearHistory(context.Background()))
	assert.Empty(t, d.GetDialogueHistory())
	assert.Nil(t, d.GetStats().LastActivity)

	turns, err := d.Adapter().History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestTeamDialogueAgent_Coordinate(t *testing.T) {
	ctx := context.Background()
	broker := team.NewInMemoryBroker()
	tm := team.New("ops", broker)

	r := testutil.NewScriptedReasoner()
	d, err := NewTeamDialogueAgent("lead", "", "coordinator", mathTools(), withReasoner(r), withTeam(tm))
	require.NoError(t, err)

	names := d.Adapter().Tools().Names()
	assert.Contains(t, names, "team_context_get")
	assert.Contains(t, names, "team_context_set")
	assert.Contains(t, d.Adapter().Config().SystemPrompt, "TEAM ROLE: coordinator")

	out, err := d.CoordinateWithTeam(ctx, "split the work", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "[lead]: Team coordination required: split the work", out)

	entry, ok, err := broker.Get(ctx, "ops", CoordinationKeyPrefix+"lead")
	require.NoError(t, err)
	require.True(t, ok)
	value, isMap := entry.Value.(map[string]any)
	require.True(t, isMap)
	assert.Equal(t, "split the work", value["message"])
	assert.Equal(t, out, value["response"])
	assert.Equal(t, []any{"a", "b"}, value["targets"])

	_, ok, err = broker.Get(ctx, "ops", LastOutputKeyPrefix+"lead")
	require.NoError(t, err)
	assert.True(t, ok)

	turns, err := d.Adapter().History(ctx)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "team_coordination", turns[0].Metadata["type"])
	assert.Equal(t, "a,b", turns[0].Metadata["target_agents"])

	stats := d.GetTeamStats()
	assert.Equal(t, "coordinator", stats.TeamRole)
	assert.Equal(t, 1, stats.CoordinationCount)
	assert.Equal(t, 1, stats.TotalDialogues)
	require.NotNil(t, stats.LastCoordination)

	history := d.GetCoordinationHistory()
	require.Len(t, history, 1)
	assert.Equal(t, []string{"a", "b"}, history[0].Targets)
}

func TestTeamDialogueAgent_SendSeesTeamContext(t *testing.T) {
	ctx := context.Background()
	tm := team.New("ops", team.NewInMemoryBroker())
	require.NoError(t, tm.Publish(ctx, "someone", "plan", "v1"))

	r := testutil.NewScriptedReasoner()
	d, err := NewTeamDialogueAgent("lead", "", "", nil, withReasoner(r), withTeam(tm))
	require.NoError(t, err)
	assert.Equal(t, DefaultTeamRole, d.TeamRole())

	_, err = d.Send(ctx, "status")
	require.NoError(t, err)
	assert.Contains(t, r.PlanRequests()[0].Preamble, "Team context: role=member members=[lead] shared={plan=v1}")
}

func TestTeamDialogueAgent_CoordinateFailure(t *testing.T) {
	boom := errors.New("no plan")
	tm := team.New("ops", team.NewInMemoryBroker())
	d, err := NewTeamDialogueAgent("lead", "", "", nil, withReasoner(testutil.NewScriptedReasoner().FailPlan(boom)), withTeam(tm))
	require.NoError(t, err)

	_, err = d.CoordinateWithTeam(context.Background(), "x", nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, d.GetTeamStats().CoordinationCount)

	_, ok, err := tm.Read(context.Background(), CoordinationKeyPrefix+"lead")
	require.NoError(t, err)
	assert.False(t, ok)
}

// readOnlyBroker rejects every write.
type readOnlyBroker struct {
	core.ContextBroker
	err error
}

func (b readOnlyBroker) Set(context.Context, string, string, any, string) error { return b.err }

func TestTeamDialogueAgent_CoordinatePublishFailureKeepsReply(t *testing.T) {
	ctx := context.Background()
	readOnly := errors.New("broker is read-only")
	tm := team.New("ops", readOnlyBroker{ContextBroker: team.NewInMemoryBroker(), err: readOnly})

	d, err := NewTeamDialogueAgent("lead", "", "", nil, withReasoner(testutil.NewScriptedReasoner()), withTeam(tm))
	require.NoError(t, err)

	out, err := d.CoordinateWithTeam(ctx, "split the work", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, "[lead]: Team coordination required: split the work", out)

	turns, err := d.Adapter().History(ctx)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
	assert.Len(t, d.GetCoordinationHistory(), 1)
	assert.Equal(t, 1, d.GetTeamStats().CoordinationCount)

	_, ok, err := tm.Read(ctx, CoordinationKeyPrefix+"lead")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCapabilityInterfaces(t *testing.T) {
	var (
		_ Chatter     = (*ConversationalAgent)(nil)
		_ TeamChatter = (*TeamConversationalAgent)(nil)
		_ ToolSender  = (*DialogueAgentWithTools)(nil)
		_ ToolSender  = (*TeamDialogueAgent)(nil)
	)
}
