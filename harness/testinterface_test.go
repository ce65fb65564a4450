package harness

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentbridge/engine"
	"github.com/hupe1980/agentbridge/internal/testutil"
	"github.com/hupe1980/agentbridge/tool"
)

func TestTestInterface_RunTestSuite(t *testing.T) {
	ti := NewTestInterface()

	cfg := engine.DefaultConfig("ignored")
	cfg.Tools = []tool.Tool{tool.NewAddTool()}
	a, err := ti.CreateTestAgent("calc", cfg)
	require.NoError(t, err)
	assert.Equal(t, "calc", a.Name())

	suite := ti.RunTestSuite(context.Background(), []TestCase{
		{Agent: "calc", Input: "add(2, 3)", Expected: "Tool add returned: 5"},
		{Input: "hello", Expected: "Analysis of: hello"},
		{Input: "hello", Expected: "something else"},
		{Agent: "calc", Input: "anything"},
	})

	assert.Equal(t, 4, suite.Total)
	assert.Equal(t, 3, suite.Passed)
	assert.Equal(t, 1, suite.Failed)
	require.Len(t, suite.Details, 4)

	assert.Equal(t, StatusPassed, suite.Details[0].Status)
	assert.Equal(t, DefaultTestAgent, suite.Details[1].Agent)
	assert.Equal(t, StatusFailed, suite.Details[2].Status)
	assert.Equal(t, StatusPassed, suite.Details[3].Status)

	_, ok := ti.Agent(DefaultTestAgent)
	assert.True(t, ok, "default agent is created on first use")

	turns, err := a.History(context.Background())
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestTestInterface_RunErrors(t *testing.T) {
	ti := NewTestInterface(func(o *engine.AdapterOptions) {
		o.Reasoner = testutil.NewScriptedReasoner().FailPlan(errors.New("offline"))
	})

	suite := ti.RunTestSuite(context.Background(), []TestCase{{Input: "hi", Expected: "hi"}})
	require.Len(t, suite.Details, 1)
	assert.Equal(t, StatusError, suite.Details[0].Status)
	assert.Contains(t, suite.Details[0].Error, "offline")
	assert.Equal(t, 1, suite.Failed)
}

func TestTestInterface_CreateTestAgentValidates(t *testing.T) {
	ti := NewTestInterface()
	cfg := engine.DefaultConfig("x")
	cfg.MaxChainLength = -1
	_, err := ti.CreateTestAgent("bad", cfg)
	assert.Error(t, err)
	_, ok := ti.Agent("bad")
	assert.False(t, ok)
}

func TestTestInterface_Summary(t *testing.T) {
	ti := NewTestInterface()

	sum := ti.Summary()
	assert.Equal(t, "No tests run yet", sum.Message)
	assert.Nil(t, sum.Latest)

	ctx := context.Background()
	ti.RunTestSuite(ctx, []TestCase{{Input: "a"}, {Input: "b"}})
	ti.RunTestSuite(ctx, []TestCase{{Input: "c", Expected: "not there"}, {Input: "d"}})

	sum = ti.Summary()
	assert.Equal(t, 2, sum.Sessions)
	assert.Equal(t, 75.0, sum.SuccessRate)
	require.NotNil(t, sum.Latest)
	assert.Equal(t, 1, sum.Latest.Passed)
	assert.Empty(t, sum.Message)
}

func TestLoadCases(t *testing.T) {
	cases, err := LoadCases(strings.NewReader(`
- agent: calc
  input: add(1, 2)
  expected: "3"
- input: hello
`))
	require.NoError(t, err)
	assert.Equal(t, []TestCase{
		{Agent: "calc", Input: "add(1, 2)", Expected: "3"},
		{Input: "hello"},
	}, cases)

	cases, err = LoadCases(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, cases)

	_, err = LoadCases(strings.NewReader("{not: [a list"))
	assert.Error(t, err)
}
