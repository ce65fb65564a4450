package testutil

import (
	"time"

	"github.com/hupe1980/agentbridge/core"
)

// TurnBuilder helps construct turns with fluent chaining for tests.
// Example:
//
//	turn := NewTurnBuilder("alice").Input("hi").Output("hello").Build()
type TurnBuilder struct {
	turn core.Turn
}

// NewTurnBuilder creates a builder for a turn owned by agent.
func NewTurnBuilder(agent string) *TurnBuilder {
	return &TurnBuilder{turn: core.NewTurn(agent, "", "")}
}

// Input sets the turn input (chainable).
func (b *TurnBuilder) Input(s string) *TurnBuilder {
	b.turn.Input = s
	return b
}

// Output sets the turn output (chainable).
func (b *TurnBuilder) Output(s string) *TurnBuilder {
	b.turn.Output = s
	return b
}

// At sets the timestamp (chainable).
func (b *TurnBuilder) At(ts time.Time) *TurnBuilder {
	b.turn.Timestamp = ts
	return b
}

// ToolCall appends a tool call record (chainable).
func (b *TurnBuilder) ToolCall(name string, args map[string]any, result any) *TurnBuilder {
	b.turn.ToolCalls = append(b.turn.ToolCalls, core.ToolCallRecord{
		ID:     core.NewID(),
		Tool:   name,
		Args:   args,
		Result: result,
	})
	return b
}

// Build returns a copy of the turn.
func (b *TurnBuilder) Build() core.Turn {
	return b.turn.Clone()
}

// PlanBuilder helps construct plans for tests.
// Example:
//
//	plan := NewPlanBuilder().Step("analyze", "x").Tool("add", map[string]any{"a": 1, "b": 2}).Build()
type PlanBuilder struct {
	plan core.Plan
}

// NewPlanBuilder creates an empty plan builder.
func NewPlanBuilder() *PlanBuilder {
	return &PlanBuilder{}
}

// Step appends a reasoner step (chainable).
func (b *PlanBuilder) Step(action, target string) *PlanBuilder {
	b.plan.Steps = append(b.plan.Steps, core.Step{Action: action, Target: target})
	return b
}

// Tool appends a tool step (chainable).
func (b *PlanBuilder) Tool(name string, args map[string]any) *PlanBuilder {
	b.plan.Steps = append(b.plan.Steps, core.Step{Action: core.ActionTool, Target: name, Tool: name, Args: args})
	b.plan.ToolsNeeded = append(b.plan.ToolsNeeded, name)
	return b
}

// Build returns the plan.
func (b *PlanBuilder) Build() *core.Plan {
	p := b.plan
	p.Steps = append([]core.Step(nil), b.plan.Steps...)
	p.ToolsNeeded = append([]string(nil), b.plan.ToolsNeeded...)
	return &p
}
