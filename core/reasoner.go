package core

import "context"

// ToolSpec describes a tool to a reasoner.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// PlanRequest is the input of the plan phase.
type PlanRequest struct {
	Agent        string
	SystemPrompt string
	// Preamble is caller supplied context (conversation window, team state).
	Preamble string
	Input    string
	Tools    []ToolSpec
	History  []Turn
}

// ReflectRequest is the input of the reflect phase.
type ReflectRequest struct {
	Agent  string
	Input  string
	Result string
	Plan   *Plan
}

// Reasoner is the contract an external autonomous-agent engine satisfies.
// Every method is a suspension point: implementations that cross a process
// or network boundary must honour ctx cancellation.
type Reasoner interface {
	// Plan turns the request into an ordered plan.
	Plan(ctx context.Context, req PlanRequest) (*Plan, error)
	// ExecuteStep performs a non-tool step and returns its textual result.
	ExecuteStep(ctx context.Context, step Step) (string, error)
	// Reflect reviews the synthesized result and returns the final output.
	Reflect(ctx context.Context, req ReflectRequest) (string, error)
}

// ToolInvoker dispatches tool steps.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (any, error)
	Specs() []ToolSpec
}
