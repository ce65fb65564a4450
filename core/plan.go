package core

import "fmt"

// Well-known step actions. Reasoners may use any other action string.
const (
	ActionAnalyze  = "analyze"
	ActionExecute  = "execute"
	ActionValidate = "validate"
	ActionTool     = "tool"
	ActionRespond  = "respond"
)

// Step is one unit of work in a plan. A step with a non-empty Tool is
// dispatched to the tool bridge; every other step goes back to the reasoner.
type Step struct {
	Action string         `json:"action"`
	Target string         `json:"target,omitempty"`
	Tool   string         `json:"tool,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
}

// String renders the step for logs.
func (s Step) String() string {
	if s.Tool != "" {
		return fmt.Sprintf("%s %s(%v)", s.Action, s.Tool, s.Args)
	}
	return fmt.Sprintf("%s %s", s.Action, s.Target)
}

// Plan is produced by the plan phase and discarded after reflection.
type Plan struct {
	Steps       []Step   `json:"steps"`
	ToolsNeeded []string `json:"tools_needed,omitempty"`
}

// StepResult is the outcome of executing one step.
type StepResult struct {
	Step   Step
	Output string
	Tool   *ToolCallRecord
}
