package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentbridge/core"
)

// ReflectionMarker separates the synthesized result from the reflection note.
const ReflectionMarker = "[Reflection]"

// SimulatedReasoner is an offline, deterministic backend. It plans an
// analyze / execute / validate chain, inserting one tool step for every tool
// directive found in the input.
type SimulatedReasoner struct {
	// Delay is slept before every call to simulate a remote engine.
	Delay time.Duration
}

// NewSimulatedReasoner returns a SimulatedReasoner without delay.
func NewSimulatedReasoner() *SimulatedReasoner {
	return &SimulatedReasoner{}
}

// Plan implements core.Reasoner.
func (r *SimulatedReasoner) Plan(ctx context.Context, req core.PlanRequest) (*core.Plan, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	directives, err := ParseDirectives(req.Input, req.Tools)
	if err != nil {
		return nil, err
	}

	plan := &core.Plan{Steps: []core.Step{{Action: core.ActionAnalyze, Target: req.Input}}}
	seen := map[string]bool{}
	for _, d := range directives {
		plan.Steps = append(plan.Steps, core.Step{
			Action: core.ActionTool,
			Target: d.Raw,
			Tool:   d.Tool,
			Args:   d.Args,
		})
		if !seen[d.Tool] {
			seen[d.Tool] = true
			plan.ToolsNeeded = append(plan.ToolsNeeded, d.Tool)
		}
	}
	plan.Steps = append(plan.Steps,
		core.Step{Action: core.ActionExecute, Target: "planned_response"},
		core.Step{Action: core.ActionValidate, Target: "result"},
	)
	return plan, nil
}

// ExecuteStep implements core.Reasoner.
func (r *SimulatedReasoner) ExecuteStep(ctx context.Context, step core.Step) (string, error) {
	if err := r.wait(ctx); err != nil {
		return "", err
	}

	switch step.Action {
	case core.ActionAnalyze:
		return "Analysis of: " + step.Target, nil
	case core.ActionExecute:
		return "Executed: " + step.Target, nil
	case core.ActionValidate:
		return "Validated: " + step.Target, nil
	case core.ActionRespond:
		return step.Target, nil
	default:
		return fmt.Sprintf("Completed %s on %s", step.Action, step.Target), nil
	}
}

// Reflect implements core.Reasoner by appending a reflection note.
func (r *SimulatedReasoner) Reflect(ctx context.Context, req core.ReflectRequest) (string, error) {
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s\n%s Evaluated result for input: '%s...'", req.Result, ReflectionMarker, truncate(req.Input, 50)), nil
}

func (r *SimulatedReasoner) wait(ctx context.Context) error {
	if r.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(r.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
