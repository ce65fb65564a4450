package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/logging"
	"github.com/hupe1980/agentbridge/model"
)

const planInstructions = `Break the user's request into steps and answer with JSON only:
{"steps":[{"action":"<analyze|execute|validate|respond|tool>","target":"<text>","tool":"<tool name, tool steps only>","args":{}}]}
Use a "tool" step for every tool call. End with a "respond" step whose target is the reply to the user.`

const stepInstructions = "Carry out the given step and reply with its result only."

const reflectInstructions = "Review the result against the request. Reply with one short sentence noting gaps or confirming it."

// ModelReasonerOptions configures a ModelReasoner.
type ModelReasonerOptions struct {
	Logger logging.Logger
	// Stream asks the model for streamed chunks.
	Stream bool
}

// ModelReasoner drives a model.Model through the plan / execute / reflect
// contract. A plan that cannot be parsed degrades to a single respond step.
type ModelReasoner struct {
	model model.Model
	opts  ModelReasonerOptions
}

// NewModelReasoner creates a reasoner backed by m.
func NewModelReasoner(m model.Model, optFns ...func(o *ModelReasonerOptions)) *ModelReasoner {
	opts := ModelReasonerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	return &ModelReasoner{model: m, opts: opts}
}

// Plan implements core.Reasoner.
func (r *ModelReasoner) Plan(ctx context.Context, req core.PlanRequest) (*core.Plan, error) {
	var instructions strings.Builder
	if req.SystemPrompt != "" {
		instructions.WriteString(req.SystemPrompt)
		instructions.WriteString("\n\n")
	}
	if len(req.Tools) > 0 {
		instructions.WriteString("Available tools:\n")
		for _, t := range req.Tools {
			params, _ := json.Marshal(t.Parameters)
			fmt.Fprintf(&instructions, "- %s: %s %s\n", t.Name, t.Description, params)
		}
		instructions.WriteString("\n")
	}
	instructions.WriteString(planInstructions)

	var msgs []model.Message
	for _, turn := range req.History {
		for _, m := range turn.Messages() {
			msgs = append(msgs, model.Message{Role: m.Role, Content: m.Content})
		}
	}
	msgs = append(msgs, model.Message{Role: "user", Content: withPreamble(req.Preamble, req.Input)})

	text, _, err := model.Collect(ctx, r.model, model.Request{
		Instructions: instructions.String(),
		Messages:     msgs,
		Stream:       r.opts.Stream,
	})
	if err != nil {
		return nil, err
	}

	plan, ok := parsePlan(text)
	if !ok {
		r.opts.Logger.Debug("reasoner.plan.fallback", "agent", req.Agent, "model", r.model.Info().Name)
		return &core.Plan{Steps: []core.Step{respondStep(req)}}, nil
	}
	return plan, nil
}

// ExecuteStep implements core.Reasoner.
func (r *ModelReasoner) ExecuteStep(ctx context.Context, step core.Step) (string, error) {
	content := fmt.Sprintf("%s: %s", step.Action, step.Target)
	if step.Action == core.ActionRespond {
		preamble, _ := step.Args["context"].(string)
		content = withPreamble(preamble, step.Target)
	}

	text, _, err := model.Collect(ctx, r.model, model.Request{
		Instructions: stepInstructions,
		Messages:     []model.Message{{Role: "user", Content: content}},
		Stream:       r.opts.Stream,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Reflect implements core.Reasoner. The model's review is appended after
// ReflectionMarker.
func (r *ModelReasoner) Reflect(ctx context.Context, req core.ReflectRequest) (string, error) {
	content := fmt.Sprintf("Request: %s\n\nResult:\n%s", req.Input, req.Result)
	text, _, err := model.Collect(ctx, r.model, model.Request{
		Instructions: reflectInstructions,
		Messages:     []model.Message{{Role: "user", Content: content}},
		Stream:       r.opts.Stream,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s\n%s %s", req.Result, ReflectionMarker, strings.TrimSpace(text)), nil
}

func respondStep(req core.PlanRequest) core.Step {
	step := core.Step{Action: core.ActionRespond, Target: req.Input}
	if req.Preamble != "" {
		step.Args = map[string]any{"context": req.Preamble}
	}
	return step
}

// parsePlan extracts the outermost JSON object from text.
func parsePlan(text string) (*core.Plan, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var plan core.Plan
	if err := json.Unmarshal([]byte(text[start:end+1]), &plan); err != nil || len(plan.Steps) == 0 {
		return nil, false
	}
	for i, s := range plan.Steps {
		if s.Tool != "" {
			plan.Steps[i].Action = core.ActionTool
			plan.ToolsNeeded = appendUnique(plan.ToolsNeeded, s.Tool)
		}
	}
	return &plan, true
}

func withPreamble(preamble, input string) string {
	if preamble == "" {
		return input
	}
	return preamble + "\n\n" + input
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
