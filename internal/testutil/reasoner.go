package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/agentbridge/core"
)

// ScriptedReasoner is a core.Reasoner whose answers are fixed up front.
// Zero values give a single "respond" step echoing the input and a
// reflection that returns the result unchanged.
type ScriptedReasoner struct {
	mu sync.Mutex

	plan       *core.Plan
	planErr    error
	stepErr    error
	reflectErr error
	block      bool

	planRequests []core.PlanRequest
	steps        []core.Step
	reflections  int
}

// NewScriptedReasoner returns an empty script.
func NewScriptedReasoner() *ScriptedReasoner {
	return &ScriptedReasoner{}
}

// WithPlan makes Plan return p (chainable).
func (r *ScriptedReasoner) WithPlan(p *core.Plan) *ScriptedReasoner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plan = p
	return r
}

// FailPlan makes Plan fail with err (chainable).
func (r *ScriptedReasoner) FailPlan(err error) *ScriptedReasoner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.planErr = err
	return r
}

// FailSteps makes ExecuteStep fail with err (chainable).
func (r *ScriptedReasoner) FailSteps(err error) *ScriptedReasoner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stepErr = err
	return r
}

// FailReflect makes Reflect fail with err (chainable).
func (r *ScriptedReasoner) FailReflect(err error) *ScriptedReasoner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reflectErr = err
	return r
}

// BlockUntilDone makes every call wait for context cancellation (chainable).
func (r *ScriptedReasoner) BlockUntilDone() *ScriptedReasoner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.block = true
	return r
}

// Plan implements core.Reasoner.
func (r *ScriptedReasoner) Plan(ctx context.Context, req core.PlanRequest) (*core.Plan, error) {
	r.mu.Lock()
	r.planRequests = append(r.planRequests, req)
	plan, err, block := r.plan, r.planErr, r.block
	r.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return &core.Plan{Steps: []core.Step{{Action: core.ActionRespond, Target: req.Input}}}, nil
	}
	cp := *plan
	cp.Steps = append([]core.Step(nil), plan.Steps...)
	return &cp, nil
}

// ExecuteStep implements core.Reasoner. It returns the step target.
func (r *ScriptedReasoner) ExecuteStep(ctx context.Context, step core.Step) (string, error) {
	r.mu.Lock()
	r.steps = append(r.steps, step)
	err := r.stepErr
	r.mu.Unlock()

	if err != nil {
		return "", err
	}
	return step.Target, ctx.Err()
}

// Reflect implements core.Reasoner. It returns the result unchanged.
func (r *ScriptedReasoner) Reflect(ctx context.Context, req core.ReflectRequest) (string, error) {
	r.mu.Lock()
	r.reflections++
	err := r.reflectErr
	r.mu.Unlock()

	if err != nil {
		return "", err
	}
	return req.Result, ctx.Err()
}

// PlanRequests returns the plan requests received so far.
func (r *ScriptedReasoner) PlanRequests() []core.PlanRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.PlanRequest(nil), r.planRequests...)
}

// ExecutedSteps returns the non-tool steps executed so far.
func (r *ScriptedReasoner) ExecutedSteps() []core.Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Step(nil), r.steps...)
}

// Reflections returns how often Reflect was called.
func (r *ScriptedReasoner) Reflections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reflections
}
