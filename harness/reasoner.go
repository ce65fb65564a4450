package harness

import (
	"context"
	"sync/atomic"

	"github.com/hupe1980/agentbridge/core"
)

// fixedReasoner drives the adapter workflow into a chosen phase for the
// error and performance scenarios: a fixed plan, a plan failure, or calls
// that wait for cancellation.
type fixedReasoner struct {
	plan    *core.Plan
	planErr error
	block   bool

	planned atomic.Int32
}

func blockingReasoner() *fixedReasoner { return &fixedReasoner{block: true} }

func failingReasoner(err error) *fixedReasoner { return &fixedReasoner{planErr: err} }

func planReasoner(steps ...core.Step) *fixedReasoner {
	return &fixedReasoner{plan: &core.Plan{Steps: steps}}
}

func (r *fixedReasoner) Plan(ctx context.Context, req core.PlanRequest) (*core.Plan, error) {
	r.planned.Add(1)
	switch {
	case r.block:
		<-ctx.Done()
		return nil, ctx.Err()
	case r.planErr != nil:
		return nil, r.planErr
	case r.plan == nil:
		return &core.Plan{Steps: []core.Step{{Action: core.ActionRespond, Target: req.Input}}}, nil
	}
	return &core.Plan{Steps: append([]core.Step(nil), r.plan.Steps...)}, nil
}

func (r *fixedReasoner) ExecuteStep(ctx context.Context, step core.Step) (string, error) {
	return step.Target, ctx.Err()
}

func (r *fixedReasoner) Reflect(ctx context.Context, req core.ReflectRequest) (string, error) {
	return req.Result, ctx.Err()
}

// planCalls returns how many plan requests arrived.
func (r *fixedReasoner) planCalls() int { return int(r.planned.Load()) }
