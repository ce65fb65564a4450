package core

import (
	"fmt"
	"sync"
)

// Phase is a state of the per-invocation workflow.
//
//	pending → plan → execute → reflect → done
//	                         ↘ done (reflection disabled)
//	any non-terminal phase → failed
type Phase int

const (
	// PhasePending is the state before planning starts.
	PhasePending Phase = iota
	// PhasePlan produces the execution plan.
	PhasePlan
	// PhaseExecute runs the plan's steps.
	PhaseExecute
	// PhaseReflect reviews the synthesized result.
	PhaseReflect
	// PhaseDone is terminal success.
	PhaseDone
	// PhaseFailed is terminal failure.
	PhaseFailed
)

// String returns the lower-case phase name.
func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhasePlan:
		return "plan"
	case PhaseExecute:
		return "execute"
	case PhaseReflect:
		return "reflect"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Terminal reports whether no further transition is allowed.
func (p Phase) Terminal() bool { return p == PhaseDone || p == PhaseFailed }

var transitions = map[Phase][]Phase{
	PhasePending: {PhasePlan},
	PhasePlan:    {PhaseExecute},
	PhaseExecute: {PhaseReflect, PhaseDone},
	PhaseReflect: {PhaseDone},
}

// CanTransition reports whether to is a legal successor of p.
func (p Phase) CanTransition(to Phase) bool {
	if to == PhaseFailed {
		return !p.Terminal()
	}
	for _, next := range transitions[p] {
		if next == to {
			return true
		}
	}
	return false
}

// Workflow tracks the phase of one invocation. It records the phase in which
// a failure happened so error tagging does not depend on call order.
type Workflow struct {
	mu       sync.Mutex
	current  Phase
	failedIn Phase
	visited  []Phase
}

// NewWorkflow returns a workflow in PhasePending.
func NewWorkflow() *Workflow {
	return &Workflow{current: PhasePending, visited: []Phase{PhasePending}}
}

// Current returns the active phase.
func (w *Workflow) Current() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Advance moves to the next phase or returns an error for an illegal move.
func (w *Workflow) Advance(to Phase) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if to == PhaseFailed {
		return fmt.Errorf("use Fail to enter %s", PhaseFailed)
	}
	if !w.current.CanTransition(to) {
		return fmt.Errorf("illegal phase transition %s -> %s", w.current, to)
	}
	w.current = to
	w.visited = append(w.visited, to)
	return nil
}

// Fail marks the workflow failed and returns the phase that was active.
// Failing an already terminal workflow is a no-op returning the recorded phase.
func (w *Workflow) Fail() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current.Terminal() {
		return w.failedIn
	}
	w.failedIn = w.current
	w.current = PhaseFailed
	w.visited = append(w.visited, PhaseFailed)
	return w.failedIn
}

// FailedIn returns the phase active at failure, or PhasePending if the
// workflow has not failed.
func (w *Workflow) FailedIn() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failedIn
}

// Visited returns the phases entered so far in order.
func (w *Workflow) Visited() []Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Phase, len(w.visited))
	copy(out, w.visited)
	return out
}
