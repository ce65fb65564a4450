package core

import (
	"fmt"
	"sync"
)

// StepLimiter enforces the maximum number of steps one invocation may run.
type StepLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewStepLimiter creates a new limiter. If max == 0, unlimited steps are allowed.
func NewStepLimiter(max int) *StepLimiter {
	return &StepLimiter{max: max}
}

// Check verifies that a plan with n steps fits in the remaining budget
// without consuming it.
func (sl *StepLimiter) Check(n int) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.max > 0 && sl.count+n > sl.max {
		return fmt.Errorf("%w: %d steps, limit %d", ErrChainLimit, sl.count+n, sl.max)
	}

	return nil
}

// Increment consumes one step and returns an error if the limit is exceeded.
func (sl *StepLimiter) Increment() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.count++
	if sl.max > 0 && sl.count > sl.max {
		return fmt.Errorf("%w: limit %d", ErrChainLimit, sl.max)
	}

	return nil
}

// Count returns the number of steps consumed.
func (sl *StepLimiter) Count() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	return sl.count
}

// Remaining returns how many steps are left before hitting the limit.
func (sl *StepLimiter) Remaining() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.max == 0 {
		return -1 // unlimited
	}

	return sl.max - sl.count
}
