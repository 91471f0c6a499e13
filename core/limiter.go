package core

import (
	"fmt"
	"sync"
)

// StepLimiter counts agent turns of a run against a maximum.
type StepLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewStepLimiter creates a new limiter. If max == 0, unlimited steps are allowed.
func NewStepLimiter(max int) *StepLimiter {
	return &StepLimiter{max: max}
}

// Increment records one step and returns an error once the limit is exceeded.
func (sl *StepLimiter) Increment() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.count++
	if sl.max > 0 && sl.count > sl.max {
		return fmt.Errorf("%w: %d", ErrStepLimitExceeded, sl.max)
	}

	return nil
}

// Restore sets the number of steps already taken, e.g. by an earlier
// attempt of the same run.
func (sl *StepLimiter) Restore(count int) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.count = count
}

// Count returns the number of steps recorded.
func (sl *StepLimiter) Count() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	return sl.count
}

// Remaining returns how many steps are left, or -1 if unlimited.
func (sl *StepLimiter) Remaining() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.max == 0 {
		return -1
	}

	return sl.max - sl.count
}
