package testutil

import (
	"sync"
	"time"
)

// Epoch is the wall-clock start used by deterministic tests.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// SteppingClock is a wall clock that advances by a fixed step every time
// it is read.
//
// Passed to trace.WithNow it makes event times and durations a pure
// function of the order in which the engine reads the clock, so golden
// traces are byte-identical across runs. A zero step freezes time.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SteppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewSteppingClock creates a clock starting at Epoch.
func NewSteppingClock(step time.Duration) *SteppingClock {
	return &SteppingClock{now: Epoch, step: step}
}

// Now returns the current time and then advances the clock by one step.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Reset rewinds the clock to Epoch.
func (c *SteppingClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch
}
