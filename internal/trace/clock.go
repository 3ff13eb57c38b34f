package trace

import "sync/atomic"

// Clock is a monotonic logical clock used to order trace events.
//
// Wall-clock timestamps are recorded on events for timing breakdowns, but
// ordering always uses Seq: two events emitted within the same nanosecond
// still have a strict order.
//
// Thread-safety: Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
