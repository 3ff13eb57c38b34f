package trace

import (
	"sync"
	"time"
)

// Tracer assigns correlation ids and fans events out to sinks.
//
// A Tracer with no sinks is valid; ids and sequence numbers are still
// assigned so callers can correlate results with later sinks.
type Tracer struct {
	ids   IDGenerator
	clock *Clock
	now   func() time.Time

	mu    sync.Mutex
	sinks []Sink
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithIDGenerator overrides the id source (default: UUIDv7Generator).
func WithIDGenerator(g IDGenerator) Option {
	return func(t *Tracer) {
		t.ids = g
	}
}

// WithClock overrides the logical clock.
func WithClock(c *Clock) Option {
	return func(t *Tracer) {
		t.clock = c
	}
}

// WithNow overrides the wall clock used for Time and Duration.
// Tests pass a frozen clock so durations are zero and golden files stable.
func WithNow(now func() time.Time) Option {
	return func(t *Tracer) {
		t.now = now
	}
}

// WithSinks registers sinks at construction time.
func WithSinks(sinks ...Sink) Option {
	return func(t *Tracer) {
		t.sinks = append(t.sinks, sinks...)
	}
}

// New creates a Tracer.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		ids:   UUIDv7Generator{},
		clock: NewClock(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewID returns a fresh correlation id.
func (t *Tracer) NewID() string {
	return t.ids.Generate()
}

// Now returns the tracer's wall-clock time.
func (t *Tracer) Now() time.Time {
	return t.now()
}

// AddSink registers an additional sink. Events already emitted are not replayed.
func (t *Tracer) AddSink(s Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sinks = append(t.sinks, s)
}

// Emit stamps ev with the next sequence number (and the current time when
// ev.Time is zero) and delivers it to every sink in registration order.
// The stamped event is returned.
func (t *Tracer) Emit(ev Event) Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	ev.Seq = t.clock.Next()
	if ev.Time.IsZero() {
		ev.Time = t.now()
	}
	for _, s := range t.sinks {
		s.Handle(ev.Type, ev)
	}
	return ev
}
