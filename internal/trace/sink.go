package trace

import (
	"context"
	"log/slog"
	"sync"
)

// Sink receives trace events in Seq order.
type Sink interface {
	Handle(eventType EventType, ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(eventType EventType, ev Event)

// Handle calls f.
func (f SinkFunc) Handle(eventType EventType, ev Event) {
	f(eventType, ev)
}

// Recorder is an in-memory Sink. It is used by the harness and by tests.
//
// Thread-safety: Recorder is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Handle appends the event.
func (r *Recorder) Handle(_ EventType, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of all recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Filter returns the recorded events of the given types, in order.
func (r *Recorder) Filter(types ...EventType) []Event {
	want := make(map[EventType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if want[ev.Type] {
			out = append(out, ev)
		}
	}
	return out
}

// Methods returns the method names of recorded events of type t, in order.
func (r *Recorder) Methods(t EventType) []string {
	events := r.Filter(t)
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Method)
	}
	return out
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// LogSink writes trace events to a slog.Logger.
//
// Chain and call events are logged at the configured level; a chain that
// finishes with an error is logged at WARN regardless.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger, level: level}
}

var logMessages = map[EventType]string{
	EventChainStart:  "chain started",
	EventChainEnd:    "chain finished",
	EventCallStart:   "call started",
	EventCallEnd:     "call finished",
	EventCallSkipped: "call skipped",
}

// Handle logs the event.
func (s *LogSink) Handle(eventType EventType, ev Event) {
	level := s.level
	if eventType == EventChainEnd && ev.Err != nil {
		level = slog.LevelWarn
	}
	if !s.logger.Enabled(context.Background(), level) {
		return
	}

	attrs := []any{
		"seq", ev.Seq,
		"id", ev.ID,
		"chain", ev.ChainID,
		"depth", ev.Depth,
	}
	if ev.Method != "" {
		attrs = append(attrs, "method", ev.Method)
	}
	if ev.ParentChainID != "" {
		attrs = append(attrs, "parent_chain", ev.ParentChainID)
	}
	if ev.ParentCallID != "" {
		attrs = append(attrs, "parent_call", ev.ParentCallID)
	}
	switch eventType {
	case EventCallStart:
		attrs = append(attrs, "args", ev.Args)
	case EventCallEnd, EventChainEnd:
		attrs = append(attrs, "duration", ev.Duration)
		if ev.Err != nil {
			attrs = append(attrs, "error", ev.Err)
		} else {
			attrs = append(attrs, "result", ev.Result)
		}
	case EventCallSkipped:
		attrs = append(attrs, "error", ev.Err)
	}

	msg, ok := logMessages[eventType]
	if !ok {
		msg = string(eventType)
	}
	s.logger.Log(context.Background(), level, msg, attrs...)
}
