package trace

import "time"

// EventType distinguishes trace event kinds.
type EventType string

const (
	EventChainStart  EventType = "chain.start"
	EventChainEnd    EventType = "chain.end"
	EventCallStart   EventType = "call.start"
	EventCallEnd     EventType = "call.end"
	EventCallSkipped EventType = "call.skipped"
)

// Valid reports whether t is one of the known event kinds.
func (t EventType) Valid() bool {
	switch t {
	case EventChainStart, EventChainEnd, EventCallStart, EventCallEnd, EventCallSkipped:
		return true
	}
	return false
}

// Event is a single trace record.
//
// For chain events ID equals ChainID and Method is empty. For call events
// ID identifies the call instance and ChainID the queue that owns it.
type Event struct {
	Type EventType
	Seq  int64

	ID            string
	ChainID       string
	ParentChainID string // empty for root chains
	ParentCallID  string // call that spawned this chain, if any

	Depth  int
	Method string

	// DeclaredArgs are the arguments as supplied when the call was queued.
	// Args are the arguments after defaults, derivation and the sub-chain
	// prefix were applied; nil when validation failed or the call was skipped.
	DeclaredArgs []any
	Args         []any

	Result any
	Err    error

	Time     time.Time
	Duration time.Duration // end events only
}

// IsChainEvent reports whether the event describes a chain rather than a call.
func (e Event) IsChainEvent() bool {
	return e.Type == EventChainStart || e.Type == EventChainEnd
}

// ErrorText returns the error message, or "" when the event carries no error.
func (e Event) ErrorText() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}
