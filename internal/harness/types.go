package harness

import (
	"github.com/roach88/callchain/internal/ir"
	"github.com/roach88/callchain/internal/trace"
)

// TraceEvent is the value-level view of a trace event used for assertions,
// golden files and JSON output. Ids and timings are left out so the view
// is stable across runs.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Type   string `json:"type"`
	Method string `json:"method,omitempty"`
	Depth  int    `json:"depth"`

	// Args are the validated arguments; nil when the call was skipped,
	// failed validation or declares no parameters.
	Args   []any  `json:"args,omitempty"`
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
}

// NewTraceEvent snapshots ev.
func NewTraceEvent(ev trace.Event) TraceEvent {
	te := TraceEvent{
		Seq:    ev.Seq,
		Type:   string(ev.Type),
		Method: ev.Method,
		Depth:  ev.Depth,
		Result: ir.ToGo(ir.Snapshot(ev.Result)),
		Error:  ev.ErrorText(),
	}
	if ev.Args != nil {
		te.Args = make([]any, len(ev.Args))
		for i, a := range ev.Args {
			te.Args[i] = ir.ToGo(ir.Snapshot(a))
		}
	}
	return te
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when the outcome and every assertion matched.
	Pass bool `json:"pass"`

	// RunID identifies the run in the store it was persisted to.
	RunID string `json:"run_id"`

	// Value and Error are the chain's terminal outcome.
	Value any    `json:"value"`
	Error string `json:"error,omitempty"`

	Trace []TraceEvent `json:"trace"`

	// Errors lists every mismatch. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	events []trace.Event
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Events returns the raw trace events of the run, including ids and
// timings.
func (r *Result) Events() []trace.Event {
	return r.events
}
