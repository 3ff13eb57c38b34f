package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/callchain/internal/store"
	"github.com/roach88/callchain/internal/trace"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s%s %s", event.Seq, strings.Repeat("  ", event.Depth), event.Type, event.Method)
			if event.Error != "" {
				fmt.Fprintf(&buf, " error=%q", event.Error)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// methodsOf returns the methods of events of type typ, in trace order.
func methodsOf(events []TraceEvent, typ trace.EventType) []string {
	out := []string{}
	for _, ev := range events {
		if ev.Type == string(typ) {
			out = append(out, ev.Method)
		}
	}
	return out
}

// assertCallOrder checks that the methods were started in the given order.
// Other calls may run in between.
func assertCallOrder(events []TraceEvent, assertion Assertion) error {
	started := methodsOf(events, trace.EventCallStart)
	next := 0
	for _, m := range started {
		if next < len(assertion.Methods) && m == assertion.Methods[next] {
			next++
		}
	}
	if next == len(assertion.Methods) {
		return nil
	}
	return &AssertionError{
		Type:     AssertCallOrder,
		Expected: fmt.Sprintf("calls in order %v", assertion.Methods),
		Actual:   fmt.Sprintf("started %v; %q not found in order", started, assertion.Methods[next]),
		Trace:    events,
	}
}

// assertSkipped checks the exact list of skipped calls.
func assertSkipped(events []TraceEvent, assertion Assertion) error {
	skipped := methodsOf(events, trace.EventCallSkipped)
	if equalStrings(skipped, assertion.Methods) {
		return nil
	}
	return &AssertionError{
		Type:     AssertSkipped,
		Expected: fmt.Sprintf("skipped %v", orEmpty(assertion.Methods)),
		Actual:   fmt.Sprintf("skipped %v", skipped),
		Trace:    events,
	}
}

// assertCallCount checks how many times a method was started.
func assertCallCount(events []TraceEvent, assertion Assertion) error {
	count := 0
	for _, m := range methodsOf(events, trace.EventCallStart) {
		if m == assertion.Method {
			count++
		}
	}
	if count == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertCallCount,
		Expected: fmt.Sprintf("%d calls to %s", assertion.Count, assertion.Method),
		Actual:   fmt.Sprintf("%d calls", count),
		Trace:    events,
	}
}

func assertChainCount(events []TraceEvent, assertion Assertion) error {
	count := len(methodsOf(events, trace.EventChainStart))
	if count == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertChainCount,
		Expected: fmt.Sprintf("%d chains", assertion.Count),
		Actual:   fmt.Sprintf("%d chains", count),
		Trace:    events,
	}
}

func assertMaxDepth(events []TraceEvent, assertion Assertion) error {
	depth := 0
	for _, ev := range events {
		depth = max(depth, ev.Depth)
	}
	if depth == assertion.Depth {
		return nil
	}
	return &AssertionError{
		Type:     AssertMaxDepth,
		Expected: fmt.Sprintf("max depth %d", assertion.Depth),
		Actual:   fmt.Sprintf("max depth %d", depth),
		Trace:    events,
	}
}

// assertRunStatus checks the run as the store saw it: its terminal status
// and that every chain and call that started also ended.
func assertRunStatus(ctx context.Context, st *store.Store, runID string, assertion Assertion) error {
	state, err := st.GetRunState(ctx, runID)
	if err != nil {
		return fmt.Errorf("run_status: %w", err)
	}
	if string(state.Run.Status) == assertion.Status && state.IsComplete {
		return nil
	}
	return &AssertionError{
		Type:     AssertRunStatus,
		Expected: fmt.Sprintf("status %s with every chain and call closed", assertion.Status),
		Actual: fmt.Sprintf("status %s, %d open chains, %d open calls",
			state.Run.Status, state.OpenChains, state.OpenCalls),
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	RunID string
	Ctx   context.Context
}

// EvaluateAssertions runs all assertions against result and returns a
// message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertCallOrder:
			err = assertCallOrder(result.Trace, assertion)
		case AssertSkipped:
			err = assertSkipped(result.Trace, assertion)
		case AssertCallCount:
			err = assertCallCount(result.Trace, assertion)
		case AssertChainCount:
			err = assertChainCount(result.Trace, assertion)
		case AssertMaxDepth:
			err = assertMaxDepth(result.Trace, assertion)
		case AssertRunStatus:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: run_status requires a store", i)
			} else {
				err = assertRunStatus(actx.Ctx, actx.Store, actx.RunID, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
