package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func traceOf(events ...TraceEvent) *Result {
	r := NewResult()
	r.Trace = events
	return r
}

var sampleTrace = traceOf(
	TraceEvent{Seq: 1, Type: "chain.start"},
	TraceEvent{Seq: 2, Type: "call.start", Method: "a"},
	TraceEvent{Seq: 3, Type: "call.end", Method: "a"},
	TraceEvent{Seq: 4, Type: "call.start", Method: "block"},
	TraceEvent{Seq: 5, Type: "chain.start", Depth: 1},
	TraceEvent{Seq: 6, Type: "call.start", Method: "b", Depth: 1},
	TraceEvent{Seq: 7, Type: "call.end", Method: "b", Depth: 1, Error: "boom"},
	TraceEvent{Seq: 8, Type: "chain.end", Depth: 1, Error: "boom"},
	TraceEvent{Seq: 9, Type: "call.end", Method: "block", Error: "boom"},
	TraceEvent{Seq: 10, Type: "call.skipped", Method: "c", Error: "boom"},
	TraceEvent{Seq: 11, Type: "call.start", Method: "b"},
	TraceEvent{Seq: 12, Type: "call.end", Method: "b"},
	TraceEvent{Seq: 13, Type: "chain.end"},
)

func TestEvaluateAssertions_Pass(t *testing.T) {
	errs := EvaluateAssertions(sampleTrace, []Assertion{
		{Type: AssertCallOrder, Methods: []string{"a", "b", "b"}},
		{Type: AssertCallOrder, Methods: []string{"block", "b"}},
		{Type: AssertSkipped, Methods: []string{"c"}},
		{Type: AssertCallCount, Method: "b", Count: 2},
		{Type: AssertCallCount, Method: "c", Count: 0},
		{Type: AssertChainCount, Count: 2},
		{Type: AssertMaxDepth, Depth: 1},
	}, nil)
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"order", Assertion{Type: AssertCallOrder, Methods: []string{"b", "a"}}, `"a" not found in order`},
		{"skipped", Assertion{Type: AssertSkipped}, "Expected: skipped []"},
		{"count", Assertion{Type: AssertCallCount, Method: "a", Count: 3}, "Actual: 1 calls"},
		{"chains", Assertion{Type: AssertChainCount, Count: 1}, "Actual: 2 chains"},
		{"depth", Assertion{Type: AssertMaxDepth, Depth: 0}, "Actual: max depth 1"},
		{"run_status without store", Assertion{Type: AssertRunStatus, Status: "ok"}, "run_status requires a store"},
		{"unknown", Assertion{Type: "nope"}, `unknown assertion type "nope"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleTrace, []Assertion{tt.assertion}, nil)
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertCallCount,
		Expected: "1 calls to b",
		Actual:   "2 calls",
		Trace:    sampleTrace.Trace[5:7],
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: call_count")
	assert.Contains(t, msg, "[6]   call.start b")
	assert.Contains(t, msg, `[7]   call.end b error="boom"`)
}

func TestRunStatus_AgainstStore(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/subchain_recover.yaml")
	require.NoError(t, err)
	s.Assertions = []Assertion{{Type: AssertRunStatus, Status: "error"}}

	result, err := Run(t.Context(), s)
	require.NoError(t, err)
	require.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Actual: status ok, 0 open chains, 0 open calls")
}
