// Package harness runs chains described as YAML scenarios and checks their
// outcome and trace.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	initial: hello
//	manifests:
//	  - extra.cue
//	steps:
//	  - call: append
//	    args: [" world"]
//	  - call: $beginSubchain
//	  - call: upper
//	  - call: $endSubchain
//	expect:
//	  result: HELLO WORLD
//	assertions:
//	  - type: call_order
//	    methods: [append, upper]
//	  - type: run_status
//	    status: ok
//
// # Assertion Types
//
//   - call_order: the methods were started in this order, others may interleave
//   - skipped: exactly these calls were skipped, in order
//   - call_count: a method was started exactly count times
//   - chain_count: exactly count chains ran, nested ones included
//   - max_depth: the deepest nested chain had this depth
//   - run_status: the stored run ended with this status and left nothing open
//
// # Golden Files
//
// GoldenBytes renders a result as canonical JSON lines. RunWithGolden and
// AssertGolden compare them with testdata/golden/<name>.golden through
// goldie; run the tests with -update to regenerate.
package harness
