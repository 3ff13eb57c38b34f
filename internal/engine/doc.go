// Package engine implements the callchain execution engine.
//
// Consumers register operations on a Registry and compose them into fluent
// chains. A Chain wraps a call queue; every chain method appends a call
// descriptor and returns the same chain. Running a chain drains a fresh
// clone of that queue one call at a time.
//
// ARCHITECTURE:
//
// Sequential queue:
// At most one call per queue is in flight. An operation receives the
// Context as its receiver and a completion callback; the queue resumes when
// the callback fires, from whatever goroutine fires it. Call N+1 never
// starts before call N completes, including when call N runs a nested
// sub-chain to completion.
//
// Error skipping:
// Once a call completes with an error, every following call that is not
// an intercepting operation (tap, end, recover, transform) is skipped. A
// skipped call still advances the cursor and emits a call.skipped trace
// event. recover clears the error by completing with a nil error.
//
// Blocks:
// An operation tagged with a begin marker opens a nested queue; every call
// until the matching end marker is routed there. The end-marker call owns
// the finished child queue and receives a fresh child *Chain as its first
// argument when it executes.
//
// Errors:
//   - operation errors: passed to the completion callback, or a panic
//     captured by the sandbox (*PanicError)
//   - validation errors: *ValidationError, delivered like operation errors
//   - structural errors: *StructuralError, returned by Registry and Add and
//     raised as panics by the fluent Call methods
//
// Every run delivers exactly one terminal (error, result) pair.
package engine
