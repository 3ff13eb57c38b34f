// Package trace records the execution of call chains as a stream of
// structured events.
//
// Every chain run and every queued call is given a correlation id. The
// engine emits five event kinds through a Tracer:
//
//	chain.start   a queue started draining
//	chain.end     a queue drained and delivered its terminal callback
//	call.start    an operation is about to be invoked
//	call.end      an operation completed (Duration is set)
//	call.skipped  an operation was bypassed because the chain is erroring
//
// Each event carries the owning chain id, the parent chain id and the id of
// the call that spawned the chain (for sub-chains and ad hoc chains), the
// nesting depth, and the result/error snapshot. That is enough for an
// external observer to rebuild the full call tree; BuildTree does exactly
// that.
//
// Events are stamped with a monotonic sequence number from Clock. Sinks see
// events in Seq order: Emit holds a lock while dispatching, so a Sink must
// not emit events itself.
package trace
