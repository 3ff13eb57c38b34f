// Package store provides SQLite-backed durable storage for chain traces.
//
// The store is an append-only log with two tables:
//   - runs: one row per chain run, with the definition hash, initial value
//     and final outcome
//   - trace_events: every trace event of a run, keyed by (run_id, seq)
//
// Values are stored as canonical JSON produced by ir.Snapshot and
// ir.MarshalCanonical, so a stored trace is byte-identical across
// replays of the same run.
//
// # Ordering
//
// All queries order by seq, the tracer's logical clock, with id as a
// binary tiebreaker. Wall-clock time is never used for ordering; only
// durations are stored.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
