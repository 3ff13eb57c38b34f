package store

import (
	"context"
	"fmt"

	"github.com/roach88/callchain/internal/ir"
	"github.com/roach88/callchain/internal/queryir"
	"github.com/roach88/callchain/internal/trace"
)

var (
	runColumns = []string{
		"id", "seq", "name", "definition_hash", "definition", "initial",
		"status", "result", "result_hash", "error",
	}
	eventColumns = []string{
		"run_id", "seq", "type", "id", "chain_id", "parent_chain_id", "parent_call_id",
		"depth", "method", "declared_args", "args", "result", "error", "duration_ns",
	}
)

// RunFilter narrows QueryRuns. Zero-valued fields match every run.
type RunFilter struct {
	Name           string
	Statuses       []RunStatus
	DefinitionHash string
}

// Predicate returns the filter as a query predicate, or nil when it
// matches everything.
func (f RunFilter) Predicate() queryir.Predicate {
	var preds []queryir.Predicate
	if f.Name != "" {
		preds = append(preds, queryir.Equals{Field: "name", Value: ir.IRString(f.Name)})
	}
	if len(f.Statuses) > 0 {
		values := make([]ir.IRValue, len(f.Statuses))
		for i, st := range f.Statuses {
			values[i] = ir.IRString(st)
		}
		preds = append(preds, queryir.In{Field: "status", Values: values})
	}
	if f.DefinitionHash != "" {
		preds = append(preds, queryir.Equals{Field: "definition_hash", Value: ir.IRString(f.DefinitionHash)})
	}
	return conjoin(preds)
}

// EventFilter narrows QueryEvents within one run. Zero-valued fields match
// every event.
type EventFilter struct {
	Types   []trace.EventType
	Method  string
	ChainID string
}

// Predicate returns the filter for runID as a query predicate.
func (f EventFilter) Predicate(runID string) queryir.Predicate {
	preds := []queryir.Predicate{queryir.Equals{Field: "run_id", Value: ir.IRString(runID)}}
	if len(f.Types) > 0 {
		values := make([]ir.IRValue, len(f.Types))
		for i, typ := range f.Types {
			values[i] = ir.IRString(typ)
		}
		preds = append(preds, queryir.In{Field: "type", Values: values})
	}
	if f.Method != "" {
		preds = append(preds, queryir.Equals{Field: "method", Value: ir.IRString(f.Method)})
	}
	if f.ChainID != "" {
		preds = append(preds, queryir.Equals{Field: "chain_id", Value: ir.IRString(f.ChainID)})
	}
	return conjoin(preds)
}

func conjoin(preds []queryir.Predicate) queryir.Predicate {
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	default:
		return queryir.And{Predicates: preds}
	}
}

// QueryRuns returns the runs matching f, ordered by seq.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) QueryRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	query, args, err := s.compiler.Compile(queryir.Select{
		From:    "runs",
		Columns: runColumns,
		Filter:  f.Predicate(),
	})
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return s.queryRuns(ctx, query, args...)
}

// QueryEvents returns the events of runID matching f, ordered by seq.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) QueryEvents(ctx context.Context, runID string, f EventFilter) ([]EventRecord, error) {
	query, args, err := s.compiler.Compile(queryir.Select{
		From:    "trace_events",
		Columns: eventColumns,
		Filter:  f.Predicate(runID),
	})
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return s.queryEvents(ctx, query, args...)
}
