package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/callchain/internal/ir"
	"github.com/roach88/callchain/internal/trace"
)

// EventRecord is the stored form of a trace.Event. Values are IR
// snapshots; the error is kept as text.
type EventRecord struct {
	RunID         string
	Seq           int64
	Type          trace.EventType
	ID            string
	ChainID       string
	ParentChainID string
	ParentCallID  string
	Depth         int
	Method        string
	DeclaredArgs  ir.IRArray
	Args          ir.IRArray // nil when the event carried no validated arguments
	Result        ir.IRValue
	Error         string
	Duration      time.Duration
}

// NewEventRecord snapshots ev for storage under runID.
func NewEventRecord(runID string, ev trace.Event) EventRecord {
	rec := EventRecord{
		RunID:         runID,
		Seq:           ev.Seq,
		Type:          ev.Type,
		ID:            ev.ID,
		ChainID:       ev.ChainID,
		ParentChainID: ev.ParentChainID,
		ParentCallID:  ev.ParentCallID,
		Depth:         ev.Depth,
		Method:        ev.Method,
		DeclaredArgs:  ir.SnapshotArgs(ev.DeclaredArgs),
		Result:        ir.Snapshot(ev.Result),
		Error:         ev.ErrorText(),
		Duration:      ev.Duration,
	}
	if ev.Args != nil {
		rec.Args = ir.SnapshotArgs(ev.Args)
	}
	return rec
}

// WriteEvent stores one trace event.
// Uses ON CONFLICT DO NOTHING for idempotency - an event already stored
// under the same (run_id, seq) is silently ignored.
func (s *Store) WriteEvent(ctx context.Context, rec EventRecord) error {
	if !rec.Type.Valid() {
		return fmt.Errorf("write event: unknown event type %q", rec.Type)
	}
	declared, err := marshalValue(rec.DeclaredArgs)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	var argsValue ir.IRValue = ir.IRNull{}
	if rec.Args != nil {
		argsValue = rec.Args
	}
	args, err := marshalValue(argsValue)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	result, err := marshalValue(rec.Result)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trace_events
		(run_id, seq, type, id, chain_id, parent_chain_id, parent_call_id, depth, method,
		 declared_args, args, result, error, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		rec.RunID,
		rec.Seq,
		string(rec.Type),
		rec.ID,
		rec.ChainID,
		rec.ParentChainID,
		rec.ParentCallID,
		rec.Depth,
		rec.Method,
		declared,
		args,
		result,
		rec.Error,
		int64(rec.Duration),
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// ReadEvents returns the events of a run ordered by seq.
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]EventRecord, error) {
	return s.QueryEvents(ctx, runID, EventFilter{})
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []EventRecord{}
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

func scanEvent(row scanner) (EventRecord, error) {
	var (
		rec                    EventRecord
		typ                    string
		declared, args, result string
		durationNS             int64
	)
	if err := row.Scan(&rec.RunID, &rec.Seq, &typ, &rec.ID, &rec.ChainID, &rec.ParentChainID,
		&rec.ParentCallID, &rec.Depth, &rec.Method, &declared, &args, &result, &rec.Error,
		&durationNS); err != nil {
		return EventRecord{}, fmt.Errorf("scan event: %w", err)
	}
	rec.Type = trace.EventType(typ)
	rec.Duration = time.Duration(durationNS)

	var err error
	if rec.DeclaredArgs, err = unmarshalArray(declared); err != nil {
		return EventRecord{}, fmt.Errorf("event %d: %w", rec.Seq, err)
	}
	if rec.Args, err = unmarshalArray(args); err != nil {
		return EventRecord{}, fmt.Errorf("event %d: %w", rec.Seq, err)
	}
	if rec.Result, err = unmarshalValue(result); err != nil {
		return EventRecord{}, fmt.Errorf("event %d: %w", rec.Seq, err)
	}
	return rec, nil
}
