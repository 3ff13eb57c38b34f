package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/callchain/internal/ir"
	"github.com/roach88/callchain/internal/trace"
)

// ReplayRun reads a stored run back as trace events, in seq order, so it
// can be fed to trace.BuildTree or any other sink. Values are the plain Go
// form of the stored snapshots and errors carry only their text.
func (s *Store) ReplayRun(ctx context.Context, runID string) ([]trace.Event, error) {
	records, err := s.ReadEvents(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("replay run %q: %w", runID, err)
	}

	events := make([]trace.Event, len(records))
	for i, rec := range records {
		events[i] = rec.Event()
	}
	return events, nil
}

// Event converts the record back to a trace.Event.
func (rec EventRecord) Event() trace.Event {
	ev := trace.Event{
		Type:          rec.Type,
		Seq:           rec.Seq,
		ID:            rec.ID,
		ChainID:       rec.ChainID,
		ParentChainID: rec.ParentChainID,
		ParentCallID:  rec.ParentCallID,
		Depth:         rec.Depth,
		Method:        rec.Method,
		DeclaredArgs:  goArgs(rec.DeclaredArgs),
		Result:        ir.ToGo(rec.Result),
		Duration:      rec.Duration,
	}
	if rec.Args != nil {
		ev.Args = goArgs(rec.Args)
	}
	if rec.Error != "" {
		ev.Err = errors.New(rec.Error)
	}
	return ev
}

func goArgs(arr ir.IRArray) []any {
	if len(arr) == 0 {
		return nil
	}
	out := make([]any, len(arr))
	for i, v := range arr {
		out[i] = ir.ToGo(v)
	}
	return out
}

// RunState summarizes a stored run for inspection and recovery.
type RunState struct {
	Run        Run
	LastSeq    int64
	Chains     int // chain.start events
	Calls      int // call.start events
	Skipped    int // call.skipped events
	Failed     int // call.end events carrying an error
	MaxDepth   int
	OpenChains int // chains started but never ended
	OpenCalls  int // calls started but never ended
	IsComplete bool
}

// GetRunState reads a run and analyses its events.
// A run is complete when it has an outcome and every chain and call it
// started also ended.
func (s *Store) GetRunState(ctx context.Context, runID string) (RunState, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}
	records, err := s.ReadEvents(ctx, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}

	state := RunState{Run: run}
	openChains := make(map[string]bool)
	openCalls := make(map[string]bool)
	for _, rec := range records {
		if rec.Seq > state.LastSeq {
			state.LastSeq = rec.Seq
		}
		if rec.Depth > state.MaxDepth {
			state.MaxDepth = rec.Depth
		}
		switch rec.Type {
		case trace.EventChainStart:
			state.Chains++
			openChains[rec.ChainID] = true
		case trace.EventChainEnd:
			delete(openChains, rec.ChainID)
		case trace.EventCallStart:
			state.Calls++
			openCalls[rec.ID] = true
		case trace.EventCallEnd:
			delete(openCalls, rec.ID)
			if rec.Error != "" {
				state.Failed++
			}
		case trace.EventCallSkipped:
			state.Skipped++
		}
	}
	state.OpenChains = len(openChains)
	state.OpenCalls = len(openCalls)
	state.IsComplete = run.Status != RunRunning && state.OpenChains == 0 && state.OpenCalls == 0
	return state, nil
}
