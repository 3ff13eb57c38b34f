package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/callchain/internal/ir"
	"github.com/roach88/callchain/internal/queryir"
	"github.com/roach88/callchain/internal/trace"
)

func runIDs(runs []Run) []string {
	ids := []string{}
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestQueryRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, r := range []Run{
		{ID: "r1", Name: "shout", DefinitionHash: "h1"},
		{ID: "r2", Name: "whisper", DefinitionHash: "h2"},
		{ID: "r3", Name: "shout", DefinitionHash: "h1"},
		{ID: "r4", Name: "shout", DefinitionHash: "h3"},
	} {
		r.Definition, r.Initial = ir.IRArray{}, ir.IRNull{}
		_, err := s.CreateRun(ctx, r)
		require.NoError(t, err)
	}
	require.NoError(t, s.FinishRun(ctx, "r1", ir.IRString("ok"), ""))
	require.NoError(t, s.FinishRun(ctx, "r2", nil, "boom"))
	require.NoError(t, s.FinishRun(ctx, "r3", nil, "boom"))

	tests := []struct {
		name   string
		filter RunFilter
		want   []string
	}{
		{"all", RunFilter{}, []string{"r1", "r2", "r3", "r4"}},
		{"by_name", RunFilter{Name: "shout"}, []string{"r1", "r3", "r4"}},
		{"by_status", RunFilter{Statuses: []RunStatus{RunError}}, []string{"r2", "r3"}},
		{"several_statuses", RunFilter{Statuses: []RunStatus{RunOK, RunRunning}}, []string{"r1", "r4"}},
		{"name_and_status", RunFilter{Name: "shout", Statuses: []RunStatus{RunError}}, []string{"r3"}},
		{"by_definition", RunFilter{DefinitionHash: "h1"}, []string{"r1", "r3"}},
		{"no_match", RunFilter{Name: "nobody"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := s.QueryRuns(ctx, tt.filter)
			require.NoError(t, err)
			assert.NotNil(t, runs)
			assert.Equal(t, tt.want, runIDs(runs))
		})
	}
}

func TestQueryRuns_ValuesAreParameters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.CreateRun(ctx, createTestRun("r1"))
	require.NoError(t, err)

	runs, err := s.QueryRuns(ctx, RunFilter{Name: "x' OR '1'='1"})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunFilter_Predicate(t *testing.T) {
	assert.Nil(t, RunFilter{}.Predicate())
	assert.Equal(t,
		queryir.Equals{Field: "name", Value: ir.IRString("shout")},
		RunFilter{Name: "shout"}.Predicate())
	assert.Equal(t,
		[]string{"name", "status", "definition_hash"},
		queryir.Fields(RunFilter{Name: "a", Statuses: []RunStatus{RunOK}, DefinitionHash: "h"}.Predicate()))
}

func TestQueryEvents(t *testing.T) {
	s := createTestStore(t)
	live := recordRun(t, s, "run-1")
	recordRun(t, s, "run-2")
	ctx := context.Background()

	match := func(keep func(trace.Event) bool) []int64 {
		seqs := []int64{}
		for _, ev := range live {
			if keep(ev) {
				seqs = append(seqs, ev.Seq)
			}
		}
		return seqs
	}

	tests := []struct {
		name   string
		filter EventFilter
		want   []int64
	}{
		{"all", EventFilter{}, match(func(trace.Event) bool { return true })},
		{"by_method", EventFilter{Method: "upper"}, match(func(ev trace.Event) bool { return ev.Method == "upper" })},
		{"by_type", EventFilter{Types: []trace.EventType{trace.EventChainStart, trace.EventChainEnd}},
			match(func(ev trace.Event) bool {
				return ev.Type == trace.EventChainStart || ev.Type == trace.EventChainEnd
			})},
		{"skipped_upper", EventFilter{Method: "upper", Types: []trace.EventType{trace.EventCallSkipped}},
			match(func(ev trace.Event) bool { return ev.Method == "upper" && ev.Type == trace.EventCallSkipped })},
		{"by_chain", EventFilter{ChainID: live[0].ChainID}, match(func(ev trace.Event) bool { return ev.ChainID == live[0].ChainID })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := s.QueryEvents(ctx, "run-1", tt.filter)
			require.NoError(t, err)
			seqs := []int64{}
			for _, rec := range records {
				assert.Equal(t, "run-1", rec.RunID)
				seqs = append(seqs, rec.Seq)
			}
			assert.Equal(t, tt.want, seqs)
		})
	}
}

func TestQueryEvents_SkippedCallIsStored(t *testing.T) {
	s := createTestStore(t)
	recordRun(t, s, "run-1")

	records, err := s.QueryEvents(context.Background(), "run-1", EventFilter{
		Types: []trace.EventType{trace.EventCallSkipped},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "upper", records[0].Method)
}
