package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/callchain/internal/harness"
	"github.com/roach88/callchain/internal/store"
	"github.com/roach88/callchain/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	List     bool
	Method   string   // optional - filter the timeline to one method
	Types    []string // optional - filter the timeline to these event types
	Name     string   // optional - filter the listing to one run name
	Statuses []string // optional - filter the listing by run status
}

// RunSummary is one line of the run listing.
type RunSummary struct {
	ID     string `json:"id"`
	Seq    int64  `json:"seq"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID    string               `json:"run_id"`
	Name     string               `json:"name,omitempty"`
	Status   string               `json:"status"`
	Timeline []harness.TraceEvent `json:"timeline"`
	Tree     string               `json:"tree"`
	Stats    TraceStats           `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int  `json:"total_events"`
	Chains      int  `json:"chains"`
	Calls       int  `json:"calls"`
	Skipped     int  `json:"skipped"`
	Failed      int  `json:"failed"`
	MaxDepth    int  `json:"max_depth"`
	IsComplete  bool `json:"is_complete"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the recorded trace of a run",
		Long: `Show the recorded trace of a stored run.

The output includes:
- Timeline: every event in logical-clock order
- Tree: chains and calls nested under the call that spawned them, with timings
- Stats: summary counts for the run

--method and --type narrow the timeline; the tree and stats always cover
the whole run. --name and --status narrow the run listing.

Examples:
  callchain trace --db ./runs.db --list
  callchain trace --db ./runs.db --list --status error --name shout
  callchain trace --db ./runs.db --run 0190a1b2-...
  callchain trace --db ./runs.db --run 0190a1b2-... --method upper
  callchain trace --db ./runs.db --run 0190a1b2-... --type call.skipped
  callchain trace --db ./runs.db --run 0190a1b2-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.List == (opts.RunID != "") {
				return NewExitError(ExitCommandError, "exactly one of --run or --list is required")
			}
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to trace")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list stored runs")
	cmd.Flags().StringVar(&opts.Method, "method", "", "filter the timeline to one method")
	cmd.Flags().StringSliceVar(&opts.Types, "type", nil, "filter the timeline to these event types")
	cmd.Flags().StringVar(&opts.Name, "name", "", "list only runs with this name")
	cmd.Flags().StringSliceVar(&opts.Statuses, "status", nil, "list only runs with these statuses (running, ok, error)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.List {
		return listRuns(opts, st, cmd)
	}

	state, err := st.GetRunState(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to get run state", err)
	}
	events, err := st.ReplayRun(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay run", err)
	}

	filter, err := eventFilter(opts)
	if err != nil {
		return err
	}
	records, err := st.QueryEvents(ctx, opts.RunID, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query events", err)
	}

	var tree strings.Builder
	if err := trace.Render(&tree, trace.BuildTree(events)); err != nil {
		return WrapExitError(ExitCommandError, "failed to render tree", err)
	}

	result := TraceResult{
		RunID:    opts.RunID,
		Name:     state.Run.Name,
		Status:   string(state.Run.Status),
		Timeline: buildTimeline(records),
		Tree:     tree.String(),
		Stats: TraceStats{
			TotalEvents: len(events),
			Chains:      state.Chains,
			Calls:       state.Calls,
			Skipped:     state.Skipped,
			Failed:      state.Failed,
			MaxDepth:    state.MaxDepth,
			IsComplete:  state.IsComplete,
		},
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

func listRuns(opts *TraceOptions, st *store.Store, cmd *cobra.Command) error {
	filter := store.RunFilter{Name: opts.Name}
	for _, status := range opts.Statuses {
		switch rs := store.RunStatus(status); rs {
		case store.RunRunning, store.RunOK, store.RunError:
			filter.Statuses = append(filter.Statuses, rs)
		default:
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown run status %q", status))
		}
	}

	runs, err := st.QueryRuns(cmd.Context(), filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		summaries = append(summaries, RunSummary{
			ID:     r.ID,
			Seq:    r.Seq,
			Name:   r.Name,
			Status: string(r.Status),
			Error:  r.Error,
		})
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, summaries)
	}

	w := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(w, "  %3d  %s  %-7s %s\n", s.Seq, s.ID, s.Status, s.Name)
	}
	return nil
}

// eventFilter builds the timeline filter from the command flags.
func eventFilter(opts *TraceOptions) (store.EventFilter, error) {
	filter := store.EventFilter{Method: opts.Method}
	for _, typ := range opts.Types {
		et := trace.EventType(typ)
		if !et.Valid() {
			return store.EventFilter{}, NewExitError(ExitCommandError, fmt.Sprintf("unknown event type %q", typ))
		}
		filter.Types = append(filter.Types, et)
	}
	return filter, nil
}

// buildTimeline converts stored events to timeline entries.
func buildTimeline(records []store.EventRecord) []harness.TraceEvent {
	timeline := make([]harness.TraceEvent, 0, len(records))
	for _, rec := range records {
		timeline = append(timeline, harness.NewTraceEvent(rec.Event()))
	}
	return timeline
}

// outputTraceJSON outputs data as an indented CLI response.
func outputTraceJSON(cmd *cobra.Command, data any) error {
	response := CLIResponse{
		Status: "ok",
		Data:   data,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for Run: %s\n", result.RunID)
	if result.Name != "" {
		fmt.Fprintf(w, "Name: %s\n", result.Name)
	}
	fmt.Fprintf(w, "Status: %s (%s)\n", result.Status, completeStatus(result.Stats.IsComplete))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, event := range result.Timeline {
			formatTimelineEvent(w, event, verbose)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Tree ===")
	fmt.Fprint(w, result.Tree)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Chains:       %d\n", result.Stats.Chains)
	fmt.Fprintf(w, "  Calls:        %d\n", result.Stats.Calls)
	fmt.Fprintf(w, "  Skipped:      %d\n", result.Stats.Skipped)
	fmt.Fprintf(w, "  Failed:       %d\n", result.Stats.Failed)
	fmt.Fprintf(w, "  Max Depth:    %d\n", result.Stats.MaxDepth)

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event harness.TraceEvent, verbose bool) {
	indent := strings.Repeat("  ", event.Depth)
	switch {
	case event.Method == "":
		fmt.Fprintf(w, "  [%d] %s%s", event.Seq, indent, event.Type)
	default:
		fmt.Fprintf(w, "  [%d] %s%s %s", event.Seq, indent, event.Type, event.Method)
	}
	if event.Error != "" {
		fmt.Fprintf(w, " error=%q", event.Error)
	}
	fmt.Fprintln(w)

	if !verbose {
		return
	}
	if event.Args != nil {
		fmt.Fprintf(w, "       %sArgs: %s\n", indent, formatValue(event.Args))
	}
	fmt.Fprintf(w, "       %sResult: %s\n", indent, formatValue(event.Result))
}

// formatValue renders a snapshotted value as compact JSON.
func formatValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// completeStatus returns a human-readable completion status.
func completeStatus(isComplete bool) string {
	if isComplete {
		return "complete"
	}
	return "incomplete"
}
