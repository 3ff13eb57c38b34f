package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/roach88/callchain/internal/ir"
	"github.com/roach88/callchain/internal/store"
	"github.com/roach88/callchain/internal/trace"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - specific run only
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID         string `json:"run_id"`
	Name          string `json:"name,omitempty"`
	Status        string `json:"status"`
	Events        int    `json:"events"`
	Calls         int    `json:"calls"`
	Skipped       int    `json:"skipped"`
	IsComplete    bool   `json:"is_complete"`
	Deterministic bool   `json:"deterministic"`
	Consistent    bool   `json:"consistent"`
	Problem       string `json:"problem,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs      []ReplayRunResult `json:"runs"`
	TotalRuns int               `json:"total_runs"`
	AllValid  bool              `json:"all_valid"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay stored runs and verify them",
		Long: `Replay the event log of stored runs and verify it.

Each run is read twice and the two replays must be identical. The root
chain's final event must then agree with the outcome recorded for the run.
Runs still marked running are reported as incomplete.

Exit codes:
  0 - All runs verified
  1 - Verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  callchain replay --db ./runs.db
  callchain replay --db ./runs.db --run 0190a1b2-...
  callchain replay --db ./runs.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay specific run only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var runIDs []string
	if opts.RunID != "" {
		runIDs = []string{opts.RunID}
	} else {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		for _, r := range runs {
			runIDs = append(runIDs, r.ID)
		}
	}

	result := ReplayResult{
		Runs:      make([]ReplayRunResult, 0, len(runIDs)),
		TotalRuns: len(runIDs),
		AllValid:  true,
	}

	if len(runIDs) == 0 {
		if opts.Format == "json" {
			return outputReplayJSON(cmd, result)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No runs found in database.")
		return nil
	}

	for _, id := range runIDs {
		runResult, err := replayAndVerifyRun(ctx, st, id)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", id), err)
		}
		opts.Logger().Debug("replayed run",
			"run_id", id,
			"events", runResult.Events,
			"deterministic", runResult.Deterministic,
			"consistent", runResult.Consistent)

		result.Runs = append(result.Runs, runResult)
		if !runResult.Deterministic || !runResult.Consistent {
			result.AllValid = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// replayAndVerifyRun replays a single run twice and checks it against its
// recorded outcome.
func replayAndVerifyRun(ctx context.Context, st *store.Store, runID string) (ReplayRunResult, error) {
	state, err := st.GetRunState(ctx, runID)
	if err != nil {
		return ReplayRunResult{}, err
	}

	events1, err := st.ReplayRun(ctx, runID)
	if err != nil {
		return ReplayRunResult{}, fmt.Errorf("first replay failed: %w", err)
	}
	events2, err := st.ReplayRun(ctx, runID)
	if err != nil {
		return ReplayRunResult{}, fmt.Errorf("second replay failed: %w", err)
	}

	res := ReplayRunResult{
		RunID:         runID,
		Name:          state.Run.Name,
		Status:        string(state.Run.Status),
		Events:        len(events1),
		Calls:         state.Calls,
		Skipped:       state.Skipped,
		IsComplete:    state.IsComplete,
		Deterministic: true,
		Consistent:    true,
	}
	if diff := diffEvents(events1, events2); diff != "" {
		res.Deterministic = false
		res.Problem = "replay differs between reads (-first +second):\n" + diff
	}
	if problem := checkOutcome(state.Run, events1); problem != "" {
		res.Consistent = false
		if res.Problem == "" {
			res.Problem = problem
		}
	}
	return res, nil
}

// errorText compares replayed errors by message; replay rebuilds them from
// stored text so identity never matches.
var errorText = cmp.Comparer(func(a, b error) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Error() == b.Error()
})

// diffEvents returns a readable diff of two replays, or "" when they match.
func diffEvents(a, b []trace.Event) string {
	return cmp.Diff(a, b, errorText)
}

// checkOutcome compares the root chain's final event with the outcome
// stored on the run. Runs that never finished are not checked.
func checkOutcome(run store.Run, events []trace.Event) string {
	if run.Status == store.RunRunning {
		return ""
	}

	var last *trace.Event
	for i := range events {
		ev := &events[i]
		if ev.Type == trace.EventChainEnd && ev.Depth == 0 && ev.ParentChainID == "" {
			last = ev
		}
	}
	if last == nil {
		return "no root chain.end event"
	}

	if got := last.ErrorText(); got != run.Error {
		return fmt.Sprintf("error mismatch: trace %q, run %q", got, run.Error)
	}
	if run.Error != "" {
		return ""
	}

	traced, err := ir.MarshalCanonical(ir.Snapshot(last.Result))
	if err != nil {
		return err.Error()
	}
	stored, err := ir.MarshalCanonical(run.Result)
	if err != nil {
		return err.Error()
	}
	if !bytes.Equal(traced, stored) {
		return fmt.Sprintf("result mismatch: trace %s, run %s", traced, stored)
	}
	return ""
}

// openExistingStore opens a database that must already exist.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllValid {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_REPLAY",
			Message: "replay verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.AllValid {
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", result.TotalRuns)
	fmt.Fprintln(w)

	for _, run := range result.Runs {
		status := "✓"
		if !run.Deterministic || !run.Consistent {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Run: %s", status, run.RunID)
		if run.Name != "" {
			fmt.Fprintf(w, " (%s)", run.Name)
		}
		fmt.Fprintln(w)

		if verbose {
			fmt.Fprintf(w, "  Status: %s\n", run.Status)
			fmt.Fprintf(w, "  Events: %d\n", run.Events)
			fmt.Fprintf(w, "  Calls: %d\n", run.Calls)
			fmt.Fprintf(w, "  Skipped: %d\n", run.Skipped)
			fmt.Fprintf(w, "  Complete: %v\n", run.IsComplete)
		} else {
			fmt.Fprintf(w, "  Events: %d, %d calls, %d skipped\n", run.Events, run.Calls, run.Skipped)
		}

		if !run.Deterministic {
			fmt.Fprintln(w, "  Warning: Non-deterministic replay detected!")
		}
		if run.Problem != "" {
			fmt.Fprintf(w, "  Warning: %s\n", run.Problem)
		}
		fmt.Fprintln(w)
	}

	if result.AllValid {
		fmt.Fprintln(w, "✓ All runs verified")
		return nil
	}

	fmt.Fprintln(w, "✗ Replay verification failed")
	return NewExitError(ExitFailure, "replay verification failed")
}
