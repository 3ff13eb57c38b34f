package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/callchain/internal/harness"
	"github.com/roach88/callchain/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string // optional - persist the run instead of using memory
	Timeout  time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario chain",
		Long: `Run the chain described by a YAML scenario file.

The scenario's steps are queued on a fresh chain and executed with the
scenario's initial value. Expectations and assertions in the file are
checked afterwards. With --db the run and its full trace are stored so
they can be inspected with trace and verified with replay.

Exit codes:
  0 - Chain ran and the scenario passed
  1 - Scenario failed
  2 - Command error (scenario not found, database error, etc.)

Example:
  callchain run ./scenarios/upper.yaml
  callchain run --db ./runs.db ./scenarios/upper.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", harness.DefaultTimeout, "maximum chain run time")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	logger := opts.Logger()

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	runOpts := []harness.Option{
		harness.WithLogger(logger),
		harness.WithTimeout(opts.Timeout),
	}
	if opts.Database != "" {
		logger.Debug("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		runOpts = append(runOpts, harness.WithStore(st))
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := harness.Run(ctx, scenario, runOpts...)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return WrapExitError(ExitFailure, "run interrupted", err)
		}
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	logger.Debug("scenario run", "scenario", scenario.Name, "run_id", result.RunID, "pass", result.Pass)

	if opts.Format == "json" {
		return outputRunJSON(cmd, result)
	}
	return outputRunText(cmd, scenario.Name, result, opts.Verbose)
}

// outputRunJSON outputs the run result as JSON.
func outputRunJSON(cmd *cobra.Command, result *harness.Result) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
		RunID:  result.RunID,
	}
	if !result.Pass {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeRunFailed,
			Message: "scenario failed",
			Details: result.Errors,
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.Pass {
		return NewExitError(ExitFailure, "scenario failed")
	}
	return nil
}

// outputRunText outputs the run result as text.
func outputRunText(cmd *cobra.Command, name string, result *harness.Result, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Run: %s\n", result.RunID)
	fmt.Fprintf(w, "Scenario: %s\n", name)
	if result.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", result.Error)
	} else {
		fmt.Fprintf(w, "Result: %s\n", formatValue(result.Value))
	}

	if verbose {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Timeline ===")
		for _, ev := range result.Trace {
			formatTimelineEvent(w, ev, true)
		}
	}
	fmt.Fprintln(w)

	if result.Pass {
		fmt.Fprintln(w, "✓ PASS")
		return nil
	}

	fmt.Fprintln(w, "✗ FAIL")
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	return NewExitError(ExitFailure, "scenario failed")
}
