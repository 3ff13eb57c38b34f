package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/callchain/internal/engine"
	"github.com/roach88/callchain/internal/ir"
	"github.com/roach88/callchain/internal/trace"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Args      string
	Input     string
	Manifests string
}

// InvokeResult is the outcome of a single-call chain.
type InvokeResult struct {
	Method string `json:"method"`
	Args   []any  `json:"args"`
	Result any    `json:"result"`
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <method>",
		Short: "Invoke one operation",
		Long: `Invoke one registered operation on a chain of its own.

--args is a JSON array of positional arguments and --input the JSON value
passed as the previous result. With --verbose every trace event is logged
to stderr.

Example:
  callchain invoke upper --input '"hello"'
  callchain invoke append --args '["!"]' --input '"hi"'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeMethod(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "[]", "call arguments as a JSON array")
	cmd.Flags().StringVar(&opts.Input, "input", "null", "initial value as JSON")
	cmd.Flags().StringVar(&opts.Manifests, "manifests", "", "directory of CUE operation manifests")

	return cmd
}

func invokeMethod(opts *InvokeOptions, method string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var args []any
	if err := json.Unmarshal([]byte(opts.Args), &args); err != nil {
		_ = formatter.Error(ErrCodeInvalidArgs, fmt.Sprintf("invalid --args JSON: %v", err), nil)
		return WrapExitError(ExitCommandError, "invalid --args JSON", err)
	}
	var input any
	if err := json.Unmarshal([]byte(opts.Input), &input); err != nil {
		_ = formatter.Error(ErrCodeInvalidArgs, fmt.Sprintf("invalid --input JSON: %v", err), nil)
		return WrapExitError(ExitCommandError, "invalid --input JSON", err)
	}

	logger := opts.Logger()
	var sinks []trace.Sink
	if opts.Verbose {
		sinks = append(sinks, trace.NewLogSink(logger, slog.LevelDebug))
	}
	tracer := trace.New(trace.WithSinks(sinks...))

	reg, err := newRegistry(opts.Manifests, engine.WithTracer(tracer), engine.WithLogger(logger))
	if err != nil {
		code, message := parseCompileError(err)
		return outputCompileError(formatter, code, message)
	}

	chain := reg.Chain()
	if err := chain.Add(method, args...); err != nil {
		code, message := parseCompileError(err)
		_ = formatter.Error(code, message, nil)
		return WrapExitError(ExitCommandError, "invalid call", err)
	}

	value, err := chain.Wait(cmd.Context(), input)
	if err != nil {
		_ = formatter.Error(ErrCodeRunFailed, err.Error(), nil)
		return WrapExitError(ExitFailure, "chain failed", err)
	}

	result := InvokeResult{
		Method: method,
		Args:   args,
		Result: ir.ToGo(ir.Snapshot(value)),
	}
	if result.Args == nil {
		result.Args = []any{}
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintln(formatter.Writer, formatValue(result.Result))
	return nil
}
