package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/callchain/internal/compiler"
	"github.com/roach88/callchain/internal/engine"
	"github.com/roach88/callchain/internal/ir"
	"github.com/roach88/callchain/internal/ops"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// OperationInfo is the resolved metadata of one registered operation.
type OperationInfo struct {
	Name       string      `json:"name"`
	Signature  string      `json:"signature"`
	Intercept  bool        `json:"intercept,omitempty"`
	BeginBlock string      `json:"begin_block,omitempty"`
	EndBlock   string      `json:"end_block,omitempty"`
	Previous   string      `json:"previous,omitempty"`
	Params     []ParamInfo `json:"params"`
	Validates  bool        `json:"validates"`
}

// ParamInfo is the resolved metadata of one parameter.
type ParamInfo struct {
	Name              string `json:"name"`
	Type              string `json:"type,omitempty"`
	Required          bool   `json:"required,omitempty"`
	Default           any    `json:"default,omitempty"`
	DefaultToPrevious bool   `json:"default_to_previous,omitempty"`
}

// CompilationResult holds the operation table after manifests are applied.
type CompilationResult struct {
	Operations []OperationInfo `json:"operations"`
	Hash       string          `json:"hash"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [manifest-dir]",
		Short: "Resolve the operation table",
		Long: `Apply CUE operation manifests to the built-in operations and print the
resulting operation table.

Without a directory the built-in table is printed as is. The hash
identifies the table content and changes whenever a parameter, type or
flag changes.

Examples:
  callchain compile
  callchain compile ./manifests -o ops.json
  callchain compile ./manifests --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runCompile(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	reg, err := newRegistry(dir, engine.WithLogger(opts.Logger()))
	if err != nil {
		code, message := parseCompileError(err)
		return outputCompileError(formatter, code, message)
	}

	result, err := compileTable(reg)
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, err.Error())
	}
	for _, op := range result.Operations {
		formatter.VerboseLog("Resolved %s", op.Signature)
	}

	if opts.Output != "" {
		if err := writeTableToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// compileTable describes every registered operation, sorted by name.
func compileTable(reg *engine.Registry) (*CompilationResult, error) {
	result := &CompilationResult{Operations: []OperationInfo{}}
	for _, name := range reg.Names() {
		op, _ := reg.Lookup(name)
		info := OperationInfo{
			Name:       op.Name,
			Signature:  ops.Describe(op),
			Intercept:  op.Intercept,
			BeginBlock: op.BeginBlock,
			EndBlock:   op.EndBlock,
			Params:     []ParamInfo{},
			Validates:  op.Params != nil || op.Previous != nil,
		}
		if op.Previous != nil {
			info.Previous = op.Previous.Type
		}
		for _, p := range op.Params {
			info.Params = append(info.Params, ParamInfo{
				Name:              p.Name,
				Type:              p.Type,
				Required:          p.Required,
				Default:           p.Default,
				DefaultToPrevious: p.DefaultToPrevious,
			})
		}
		result.Operations = append(result.Operations, info)
	}

	hash, err := ir.ValueHash(ir.Snapshot(result.Operations))
	if err != nil {
		return nil, fmt.Errorf("hashing operation table: %w", err)
	}
	result.Hash = hash
	return result, nil
}

// outputCompileSuccess outputs the resolved table.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Resolved %d operation(s)\n\n", len(result.Operations))
	for _, op := range result.Operations {
		fmt.Fprintf(formatter.Writer, "  %s\n", op.Signature)
	}
	fmt.Fprintf(formatter.Writer, "\nTable hash: %s\n", result.Hash)

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote operation table to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		if loadErr.Pos.IsValid() {
			return loadErr.Code, fmt.Sprintf("%s:%d: %s", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Message)
		}
		return loadErr.Code, loadErr.Message
	}
	var validationErr compiler.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Code, err.Error()
	}
	var structErr *engine.StructuralError
	if errors.As(err, &structErr) {
		return string(structErr.Code), err.Error()
	}
	return ErrCodeGeneric, err.Error()
}

// writeTableToFile writes the table as indented JSON.
func writeTableToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling table: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
