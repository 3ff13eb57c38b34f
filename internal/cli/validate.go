package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/callchain/internal/compiler"
	"github.com/roach88/callchain/internal/ops"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool                       `json:"valid"`
	Operations int                        `json:"operations"`
	Errors     []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest-dir>",
		Short: "Validate operation manifests",
		Long: `Validate CUE operation manifests against the built-in operations.

Checks syntax, parameter types and defaults, and that every manifest entry
names a registered operation. Nothing is written; use compile to see the
resulting operation table.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loaded, err := LoadManifestDir(dir)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			// Field errors from a readable file are validation failures,
			// not command errors.
			if loadErr.Pos.IsValid() {
				return outputValidationErrors(formatter, []compiler.ValidationError{{
					Field:   "load",
					Message: loadErr.Message,
					Code:    loadErr.Code,
					Line:    loadErr.Pos.Line(),
				}})
			}
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)

	validationErrors, count, err := validateManifests(loaded.Manifests, formatter)
	if err != nil {
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	return outputValidateSuccess(formatter, count)
}

// validateManifests checks the manifests against a fresh ops registry and
// returns the errors together with the number of operations declared.
func validateManifests(manifests []compiler.Manifest, formatter *OutputFormatter) ([]compiler.ValidationError, int, error) {
	reg, err := ops.NewRegistry()
	if err != nil {
		return nil, 0, err
	}

	count := 0
	for _, m := range manifests {
		for _, spec := range m.Operations {
			formatter.VerboseLog("Validating operation: %s", spec.Name)
			count++
		}
	}

	errs := compiler.Check(reg, manifests...)
	if count == 0 && len(errs) == 0 {
		errs = append(errs, compiler.ValidationError{
			Field:   "operations",
			Message: "no operations found in manifests",
			Code:    ErrCodeNoOperations,
		})
	}
	return errs, count, nil
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, count int) error {
	if formatter.Format == "json" {
		result := ValidationResult{Valid: true, Operations: count}
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All manifests valid (%d operation(s))\n", count)
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Validation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		result := ValidationResult{
			Valid:  false,
			Errors: errs,
		}

		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// ValidateManifestDir validates all manifests in a directory.
// This is a helper function for external callers.
func ValidateManifestDir(dir string) ([]compiler.ValidationError, error) {
	loaded, err := LoadManifestDir(dir)
	if err != nil {
		return nil, err
	}
	silent := &OutputFormatter{Format: "text"}
	errs, _, err := validateManifests(loaded.Manifests, silent)
	return errs, err
}
