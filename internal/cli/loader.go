package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/callchain/internal/compiler"
	"github.com/roach88/callchain/internal/engine"
	"github.com/roach88/callchain/internal/ops"
)

// LoadResult contains the manifests loaded from a directory.
type LoadResult struct {
	Manifests []compiler.Manifest
	FileCount int // Number of CUE files found
}

// LoadError represents an error that occurred during manifest loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadManifestDir loads and compiles the CUE operation manifests in dir.
// Every failure is returned as a *LoadError carrying one of the ErrCode
// constants.
func LoadManifestDir(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing manifest directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := compiler.FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	manifests, err := compiler.LoadManifests(dir)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return &LoadResult{Manifests: manifests, FileCount: len(cueFiles)}, nil
}

// newRegistry builds the ops library registry, optionally applying the
// manifests in manifestDir on top.
func newRegistry(manifestDir string, opts ...engine.Option) (*engine.Registry, error) {
	reg, err := ops.NewRegistry(opts...)
	if err != nil {
		return nil, err
	}
	if manifestDir == "" {
		return reg, nil
	}
	loaded, err := LoadManifestDir(manifestDir)
	if err != nil {
		return nil, err
	}
	if err := compiler.Apply(reg, loaded.Manifests...); err != nil {
		return nil, err
	}
	return reg, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeLoadFailed,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	ErrCodeNoOperations = "E008" // Manifest without an operations struct
	ErrCodeInvalidArgs  = "E009" // Malformed --args or --input JSON
	ErrCodeRunFailed    = "E010" // Chain finished with an error
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "operations":
		return ErrCodeNoOperations
	case field == "cue":
		return ErrCodeBuildFailed
	case field == "type", strings.HasSuffix(field, ".type"):
		return compiler.ErrUnknownType
	case strings.HasSuffix(field, ".default"):
		return compiler.ErrDefaultTypeMismatch
	default:
		return ErrCodeGeneric
	}
}
