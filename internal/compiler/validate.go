package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/callchain/internal/engine"
)

// Validation error codes (E100-E199)
const (
	ErrUnknownType         = "E101" // type name not understood by the engine
	ErrDuplicateOperation  = "E102" // operation declared twice across manifests
	ErrRequiredWithDefault = "E103" // required param also declares a default
	ErrBlockConflict       = "E104" // operation both opens and closes a block
	ErrParamNameEmpty      = "E105" // param without a name
	ErrDuplicateParam      = "E106" // param name repeated within an operation
	ErrUnknownOperation    = "E107" // manifest names an operation the registry lacks
	ErrDefaultTypeMismatch = "E108" // default value does not match the declared type
	ErrAmbiguousDefault    = "E109" // both default and defaultToPrevious set
)

// ValidationError represents a manifest validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks compiled manifests against the rules the engine enforces
// at registration, plus cross-manifest duplicates. Returns all errors found
// (does not fail-fast).
func Validate(manifests ...Manifest) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]string)

	for _, m := range manifests {
		for _, op := range m.Operations {
			field := "operations." + op.Name
			if prev, ok := seen[op.Name]; ok {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("operation %q already declared in %s", op.Name, prev),
					Code:    ErrDuplicateOperation,
					Line:    lineOf(op.Pos),
				})
			}
			seen[op.Name] = m.Source
			errs = append(errs, validateOperation(field, op)...)
		}
	}
	return errs
}

func validateOperation(field string, op OperationSpec) []ValidationError {
	var errs []ValidationError

	if op.BeginBlock != "" && op.EndBlock != "" {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "operation cannot both open and close a block",
			Code:    ErrBlockConflict,
			Line:    lineOf(op.Pos),
		})
	}
	if op.Previous != nil {
		errs = append(errs, validateType(field+".previous.type", op.Previous.Type, lineOf(op.Pos))...)
	}

	names := make(map[string]bool)
	for i, p := range op.Params {
		pf := fmt.Sprintf("%s.params[%d]", field, i)
		line := lineOf(p.Pos)

		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, ValidationError{
				Field:   pf + ".name",
				Message: "param name is required",
				Code:    ErrParamNameEmpty,
				Line:    line,
			})
		} else if names[p.Name] {
			errs = append(errs, ValidationError{
				Field:   pf + ".name",
				Message: fmt.Sprintf("duplicate param name: %q", p.Name),
				Code:    ErrDuplicateParam,
				Line:    line,
			})
		}
		names[p.Name] = true

		errs = append(errs, validateType(pf+".type", p.Type, line)...)

		if p.Required && (p.Default != nil || p.DefaultToPrevious) {
			errs = append(errs, ValidationError{
				Field:   pf,
				Message: "a required param cannot declare a default",
				Code:    ErrRequiredWithDefault,
				Line:    line,
			})
		}
		if p.Default != nil && p.DefaultToPrevious {
			errs = append(errs, ValidationError{
				Field:   pf,
				Message: "default and defaultToPrevious are mutually exclusive",
				Code:    ErrAmbiguousDefault,
				Line:    line,
			})
		}
		if p.Default != nil && p.Type != "" && engine.TypeOf(p.Default) != p.Type {
			errs = append(errs, ValidationError{
				Field:   pf + ".default",
				Message: fmt.Sprintf("default %v is %s, param type is %s", p.Default, engine.TypeOf(p.Default), p.Type),
				Code:    ErrDefaultTypeMismatch,
				Line:    line,
			})
		}
	}
	return errs
}

func validateType(field, typ string, line int) []ValidationError {
	if typ == "" || engine.KnownType(typ) {
		return nil
	}
	return []ValidationError{{
		Field:   field,
		Message: fmt.Sprintf("unknown type %q", typ),
		Code:    ErrUnknownType,
		Line:    line,
	}}
}

func lineOf(pos token.Pos) int {
	if !pos.IsValid() {
		return 0
	}
	return pos.Line()
}
