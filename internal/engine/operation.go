package engine

import (
	"fmt"
	"reflect"
)

// Done is the completion callback handed to every operation. It must be
// called exactly once; later calls are ignored and logged.
type Done func(err error, result any)

// Func is the body of a registered operation. The Context is the receiver
// for the call, args are the validated arguments (a child *Chain first for
// block-closing calls), and done reports the outcome.
type Func func(c *Context, args []any, done Done)

// Runtime type names understood by Param.Type and PreviousSpec.Type.
const (
	TypeNil      = "nil"
	TypeString   = "string"
	TypeNumber   = "number"
	TypeBoolean  = "boolean"
	TypeFunction = "function"
	TypeArray    = "array"
	TypeObject   = "object"
)

var knownTypes = map[string]bool{
	TypeNil:      true,
	TypeString:   true,
	TypeNumber:   true,
	TypeBoolean:  true,
	TypeFunction: true,
	TypeArray:    true,
	TypeObject:   true,
}

// KnownType reports whether name is one of the Type* names.
func KnownType(name string) bool {
	return knownTypes[name]
}

// Param declares one positional parameter of an operation.
type Param struct {
	Name string

	// Required makes a missing (absent or nil) argument a validation error.
	Required bool

	// Default substitutes for a missing optional argument.
	Default any

	// DefaultToPrevious substitutes the previous result instead of Default.
	DefaultToPrevious bool

	// Type is one of the Type* names; empty means any.
	Type string

	// InstanceOf requires the value's dynamic type to be assignable to it.
	InstanceOf reflect.Type
}

// PreviousSpec constrains the previous result seen by an operation.
type PreviousSpec struct {
	Type       string
	InstanceOf reflect.Type
}

// Operation is a registered, tagged operation.
//
// Params == nil disables argument validation; an empty non-nil slice
// declares an operation that takes no arguments.
type Operation struct {
	Name string
	Fn   Func

	// BeginBlock opens a nested block with this marker name.
	BeginBlock string
	// EndBlock closes the innermost block, which must carry this marker name.
	EndBlock string

	Params   []Param
	Previous *PreviousSpec

	// Intercept marks an operation that still runs while the chain is
	// erroring (tap, end, recover, transform).
	Intercept bool
}

func (op *Operation) validates() bool {
	return op.Params != nil || op.Previous != nil
}

func (op *Operation) check() error {
	if op.Name == "" {
		return structural(ErrCodeInvalidSpec, "", "operation name must not be empty")
	}
	if op.Fn == nil {
		return structural(ErrCodeInvalidSpec, op.Name, "operation function must not be nil")
	}
	if op.BeginBlock != "" && op.EndBlock != "" {
		return structural(ErrCodeInvalidSpec, op.Name, "operation cannot both open and close a block")
	}
	for i, p := range op.Params {
		if p.Type != "" && !knownTypes[p.Type] {
			return structural(ErrCodeInvalidSpec, op.Name, "param %d: unknown type %q", i, p.Type)
		}
		if p.Required && (p.Default != nil || p.DefaultToPrevious) {
			return structural(ErrCodeInvalidSpec, op.Name, "param %d: a required param cannot declare a default", i)
		}
	}
	if op.Previous != nil && op.Previous.Type != "" && !knownTypes[op.Previous.Type] {
		return structural(ErrCodeInvalidSpec, op.Name, "previous: unknown type %q", op.Previous.Type)
	}
	return nil
}

func (op *Operation) clone() *Operation {
	cp := *op
	if op.Params != nil {
		cp.Params = make([]Param, len(op.Params))
		copy(cp.Params, op.Params)
	}
	if op.Previous != nil {
		prev := *op.Previous
		cp.Previous = &prev
	}
	return &cp
}

// String describes the operation for logs.
func (op *Operation) String() string {
	switch {
	case op.BeginBlock != "":
		return fmt.Sprintf("%s(begin %s)", op.Name, op.BeginBlock)
	case op.EndBlock != "":
		return fmt.Sprintf("%s(end %s)", op.Name, op.EndBlock)
	}
	return op.Name
}
