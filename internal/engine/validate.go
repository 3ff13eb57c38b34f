package engine

import (
	"fmt"
	"reflect"
)

// TypeOf returns the runtime type name of v as used in validation messages:
// nil, string, number, boolean, function, array or object.
func TypeOf(v any) string {
	if v == nil {
		return TypeNil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return TypeString
	case reflect.Bool:
		return TypeBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return TypeNumber
	case reflect.Func:
		if rv.IsNil() {
			return TypeNil
		}
		return TypeFunction
	case reflect.Slice, reflect.Array:
		return TypeArray
	case reflect.Pointer, reflect.Map:
		if rv.IsNil() {
			return TypeNil
		}
	}
	return TypeObject
}

// DeriveFunc computes an argument from the previous result. Passing one
// (or a func(any) any) where a non-function value is expected makes the
// validator call it instead of type-checking it.
type DeriveFunc func(c *Context, prev any) (any, error)

func derivable(v any) bool {
	switch v.(type) {
	case DeriveFunc, func(*Context, any) (any, error), func(*Context, any) any,
		func(any) any, func(any) (any, error):
		return true
	}
	return false
}

func derive(c *Context, v any) (any, error) {
	prev := c.PreviousResult()
	switch f := v.(type) {
	case DeriveFunc:
		return f(c, prev)
	case func(*Context, any) (any, error):
		return f(c, prev)
	case func(*Context, any) any:
		return f(c, prev), nil
	case func(any) any:
		return f(prev), nil
	case func(any) (any, error):
		return f(prev)
	}
	return v, nil
}

// expectsValue reports whether a function supplied for p should be called
// to derive the value rather than passed through. Only a param declared as
// a function (by type or by instance) keeps the function itself.
func (p Param) expectsValue() bool {
	if p.Type == TypeFunction {
		return false
	}
	if p.InstanceOf != nil {
		return p.InstanceOf.Kind() != reflect.Func
	}
	return true
}

func isInstance(v any, t reflect.Type) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v).AssignableTo(t)
}

// validateCall checks the previous result and the argument list of one call
// and returns the fully populated argument list.
//
// The order of the checks is observable through the error messages:
// previous result, argument count, then per position: presence and
// defaulting, derivation, type, instance.
func validateCall(c *Context, op *Operation, args []any) ([]any, error) {
	if spec := op.Previous; spec != nil {
		prev := c.PreviousResult()
		if spec.Type != "" && TypeOf(prev) != spec.Type {
			return nil, &ValidationError{
				Method:  op.Name,
				Index:   -1,
				Message: fmt.Sprintf("Expected %q to be %q for: %v", TypeOf(prev), spec.Type, prev),
			}
		}
		if spec.InstanceOf != nil && !isInstance(prev, spec.InstanceOf) {
			return nil, &ValidationError{
				Method:  op.Name,
				Index:   -1,
				Message: fmt.Sprintf("Expected previous result to be an instance of %s", spec.InstanceOf),
			}
		}
	}

	if op.Params == nil {
		return args, nil
	}

	if len(args) > len(op.Params) {
		return nil, &ValidationError{
			Method:  op.Name,
			Index:   -1,
			Message: fmt.Sprintf("Expected %d arguments, but got %d", len(op.Params), len(args)),
		}
	}

	out := make([]any, len(op.Params))
	for i, p := range op.Params {
		var v any
		if i < len(args) {
			v = args[i]
		}
		if v == nil {
			if p.Required {
				return nil, &ValidationError{
					Method:  op.Name,
					Index:   i,
					Message: fmt.Sprintf("Argument %d is required but was not provided.", i),
				}
			}
			if p.DefaultToPrevious {
				v = c.PreviousResult()
			} else {
				v = p.Default
			}
		}

		if p.expectsValue() && derivable(v) {
			derived, err := derive(c, v)
			if err != nil {
				return nil, fmt.Errorf("derive argument %d of %s: %w", i, op.Name, err)
			}
			v = derived
		}

		if p.Type != "" && TypeOf(v) != p.Type {
			return nil, &ValidationError{
				Method:  op.Name,
				Index:   i,
				Message: fmt.Sprintf("Expected %q to be %q for: %v", TypeOf(v), p.Type, v),
			}
		}

		if p.InstanceOf != nil && !isInstance(v, p.InstanceOf) {
			return nil, &ValidationError{
				Method:  op.Name,
				Index:   i,
				Message: fmt.Sprintf("Expected argument %d to be an instance of %s", i, p.InstanceOf),
			}
		}

		out[i] = v
	}
	return out, nil
}
