package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/callchain/internal/engine"
)

// Manifest is the compiled form of one CUE operations document.
type Manifest struct {
	Source     string
	Operations []OperationSpec
}

// OperationSpec is the declared metadata of one operation.
type OperationSpec struct {
	Name string

	// Intercept is nil when the manifest leaves the flag unset.
	Intercept *bool

	BeginBlock string
	EndBlock   string

	Previous *PreviousSpec

	// Params is nil when the manifest declares no params field at all,
	// which leaves argument validation off.
	Params []ParamSpec

	Pos token.Pos
}

// PreviousSpec constrains the previous result by runtime type name.
type PreviousSpec struct {
	Type string
}

// ParamSpec declares one positional parameter.
type ParamSpec struct {
	Name              string
	Type              string
	Required          bool
	Default           any
	DefaultToPrevious bool
	Pos               token.Pos
}

// CompileString compiles CUE source text. filename is only used for
// error positions.
//
//	m, err := CompileString("ops.cue", `operations: suffix: params: [{name: "s", type: string, required: true}]`)
func CompileString(filename, src string) (*Manifest, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	m, err := CompileManifest(v)
	if err != nil {
		return nil, err
	}
	m.Source = filename
	return m, nil
}

// CompileManifest parses a CUE value holding an operations struct.
// Uses CUE SDK's Go API directly (not CLI subprocess).
func CompileManifest(v cue.Value) (*Manifest, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &Manifest{}
	opsVal := v.LookupPath(cue.ParsePath("operations"))
	if !opsVal.Exists() {
		return nil, &CompileError{
			Field:   "operations",
			Message: "operations is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := opsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		spec, err := compileOperation(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		m.Operations = append(m.Operations, spec)
	}
	return m, nil
}

func compileOperation(name string, v cue.Value) (OperationSpec, error) {
	spec := OperationSpec{Name: name, Pos: v.Pos()}
	field := "operations." + name

	if iv := v.LookupPath(cue.ParsePath("intercept")); iv.Exists() {
		b, err := iv.Bool()
		if err != nil {
			return spec, formatCUEError(err)
		}
		spec.Intercept = &b
	}

	var err error
	if spec.BeginBlock, err = optionalString(v, "begin"); err != nil {
		return spec, err
	}
	if spec.EndBlock, err = optionalString(v, "end"); err != nil {
		return spec, err
	}

	if pv := v.LookupPath(cue.ParsePath("previous")); pv.Exists() {
		tv := pv.LookupPath(cue.ParsePath("type"))
		if !tv.Exists() {
			return spec, &CompileError{
				Field:   field + ".previous.type",
				Message: "previous needs a type",
				Pos:     pv.Pos(),
			}
		}
		typ, err := extractTypeName(tv)
		if err != nil {
			return spec, err
		}
		spec.Previous = &PreviousSpec{Type: typ}
	}

	pv := v.LookupPath(cue.ParsePath("params"))
	if !pv.Exists() {
		return spec, nil
	}
	list, err := pv.List()
	if err != nil {
		return spec, formatCUEError(err)
	}
	spec.Params = []ParamSpec{}
	for i := 0; list.Next(); i++ {
		p, err := compileParam(fmt.Sprintf("%s.params[%d]", field, i), list.Value())
		if err != nil {
			return spec, err
		}
		spec.Params = append(spec.Params, p)
	}
	return spec, nil
}

func compileParam(field string, v cue.Value) (ParamSpec, error) {
	p := ParamSpec{Pos: v.Pos()}

	var err error
	if p.Name, err = optionalString(v, "name"); err != nil {
		return p, err
	}
	if tv := v.LookupPath(cue.ParsePath("type")); tv.Exists() {
		if p.Type, err = extractTypeName(tv); err != nil {
			return p, err
		}
	}
	if rv := v.LookupPath(cue.ParsePath("required")); rv.Exists() {
		if p.Required, err = rv.Bool(); err != nil {
			return p, formatCUEError(err)
		}
	}
	if dv := v.LookupPath(cue.ParsePath("defaultToPrevious")); dv.Exists() {
		if p.DefaultToPrevious, err = dv.Bool(); err != nil {
			return p, formatCUEError(err)
		}
	}
	if dv := v.LookupPath(cue.ParsePath("default")); dv.Exists() {
		if p.Default, err = decodeValue(field+".default", dv); err != nil {
			return p, err
		}
	}
	return p, nil
}

func optionalString(v cue.Value, name string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(name))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// extractTypeName converts a CUE type or a concrete type name to a runtime
// type name. Both `type: int` and `type: "number"` are accepted.
func extractTypeName(v cue.Value) (string, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		name, err := v.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		if name != "" && name != "any" && !engine.KnownType(name) {
			return "", &CompileError{
				Field:   "type",
				Message: fmt.Sprintf("unknown type name %q", name),
				Pos:     v.Pos(),
			}
		}
		if name == "any" {
			return "", nil
		}
		return name, nil
	}

	switch v.IncompleteKind() {
	case cue.TopKind:
		return "", nil
	case cue.NullKind:
		return engine.TypeNil, nil
	case cue.StringKind:
		return engine.TypeString, nil
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		return engine.TypeNumber, nil
	case cue.BoolKind:
		return engine.TypeBoolean, nil
	case cue.ListKind:
		return engine.TypeArray, nil
	case cue.StructKind:
		return engine.TypeObject, nil
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// decodeValue turns a concrete CUE value into plain Go data. Integers
// decode to int, other numbers to float64.
func decodeValue(field string, v cue.Value) (any, error) {
	if !v.IsConcrete() {
		return nil, &CompileError{
			Field:   field,
			Message: "value must be concrete",
			Pos:     v.Pos(),
		}
	}

	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return b, nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return int(n), nil
	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return f, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return s, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := []any{}
		for i := 0; iter.Next(); i++ {
			elem, err := decodeValue(fmt.Sprintf("%s[%d]", field, i), iter.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := map[string]any{}
		for iter.Next() {
			key := iter.Selector().Unquoted()
			elem, err := decodeValue(field+"."+key, iter.Value())
			if err != nil {
				return nil, err
			}
			out[key] = elem
		}
		return out, nil
	}
	return nil, &CompileError{
		Field:   field,
		Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
		Pos:     v.Pos(),
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
