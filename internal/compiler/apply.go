package compiler

import (
	"fmt"

	"github.com/roach88/callchain/internal/engine"
)

// Apply annotates the registry's operations with the manifests' metadata.
//
// Declared fields replace the registered ones; fields a manifest leaves
// out are kept. A param that keeps its name and position also keeps the
// InstanceOf constraint registered in code, which CUE cannot express.
// Application stops at the first error; operations annotated before it
// stay annotated.
func Apply(reg *engine.Registry, manifests ...Manifest) error {
	if errs := Validate(manifests...); len(errs) > 0 {
		return fmt.Errorf("apply manifests: %w", errs[0])
	}
	for _, m := range manifests {
		for _, spec := range m.Operations {
			if err := reg.Annotate(spec.Name, func(op *engine.Operation) { annotate(op, spec) }); err != nil {
				return fmt.Errorf("apply %s: %w", spec.Name, err)
			}
		}
	}
	return nil
}

// Check reports manifest operations the registry does not know, on top of
// the Validate errors.
func Check(reg *engine.Registry, manifests ...Manifest) []ValidationError {
	errs := Validate(manifests...)
	for _, m := range manifests {
		for _, spec := range m.Operations {
			if _, ok := reg.Lookup(spec.Name); !ok {
				errs = append(errs, ValidationError{
					Field:   "operations." + spec.Name,
					Message: fmt.Sprintf("operation %q is not registered", spec.Name),
					Code:    ErrUnknownOperation,
					Line:    lineOf(spec.Pos),
				})
			}
		}
	}
	return errs
}

func annotate(op *engine.Operation, spec OperationSpec) {
	if spec.Intercept != nil {
		op.Intercept = *spec.Intercept
	}
	if spec.BeginBlock != "" {
		op.BeginBlock = spec.BeginBlock
	}
	if spec.EndBlock != "" {
		op.EndBlock = spec.EndBlock
	}
	if spec.Previous != nil {
		prev := engine.PreviousSpec{Type: spec.Previous.Type}
		if op.Previous != nil {
			prev.InstanceOf = op.Previous.InstanceOf
		}
		op.Previous = &prev
	}
	if spec.Params == nil {
		return
	}

	params := make([]engine.Param, len(spec.Params))
	for i, p := range spec.Params {
		params[i] = engine.Param{
			Name:              p.Name,
			Required:          p.Required,
			Default:           p.Default,
			DefaultToPrevious: p.DefaultToPrevious,
			Type:              p.Type,
		}
		if i < len(op.Params) && op.Params[i].Name == p.Name {
			params[i].InstanceOf = op.Params[i].InstanceOf
		}
	}
	op.Params = params
}
