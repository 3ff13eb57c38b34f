package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Builtins(t *testing.T) {
	reg := NewRegistry()

	names := reg.Names()
	for _, name := range []string{"tap", "end", "recover", "transform", BeginSubchain, EndSubchain} {
		assert.Contains(t, names, name)
	}

	op, ok := reg.Lookup("recover")
	require.True(t, ok)
	assert.True(t, op.Intercept)

	op, ok = reg.Lookup(BeginSubchain)
	require.True(t, ok)
	assert.Equal(t, SubchainBlock, op.BeginBlock)
}

func TestRegistry_Duplicate(t *testing.T) {
	reg := NewRegistry()
	fn := func(_ *Context, _ []any, done Done) { done(nil, nil) }

	require.NoError(t, reg.RegisterFunc("op", fn))
	err := reg.RegisterFunc("op", fn)

	assert.True(t, HasCode(err, ErrCodeDuplicateMethod))
	assert.EqualError(t, err, `DUPLICATE_METHOD: method "op" is already registered (method=op)`)

	err = reg.RegisterFunc("tap", fn)
	assert.True(t, HasCode(err, ErrCodeDuplicateMethod))
}

func TestRegistry_RegisterMapStopsAtFirstDuplicate(t *testing.T) {
	reg := NewRegistry()
	fn := func(_ *Context, _ []any, done Done) { done(nil, nil) }

	err := reg.RegisterMap(map[string]Func{"b": fn, "end": fn, "a": fn, "z": fn})

	require.Error(t, err)
	var se *StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "end", se.Method)

	_, ok := reg.Lookup("a")
	assert.True(t, ok)
	_, ok = reg.Lookup("z")
	assert.False(t, ok)
}

func TestRegistry_InvalidDefinitions(t *testing.T) {
	fn := func(_ *Context, _ []any, done Done) { done(nil, nil) }

	tests := []struct {
		name string
		op   Operation
	}{
		{"empty name", Operation{Fn: fn}},
		{"nil function", Operation{Name: "x"}},
		{"both markers", Operation{Name: "x", Fn: fn, BeginBlock: "a", EndBlock: "a"}},
		{"unknown param type", Operation{Name: "x", Fn: fn, Params: []Param{{Type: "integer"}}}},
		{"required with default", Operation{Name: "x", Fn: fn, Params: []Param{{Required: true, Default: 1}}}},
		{"unknown previous type", Operation{Name: "x", Fn: fn, Previous: &PreviousSpec{Type: "date"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.op)
			assert.True(t, HasCode(err, ErrCodeInvalidSpec), "got %v", err)
		})
	}
}

func TestRegistry_Annotate(t *testing.T) {
	reg, _ := newTestRegistry(t)

	before := reg.Chain().Call("value")

	require.NoError(t, reg.Annotate("value", func(op *Operation) {
		op.Params = []Param{{Name: "v", Required: true}}
	}))

	// Chains keep the table they were created with.
	result, err := waitChain(t, before, nil)
	require.NoError(t, err)
	assert.Nil(t, result)

	_, err = waitChain(t, reg.Chain().Call("value"), nil)
	assert.EqualError(t, err, "Argument 0 is required but was not provided.")

	err = reg.Annotate("missing", func(*Operation) {})
	assert.True(t, HasCode(err, ErrCodeUnknownMethod))

	err = reg.Annotate("value", func(op *Operation) {
		op.Params = []Param{{Type: "bogus"}}
	})
	assert.True(t, HasCode(err, ErrCodeInvalidSpec))

	op, _ := reg.Lookup("value")
	assert.Equal(t, "v", op.Params[0].Name)
}

func TestRegistry_LookupReturnsCopy(t *testing.T) {
	reg, _ := newTestRegistry(t)

	op, ok := reg.Lookup("suffix")
	require.True(t, ok)
	op.Params[0].Required = false

	again, _ := reg.Lookup("suffix")
	assert.True(t, again.Params[0].Required)

	_, ok = reg.Lookup("nope")
	assert.False(t, ok)
}

func TestRegistry_RegisterCopiesDefinition(t *testing.T) {
	reg := NewRegistry()
	params := []Param{{Name: "a", Required: true}}
	require.NoError(t, reg.Register(Operation{
		Name:   "op",
		Params: params,
		Fn:     func(_ *Context, args []any, done Done) { done(nil, args[0]) },
	}))

	params[0].Required = false

	op, _ := reg.Lookup("op")
	assert.True(t, op.Params[0].Required)
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "x", (&Operation{Name: "x"}).String())
	assert.Equal(t, "$b(begin blk)", (&Operation{Name: "$b", BeginBlock: "blk"}).String())
	assert.Equal(t, "$e(end blk)", (&Operation{Name: "$e", EndBlock: "blk"}).String())
}

func TestErrors_Predicates(t *testing.T) {
	se := structural(ErrCodeOpenBlock, "", "block %q is still open", "subchain")
	assert.EqualError(t, se, `OPEN_BLOCK: block "subchain" is still open`)
	assert.True(t, IsStructuralError(se))
	assert.False(t, IsValidationError(se))
	assert.True(t, HasCode(se, ErrCodeOpenBlock))
	assert.False(t, HasCode(errBoom, ErrCodeOpenBlock))

	pe := newPanicError("op", errBoom)
	assert.ErrorIs(t, pe, errBoom)
	assert.Nil(t, newPanicError("op", "text").Unwrap())
}
