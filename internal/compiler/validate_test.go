package compiler

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/callchain/internal/engine"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateClean(t *testing.T) {
	m, err := CompileString("ops.cue", `
		operations: suffix: params: [{name: "s", type: string, required: true}]
		operations: pad: params: [{name: "n", type: int, default: 2}]
	`)
	require.NoError(t, err)
	assert.Empty(t, Validate(*m))
}

func TestValidateCollectsAll(t *testing.T) {
	m := Manifest{
		Source: "inline",
		Operations: []OperationSpec{{
			Name:       "x",
			BeginBlock: "a",
			EndBlock:   "b",
			Previous:   &PreviousSpec{Type: "float"},
			Params: []ParamSpec{
				{Name: "", Type: "string"},
				{Name: "p", Required: true, Default: "d"},
				{Name: "p", Default: 1, DefaultToPrevious: true},
				{Name: "q", Type: "string", Default: 3},
			},
		}},
	}

	errs := Validate(m)
	assert.Equal(t, []string{
		ErrBlockConflict,
		ErrUnknownType,
		ErrParamNameEmpty,
		ErrRequiredWithDefault,
		ErrDuplicateParam,
		ErrAmbiguousDefault,
		ErrDefaultTypeMismatch,
	}, codes(errs))
}

func TestValidateDuplicateAcrossManifests(t *testing.T) {
	a := Manifest{Source: "a.cue", Operations: []OperationSpec{{Name: "x"}}}
	b := Manifest{Source: "b.cue", Operations: []OperationSpec{{Name: "x"}}}

	errs := Validate(a, b)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateOperation, errs[0].Code)
	assert.Contains(t, errs[0].Message, "a.cue")
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "operations.x", Message: "bad", Code: ErrUnknownType}
	assert.Equal(t, "[E101] operations.x: bad", e.Error())

	e.Line = 7
	assert.Equal(t, "[E101] line 7: operations.x: bad", e.Error())
}

func noop(_ *engine.Context, _ []any, done engine.Done) { done(nil, nil) }

func TestApplyAnnotatesRegistry(t *testing.T) {
	reg := engine.NewRegistry()
	require.NoError(t, reg.RegisterFunc("suffix", noop))
	require.NoError(t, reg.RegisterFunc("audit", noop))

	m, err := CompileString("ops.cue", `
		operations: suffix: {
			previous: type: string
			params: [{name: "s", type: string, required: true}]
		}
		operations: audit: intercept: true
	`)
	require.NoError(t, err)
	require.NoError(t, Apply(reg, *m))

	suffix, ok := reg.Lookup("suffix")
	require.True(t, ok)
	require.NotNil(t, suffix.Previous)
	assert.Equal(t, engine.TypeString, suffix.Previous.Type)
	require.Len(t, suffix.Params, 1)
	assert.True(t, suffix.Params[0].Required)

	audit, ok := reg.Lookup("audit")
	require.True(t, ok)
	assert.True(t, audit.Intercept)
	assert.Nil(t, audit.Params)
}

func TestApplyKeepsInstanceOf(t *testing.T) {
	reg := engine.NewRegistry()
	chainType := reflect.TypeOf((*engine.Chain)(nil))
	require.NoError(t, reg.Register(engine.Operation{
		Name:   "run",
		Fn:     noop,
		Params: []engine.Param{{Name: "body", InstanceOf: chainType}},
	}))

	m, err := CompileString("ops.cue", `operations: run: params: [{name: "body", required: true}]`)
	require.NoError(t, err)
	require.NoError(t, Apply(reg, *m))

	op, _ := reg.Lookup("run")
	require.Len(t, op.Params, 1)
	assert.True(t, op.Params[0].Required)
	assert.Equal(t, chainType, op.Params[0].InstanceOf)
}

func TestApplyManifestDrivesValidation(t *testing.T) {
	reg := engine.NewRegistry()
	require.NoError(t, reg.RegisterFunc("suffix", func(c *engine.Context, args []any, done engine.Done) {
		done(nil, c.PreviousResult().(string)+args[0].(string))
	}))

	m, err := CompileString("ops.cue", `operations: suffix: params: [{name: "s", type: string, required: true}]`)
	require.NoError(t, err)
	require.NoError(t, Apply(reg, *m))

	_, err = reg.Chain().Call("suffix").Wait(t.Context(), "a")
	require.Error(t, err)
	assert.True(t, engine.IsValidationError(err))
	assert.Equal(t, "Argument 0 is required but was not provided.", err.Error())

	got, err := reg.Chain().Call("suffix", "b").Wait(t.Context(), "a")
	require.NoError(t, err)
	assert.Equal(t, "ab", got)
}

func TestApplyErrors(t *testing.T) {
	t.Run("unknown operation", func(t *testing.T) {
		reg := engine.NewRegistry()
		m := Manifest{Operations: []OperationSpec{{Name: "missing"}}}

		err := Apply(reg, m)
		require.Error(t, err)
		assert.True(t, engine.HasCode(err, engine.ErrCodeUnknownMethod))
	})

	t.Run("invalid manifest", func(t *testing.T) {
		reg := engine.NewRegistry()
		require.NoError(t, reg.RegisterFunc("x", noop))
		m := Manifest{Operations: []OperationSpec{{Name: "x", Params: []ParamSpec{{Name: "a", Type: "float"}}}}}

		err := Apply(reg, m)
		require.Error(t, err)

		var ve ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, ErrUnknownType, ve.Code)
	})
}

func TestCheckReportsUnknownOperations(t *testing.T) {
	reg := engine.NewRegistry()
	require.NoError(t, reg.RegisterFunc("known", noop))

	m := Manifest{Operations: []OperationSpec{{Name: "known"}, {Name: "ghost"}}}
	errs := Check(reg, m)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownOperation, errs[0].Code)
	assert.Equal(t, "operations.ghost", errs[0].Field)
}
