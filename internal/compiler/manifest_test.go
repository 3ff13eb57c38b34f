package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileManifestBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		operations: {
			suffix: {
				previous: type: string
				params: [{name: "s", type: string, required: true}]
			}
			pad: params: [
				{name: "width", type: int, default: 4},
				{name: "fill", type: "string", defaultToPrevious: true},
			]
			audit: intercept: true
		}
	`)
	require.NoError(t, v.Err())

	m, err := CompileManifest(v)
	require.NoError(t, err)
	require.Len(t, m.Operations, 3)

	suffix := m.Operations[0]
	assert.Equal(t, "suffix", suffix.Name)
	assert.Nil(t, suffix.Intercept)
	require.NotNil(t, suffix.Previous)
	assert.Equal(t, "string", suffix.Previous.Type)
	require.Len(t, suffix.Params, 1)
	assert.Equal(t, "s", suffix.Params[0].Name)
	assert.Equal(t, "string", suffix.Params[0].Type)
	assert.True(t, suffix.Params[0].Required)

	pad := m.Operations[1]
	require.Len(t, pad.Params, 2)
	assert.Equal(t, "number", pad.Params[0].Type)
	assert.Equal(t, 4, pad.Params[0].Default)
	assert.True(t, pad.Params[1].DefaultToPrevious)

	audit := m.Operations[2]
	require.NotNil(t, audit.Intercept)
	assert.True(t, *audit.Intercept)
	assert.Nil(t, audit.Params, "no params field leaves validation off")
}

func TestCompileManifestEmptyParams(t *testing.T) {
	m, err := CompileString("ops.cue", `operations: noargs: params: []`)
	require.NoError(t, err)
	require.Len(t, m.Operations, 1)
	assert.NotNil(t, m.Operations[0].Params)
	assert.Empty(t, m.Operations[0].Params)
	assert.Equal(t, "ops.cue", m.Source)
}

func TestCompileManifestBlocks(t *testing.T) {
	m, err := CompileString("ops.cue", `
		operations: {
			"$beginMap": begin: "map"
			"$endMap": {
				end: "map"
				params: [{name: "body", type: object, required: true}]
			}
		}
	`)
	require.NoError(t, err)
	require.Len(t, m.Operations, 2)
	assert.Equal(t, "$beginMap", m.Operations[0].Name)
	assert.Equal(t, "map", m.Operations[0].BeginBlock)
	assert.Equal(t, "map", m.Operations[1].EndBlock)
	assert.Equal(t, "object", m.Operations[1].Params[0].Type)
}

func TestCompileManifestTypeMapping(t *testing.T) {
	m, err := CompileString("ops.cue", `
		operations: types: params: [
			{name: "a", type: string},
			{name: "b", type: int},
			{name: "c", type: float},
			{name: "d", type: number},
			{name: "e", type: bool},
			{name: "f", type: [...]},
			{name: "g", type: {...}},
			{name: "h", type: null},
			{name: "i", type: _},
			{name: "j", type: "function"},
			{name: "k", type: "any"},
			{name: "l"},
		]
	`)
	require.NoError(t, err)

	var got []string
	for _, p := range m.Operations[0].Params {
		got = append(got, p.Type)
	}
	assert.Equal(t, []string{
		"string", "number", "number", "number", "boolean",
		"array", "object", "nil", "", "function", "", "",
	}, got)
}

func TestCompileManifestDefaults(t *testing.T) {
	m, err := CompileString("ops.cue", `
		operations: d: params: [
			{name: "s", default: "x"},
			{name: "f", default: 1.5},
			{name: "b", default: false},
			{name: "l", default: [1, "two"]},
			{name: "o", default: {k: true}},
		]
	`)
	require.NoError(t, err)

	params := m.Operations[0].Params
	assert.Equal(t, "x", params[0].Default)
	assert.Equal(t, 1.5, params[1].Default)
	assert.Equal(t, false, params[2].Default)
	assert.Equal(t, []any{1, "two"}, params[3].Default)
	assert.Equal(t, map[string]any{"k": true}, params[4].Default)
}

func TestCompileManifestErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"missing operations", `other: 1`, "operations"},
		{"unknown type name", `operations: x: params: [{name: "a", type: "float"}]`, "type"},
		{"disjunction type", `operations: x: params: [{name: "a", type: int | string}]`, "type"},
		{"previous without type", `operations: x: previous: {}`, "operations.x.previous.type"},
		{"abstract default", `operations: x: params: [{name: "a", default: string}]`, "operations.x.params[0].default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileString("ops.cue", tt.src)
			require.Error(t, err)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileManifestKindError(t *testing.T) {
	_, err := CompileString("broken.cue", `operations: x: intercept: "yes"`)
	assert.Error(t, err)
}

func TestCompileManifestSyntaxError(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`operations: {`, cue.Filename("bad.cue"))

	_, err := CompileManifest(v)
	require.Error(t, err)
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "type", Message: "bad"}
	assert.Equal(t, "type: bad", err.Error())
}

func writeCUE(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0644))
}

func TestLoadManifests(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "a.cue", `package ops

operations: suffix: params: [{name: "s", type: string, required: true}]
`)
	writeCUE(t, dir, "b.cue", `package ops

operations: suffix: previous: type: string
operations: audit: intercept: true
`)

	manifests, err := LoadManifests(dir)
	require.NoError(t, err)
	require.Len(t, manifests, 1)

	ops := map[string]OperationSpec{}
	for _, op := range manifests[0].Operations {
		ops[op.Name] = op
	}
	require.Contains(t, ops, "suffix")
	require.Contains(t, ops, "audit")
	assert.Len(t, ops["suffix"].Params, 1)
	require.NotNil(t, ops["suffix"].Previous, "files of one package are unified")
	assert.Equal(t, "string", ops["suffix"].Previous.Type)
}

func TestLoadManifestsErrors(t *testing.T) {
	t.Run("missing dir", func(t *testing.T) {
		_, err := LoadManifests(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})

	t.Run("no files", func(t *testing.T) {
		_, err := LoadManifests(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no CUE files")
	})

	t.Run("conflict", func(t *testing.T) {
		dir := t.TempDir()
		writeCUE(t, dir, "a.cue", "package ops\n\noperations: x: intercept: true\n")
		writeCUE(t, dir, "b.cue", "package ops\n\noperations: x: intercept: false\n")
		_, err := LoadManifests(dir)
		assert.Error(t, err)
	})
}

func TestFindCUEFilesSorted(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "b.cue", "package ops\n")
	writeCUE(t, dir, "a.cue", "package ops\n")
	writeCUE(t, dir, "notes.txt", "ignored")

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.cue"), filepath.Join(dir, "b.cue")}, files)
}
