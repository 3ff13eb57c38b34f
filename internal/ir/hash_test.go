package ir

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/callchain/internal/engine"
)

var hexHash = regexp.MustCompile(`^[0-9a-f]{64}$`)

func sampleDefinition() []engine.CallInfo {
	return []engine.CallInfo{
		{Method: "value", Args: []any{"a"}},
		{
			Method: engine.EndSubchain,
			Subchain: []engine.CallInfo{
				{Method: engine.BeginSubchain},
				{Method: "upper"},
			},
		},
	}
}

func TestDefinition(t *testing.T) {
	assert.Equal(t, IRArray{
		IRObject{"method": IRString("value"), "args": IRArray{IRString("a")}},
		IRObject{
			"method": IRString(engine.EndSubchain),
			"args":   IRArray{},
			"subchain": IRArray{
				IRObject{"method": IRString(engine.BeginSubchain), "args": IRArray{}},
				IRObject{"method": IRString("upper"), "args": IRArray{}},
			},
		},
	}, Definition(sampleDefinition()))
}

func TestDefinitionHash_Deterministic(t *testing.T) {
	a, err := DefinitionHash(sampleDefinition())
	require.NoError(t, err)
	b, err := DefinitionHash(sampleDefinition())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Regexp(t, hexHash, a)
}

func TestDefinitionHash_ChangesWithContent(t *testing.T) {
	base, err := DefinitionHash(sampleDefinition())
	require.NoError(t, err)

	changed := sampleDefinition()
	changed[0].Args = []any{"b"}
	other, err := DefinitionHash(changed)
	require.NoError(t, err)

	assert.NotEqual(t, base, other)
}

func TestDefinitionHash_FromChain(t *testing.T) {
	reg := engine.NewRegistry()
	noop := func(c *engine.Context, _ []any, done engine.Done) { c.Skip(done) }
	require.NoError(t, reg.RegisterFunc("value", noop))
	require.NoError(t, reg.RegisterFunc("upper", noop))

	chain := reg.Chain().Call("value", "a").BeginSubchain().Call("upper").EndSubchain()

	fromChain, err := DefinitionHash(chain.Calls())
	require.NoError(t, err)
	fromInfo, err := DefinitionHash(sampleDefinition())
	require.NoError(t, err)
	assert.Equal(t, fromInfo, fromChain)
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`[]`)
	assert.NotEqual(t, hashWithDomain(DomainDefinition, data), hashWithDomain(DomainValue, data))

	def, err := DefinitionHash(nil)
	require.NoError(t, err)
	val, err := ValueHash(IRArray{})
	require.NoError(t, err)
	assert.NotEqual(t, def, val)
}

func TestValueHash(t *testing.T) {
	a, err := ValueHash(IRObject{"x": IRInt(1), "y": IRString("z")})
	require.NoError(t, err)
	b, err := ValueHash(IRObject{"y": IRString("z"), "x": IRInt(1)})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Regexp(t, hexHash, a)
}
