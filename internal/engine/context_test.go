package engine

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/callchain/internal/trace"
)

func TestContext_StateAccessors(t *testing.T) {
	reg, _ := newTestRegistry(t)

	type seen struct {
		result   any
		err      error
		hasError bool
		method   string
		depth    int
	}
	var got []seen
	require.NoError(t, reg.Register(Operation{
		Name:      "inspect",
		Intercept: true,
		Fn: func(c *Context, _ []any, done Done) {
			got = append(got, seen{c.PreviousResult(), c.PreviousError(), c.HasError(), c.Method(), c.Depth()})
			c.Skip(done)
		},
	}))

	chain := reg.Chain().Call("inspect").Call("fail").Call("inspect")
	_, err := waitChain(t, chain, "seed")

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []seen{
		{result: "seed", method: "inspect"},
		{err: errBoom, hasError: true, method: "inspect"},
	}, got)
}

func TestContext_NewChainIsNestedAndRunning(t *testing.T) {
	reg, rec := newTestRegistry(t)
	require.NoError(t, reg.RegisterFunc("spawn", func(c *Context, _ []any, done Done) {
		child := c.NewChain(c.PreviousResult())
		child.Call("suffix", "-child").Call("later", "-async")
		if err := child.OnDone(done); err != nil {
			done(err, nil)
		}
	}))

	result, err := waitChain(t, reg.Chain().Call("value", "root").Call("spawn").Call("suffix", "!"), nil)

	require.NoError(t, err)
	assert.Equal(t, "root-child-async!", result)

	starts := rec.Filter(trace.EventChainStart)
	require.Len(t, starts, 2)
	assert.Equal(t, 0, starts[0].Depth)
	assert.Equal(t, 1, starts[1].Depth)
	assert.Equal(t, starts[0].ChainID, starts[1].ParentChainID)

	var spawnID string
	for _, ev := range rec.Filter(trace.EventCallStart) {
		if ev.Method == "spawn" {
			spawnID = ev.ID
		}
	}
	assert.Equal(t, spawnID, starts[1].ParentCallID)
}

func TestContext_NewChainOnDoneAfterDrain(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.RegisterFunc("spawnSync", func(c *Context, _ []any, done Done) {
		child := c.NewChain("x")
		child.Call("suffix", "y")
		// Every call already finished; OnDone delivers immediately.
		if err := child.OnDone(done); err != nil {
			done(err, nil)
		}
	}))

	result, err := waitChain(t, reg.Chain().Call("spawnSync"), nil)
	require.NoError(t, err)
	assert.Equal(t, "xy", result)
}

func TestChain_OnDoneErrors(t *testing.T) {
	reg, _ := newTestRegistry(t)

	err := reg.Chain().OnDone(func(error, any) {})
	assert.True(t, HasCode(err, ErrCodeNotStarted))

	var second error
	require.NoError(t, reg.RegisterFunc("spawnTwice", func(c *Context, _ []any, done Done) {
		child := c.NewChain(nil)
		require.NoError(t, child.OnDone(func(error, any) {}))
		second = child.OnDone(func(error, any) {})
		c.Skip(done)
	}))

	_, err = waitChain(t, reg.Chain().Call("spawnTwice"), nil)
	require.NoError(t, err)
	assert.True(t, HasCode(second, ErrCodeAlreadyStarted))
}

func TestContext_GetMethod(t *testing.T) {
	reg, rec := newTestRegistry(t)
	require.NoError(t, reg.RegisterFunc("twiceSuffix", func(c *Context, args []any, done Done) {
		suffix, ok := c.GetMethod("suffix")
		if !ok {
			done(errBoom, nil)
			return
		}
		suffix([]any{args[0].(string) + args[0].(string)}, done)
	}))

	result, err := waitChain(t, reg.Chain().Call("twiceSuffix", "ab"), "x")

	require.NoError(t, err)
	assert.Equal(t, "xabab", result)
	// Bound methods do not create queue entries.
	assert.Equal(t, []string{"twiceSuffix"}, rec.Methods(trace.EventCallStart))
}

func TestContext_GetMethodValidatesAndSandboxes(t *testing.T) {
	reg, _ := newTestRegistry(t)

	var unknownFound bool
	require.NoError(t, reg.RegisterFunc("compose", func(c *Context, args []any, done Done) {
		_, unknownFound = c.GetMethod("missing")
		m, _ := c.GetMethod(args[0].(string))
		m(nil, done)
	}))

	_, err := waitChain(t, reg.Chain().Call("compose", "suffix"), "")
	assert.EqualError(t, err, "Argument 0 is required but was not provided.")
	assert.False(t, unknownFound)

	_, err = waitChain(t, reg.Chain().Call("compose", "explode"), "")
	assert.True(t, IsPanicError(err))
}

func TestContext_GetMethodPanicAfterCompletion(t *testing.T) {
	var logs logBuffer
	reg, _ := newTestRegistry(t, WithLogger(logs.logger()))
	require.NoError(t, reg.RegisterFunc("doneThenPanic", func(_ *Context, _ []any, done Done) {
		done(nil, "inner")
		panic("late")
	}))
	require.NoError(t, reg.RegisterFunc("compose", func(c *Context, _ []any, done Done) {
		m, _ := c.GetMethod("doneThenPanic")
		m(nil, done)
	}))

	result, err := waitChain(t, reg.Chain().Call("compose").Call("suffix", "!"), nil)
	require.NoError(t, err)
	assert.Equal(t, "inner!", result)
	assert.True(t, logs.contains("operation panicked after completing"))
}

func TestContext_Extensions(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.RegisterContextMethod("greet", func(c *Context, args ...any) (any, error) {
		return "hello " + args[0].(string) + " at depth " + string(rune('0'+c.Depth())), nil
	}))
	require.NoError(t, reg.RegisterFunc("welcome", func(c *Context, _ []any, done Done) {
		v, err := c.CallExt("greet", c.PreviousResult())
		done(err, v)
	}))

	result, err := waitChain(t, reg.Chain().Call("welcome"), "ada")
	require.NoError(t, err)
	assert.Equal(t, "hello ada at depth 0", result)
}

func TestContext_ExtensionNames(t *testing.T) {
	reg, _ := newTestRegistry(t)
	noop := func(*Context, ...any) (any, error) { return nil, nil }

	err := reg.RegisterContextMethod("Skip", noop)
	assert.True(t, HasCode(err, ErrCodeReservedName))

	err = reg.RegisterContextMethod("newChain", noop)
	assert.True(t, HasCode(err, ErrCodeReservedName))

	require.NoError(t, reg.RegisterContextMethod("audit", noop))
	err = reg.RegisterContextMethod("audit", noop)
	assert.True(t, HasCode(err, ErrCodeDuplicateMethod))

	err = reg.RegisterContextMethod("", noop)
	assert.True(t, HasCode(err, ErrCodeInvalidSpec))
}

func TestContext_UnknownExtension(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.RegisterFunc("useMissing", func(c *Context, _ []any, done Done) {
		_, ok := c.Ext("missing")
		if ok {
			done(nil, "unexpected")
			return
		}
		_, err := c.CallExt("missing")
		done(err, nil)
	}))

	_, err := waitChain(t, reg.Chain().Call("useMissing"), nil)
	assert.True(t, HasCode(err, ErrCodeUnknownMethod))
}

func TestContext_CleanStacks(t *testing.T) {
	reg, _ := newTestRegistry(t, WithStackCapture(true))

	var stacks Stacks
	require.NoError(t, reg.RegisterFunc("capture", func(c *Context, _ []any, done Done) {
		stacks = c.CleanStacks()
		c.Skip(done)
	}))

	_, err := waitChain(t, reg.Chain().Call("capture"), nil)
	require.NoError(t, err)

	require.NotEmpty(t, stacks.CallSite)
	require.NotEmpty(t, stacks.ExecSite)
	assert.True(t, hasFunction(stacks.CallSite, "TestContext_CleanStacks"))
	assert.True(t, hasFunction(stacks.ExecSite, "waitChain"))

	for _, f := range append(stacks.CallSite, stacks.ExecSite...) {
		inEngine := filepath.Dir(f.File) == engineDir && !strings.HasSuffix(f.File, "_test.go")
		assert.False(t, inEngine, "engine frame leaked: %s", f.Function)
		assert.False(t, strings.HasPrefix(f.Function, "runtime."), "runtime frame leaked: %s", f.Function)
	}
}

func TestContext_CleanStacksDisabled(t *testing.T) {
	reg, _ := newTestRegistry(t)

	var stacks Stacks
	require.NoError(t, reg.RegisterFunc("capture", func(c *Context, _ []any, done Done) {
		stacks = c.CleanStacks()
		c.Skip(done)
	}))

	_, err := waitChain(t, reg.Chain().Call("capture"), nil)
	require.NoError(t, err)
	assert.Empty(t, stacks.CallSite)
	assert.Empty(t, stacks.ExecSite)
}

func hasFunction(frames []Frame, name string) bool {
	for _, f := range frames {
		if strings.Contains(f.Function, name) {
			return true
		}
	}
	return false
}
