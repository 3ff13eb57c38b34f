package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/callchain/internal/testutil"
	"github.com/roach88/callchain/internal/trace"
)

var errBoom = errors.New("boom")

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *trace.Recorder) {
	t.Helper()
	tr, rec := testutil.NewTracer()
	base := []Option{
		WithTracer(tr),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	reg := NewRegistry(append(base, opts...)...)
	require.NoError(t, reg.RegisterMap(testOps()))
	require.NoError(t, reg.Register(Operation{
		Name:   "suffix",
		Params: []Param{{Name: "s", Required: true, Type: TypeString}},
		Fn: func(c *Context, args []any, done Done) {
			prev, _ := c.PreviousResult().(string)
			done(nil, prev+args[0].(string))
		},
	}))
	return reg, rec
}

// testOps are small operations shared by the engine tests.
func testOps() map[string]Func {
	return map[string]Func{
		"value": func(_ *Context, args []any, done Done) {
			if len(args) == 0 {
				done(nil, nil)
				return
			}
			done(nil, args[0])
		},
		"fail": func(_ *Context, _ []any, done Done) {
			done(errBoom, "ignored")
		},
		"explode": func(_ *Context, _ []any, _ Done) {
			panic("kaboom")
		},
		"later": func(c *Context, args []any, done Done) {
			go func() {
				time.Sleep(2 * time.Millisecond)
				prev, _ := c.PreviousResult().(string)
				done(nil, prev+args[0].(string))
			}()
		},
	}
}

func waitChain(t *testing.T, c *Chain, initial any) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Wait(ctx, initial)
}

func catchPanic(fn func()) (r any) {
	defer func() {
		r = recover()
	}()
	fn()
	return nil
}

type logBuffer struct {
	bytes.Buffer
}

func (b *logBuffer) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(b, nil))
}

func (b *logBuffer) contains(s string) bool {
	return strings.Contains(b.String(), s)
}
