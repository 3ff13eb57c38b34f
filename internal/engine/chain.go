package engine

import (
	"context"
	"fmt"
)

// Chain is the fluent façade over one call queue.
//
// Methods that append calls return the receiver so calls can be written
// one after another. A chain built from Registry.Chain is a definition:
// Run executes a fresh copy of it and may be called any number of times.
// A chain returned by Context.NewChain is already running; its calls
// execute as they are appended.
type Chain struct {
	q          *queue
	parent     *Context
	parentCall string
}

// CallInfo describes one queued call.
type CallInfo struct {
	Method   string
	Args     []any
	Subchain []CallInfo // body of the block this call closes, if any
}

// Add appends a call to the named operation. Unknown names and block
// errors are returned as *StructuralError.
func (c *Chain) Add(method string, args ...any) error {
	op, ok := c.q.tab.ops[method]
	if !ok {
		return structural(ErrCodeUnknownMethod, method, "method %q is not registered", method)
	}
	cl := &call{
		method:      method,
		op:          op,
		args:        append([]any(nil), args...),
		skipOnError: !op.Intercept,
	}
	if c.q.tab.captureStacks {
		cl.site = callers(3)
	}
	return c.q.add(cl)
}

// Call appends a call to the named operation and returns the chain.
// It panics with a *StructuralError where Add would return one.
func (c *Chain) Call(method string, args ...any) *Chain {
	if err := c.Add(method, args...); err != nil {
		panic(err)
	}
	return c
}

// Method returns the named operation bound to this chain.
func (c *Chain) Method(name string) func(args ...any) *Chain {
	return Curry(name).Bind(c)
}

// Tap observes the current state without changing it. It runs whether or
// not the chain is erroring.
func (c *Chain) Tap(fn TapFunc) *Chain {
	return c.Call("tap", fn)
}

// End hands the current state to fn. The state passes through unchanged,
// so an error stays set for the rest of the chain.
func (c *Chain) End(fn Done) *Chain {
	return c.Call("end", fn)
}

// Recover replaces an error with the value fn returns. It is skipped when
// the chain is not erroring.
func (c *Chain) Recover(fn RecoverFunc) *Chain {
	return c.Call("recover", fn)
}

// Transform maps the current state, error or not, to a new one.
func (c *Chain) Transform(fn TransformFunc) *Chain {
	return c.Call("transform", fn)
}

// BeginSubchain opens a nested block. Calls up to the matching
// EndSubchain run as a child chain seeded with the previous result.
func (c *Chain) BeginSubchain() *Chain {
	return c.Call(BeginSubchain)
}

// EndSubchain closes the block opened by BeginSubchain.
func (c *Chain) EndSubchain() *Chain {
	return c.Call(EndSubchain)
}

// Run executes a copy of the chain seeded with initial and reports the
// final state to done exactly once. done may be nil.
func (c *Chain) Run(initial any, done Done) error {
	q, err := c.q.clone()
	if err != nil {
		return err
	}
	if done == nil {
		done = func(error, any) {}
	}
	return q.start(initial, done, c.parent, c.parentCall)
}

// Wait runs the chain and blocks until it finishes or ctx is done.
// Cancelling ctx stops the wait only; calls already running are not
// interrupted.
func (c *Chain) Wait(ctx context.Context, initial any) (any, error) {
	type outcome struct {
		result any
		err    error
	}
	ch := make(chan outcome, 1)
	if err := c.Run(initial, func(err error, result any) {
		ch <- outcome{result: result, err: err}
	}); err != nil {
		return nil, err
	}

	select {
	case out := <-ch:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OnDone registers the terminal callback of a chain started by
// Context.NewChain. The callback fires once every call appended so far
// has completed.
func (c *Chain) OnDone(done Done) error {
	return c.q.onFinish(done)
}

// Clone returns an independent, unstarted copy of the chain definition.
func (c *Chain) Clone() (*Chain, error) {
	q, err := c.q.clone()
	if err != nil {
		return nil, err
	}
	return &Chain{q: q, parent: c.parent, parentCall: c.parentCall}, nil
}

// Calls describes the queued calls in order. Block bodies appear as the
// Subchain of the call that closes them.
func (c *Chain) Calls() []CallInfo {
	return c.q.describe()
}

// Len returns the number of calls queued at the top level.
func (c *Chain) Len() int {
	c.q.mu.Lock()
	defer c.q.mu.Unlock()
	return len(c.q.calls)
}

// String implements fmt.Stringer.
func (c *Chain) String() string {
	return fmt.Sprintf("chain(%d calls)", c.Len())
}

func (q *queue) describe() []CallInfo {
	q.mu.Lock()
	calls := make([]*call, len(q.calls))
	copy(calls, q.calls)
	q.mu.Unlock()

	out := make([]CallInfo, 0, len(calls))
	for _, cl := range calls {
		info := CallInfo{Method: cl.method, Args: cl.args}
		if cl.subchain != nil {
			info.Subchain = cl.subchain.describe()
		}
		out = append(out, info)
	}
	return out
}
