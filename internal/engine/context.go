package engine

import (
	"log/slog"
	"sync/atomic"
)

// Context is the receiver of every operation call. Each running queue owns
// exactly one Context; a sub-chain or an ad hoc chain gets its own Context
// whose Parent is the context that spawned it.
//
// The result and error fields change only between calls, so an operation
// may read them freely while it is executing.
type Context struct {
	q          *queue
	parent     *Context
	parentCall string
	depth      int
	chainID    string

	result any
	err    error

	current   *call
	currentID string
	execSite  []uintptr
}

func newContext(q *queue, parent *Context, parentCall, chainID string) *Context {
	c := &Context{
		q:          q,
		parent:     parent,
		parentCall: parentCall,
		chainID:    chainID,
	}
	if parent != nil {
		c.depth = parent.depth + 1
	}
	return c
}

// PreviousResult returns the result of the last completed or skipped call,
// or the chain's initial value before the first call.
func (c *Context) PreviousResult() any {
	return c.result
}

// PreviousError returns the current error, if any.
func (c *Context) PreviousError() error {
	return c.err
}

// HasError reports whether the chain is in an error state.
func (c *Context) HasError() bool {
	return c.err != nil
}

// Skip completes the current call with the state unchanged.
func (c *Context) Skip(done Done) {
	done(c.err, c.result)
}

// Parent returns the context of the enclosing chain, or nil for a root chain.
func (c *Context) Parent() *Context {
	return c.parent
}

// Depth returns the nesting depth: 0 for a root chain, +1 per sub-chain.
func (c *Context) Depth() int {
	return c.depth
}

// ChainID returns the trace id of the chain this context belongs to.
func (c *Context) ChainID() string {
	return c.chainID
}

// CallID returns the trace id of the call currently executing, or "".
func (c *Context) CallID() string {
	return c.currentID
}

// Method returns the name of the operation currently executing, or "".
func (c *Context) Method() string {
	if c.current == nil {
		return ""
	}
	return c.current.method
}

// Logger returns the engine logger.
func (c *Context) Logger() *slog.Logger {
	return c.q.tab.logger
}

// GetMethod returns another registered operation bound to this context.
// The bound function applies the operation's validation and captures its
// panics like a queued call, but does not touch the queue or emit events.
func (c *Context) GetMethod(name string) (BoundFunc, bool) {
	op, ok := c.q.tab.ops[name]
	if !ok {
		return nil, false
	}
	return bindOperation(c, op), true
}

// NewChain returns a chain that is already running with initial as its
// seed. Calls appended to it execute as soon as they are queued; register
// the terminal callback with OnDone. The chain is traced one level deeper
// than this context and shares its method table.
func (c *Context) NewChain(initial any) *Chain {
	q := &queue{tab: c.q.tab}
	ch := &Chain{q: q, parent: c, parentCall: c.currentID}
	if err := q.start(initial, nil, c, c.currentID); err != nil {
		panic(err) // a fresh queue cannot fail to start
	}
	return ch
}

// Ext returns a registered extension capability.
func (c *Context) Ext(name string) (ContextMethod, bool) {
	m, ok := c.q.tab.ext[name]
	return m, ok
}

// CallExt invokes a registered extension capability.
func (c *Context) CallExt(name string, args ...any) (any, error) {
	m, ok := c.q.tab.ext[name]
	if !ok {
		return nil, structural(ErrCodeUnknownMethod, name, "context method %q is not registered", name)
	}
	return m(c, args...)
}

// Go runs task on a new goroutine and completes the current call with its
// outcome. A panic inside task is captured as a *PanicError, so an
// operation that finishes asynchronously gets the same protection as one
// that finishes inline.
func (c *Context) Go(done Done, task func() (any, error)) {
	method := c.Method()
	go func() {
		result, err := runTask(method, task)
		done(err, result)
	}()
}

func runTask(method string, task func() (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, newPanicError(method, r)
		}
	}()
	return task()
}

func (c *Context) enter(id string, cl *call, capture bool) {
	c.current = cl
	c.currentID = id
	if capture {
		c.execSite = callers(3)
	}
}

func (c *Context) leave() {
	c.current = nil
	c.currentID = ""
	c.execSite = nil
}

func (c *Context) parentChainID() string {
	if c.parent == nil {
		return ""
	}
	return c.parent.chainID
}

// once wraps done so only the first invocation is delivered. fired reports
// whether it has been called.
func once(done Done, onRepeat func()) (Done, func() bool) {
	var fired atomic.Bool
	wrapped := func(err error, result any) {
		if !fired.CompareAndSwap(false, true) {
			if onRepeat != nil {
				onRepeat()
			}
			return
		}
		done(err, result)
	}
	return wrapped, fired.Load
}
