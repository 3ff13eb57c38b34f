package engine

import (
	"sync"
	"time"

	"github.com/roach88/callchain/internal/trace"
)

// call is one queued invocation. It is created when the call is appended
// and consumed exactly once; only subchain is attached later, when the
// block it closes is complete.
type call struct {
	method      string
	op          *Operation
	args        []any
	subchain    *queue
	skipOnError bool
	site        []uintptr
}

// block is an open nested block on a chain's block stack.
type block struct {
	name string
	q    *queue
}

// queue is the ordered call list of one chain together with its execution
// state.
//
// processing is the in-flight guard: while it is set no other call of this
// queue may start. draining marks an active advance loop, so a completion
// delivered inline returns to that loop instead of recursing.
type queue struct {
	tab *table

	mu         sync.Mutex
	calls      []*call
	pos        int
	started    bool
	processing bool
	draining   bool
	finished   bool
	blocks     []*block
	onDone     Done

	ctx       *Context
	startedAt time.Time
}

// add appends cl to the innermost open block, or to q itself when no block
// is open. A started queue advances immediately.
func (q *queue) add(cl *call) error {
	q.mu.Lock()
	if q.finished {
		q.mu.Unlock()
		return structural(ErrCodeFinished, cl.method, "chain already delivered its result")
	}

	target := q
	if n := len(q.blocks); n > 0 {
		target = q.blocks[n-1].q
	}

	switch op := cl.op; {
	case op.BeginBlock != "":
		child := &queue{tab: q.tab, calls: []*call{cl}}
		q.blocks = append(q.blocks, &block{name: op.BeginBlock, q: child})
		q.mu.Unlock()
		return nil

	case op.EndBlock != "":
		n := len(q.blocks)
		if n == 0 {
			q.mu.Unlock()
			err := structural(ErrCodeUnmatchedBlockEnd, cl.method, "no open block to close")
			err.Block = op.EndBlock
			return err
		}
		top := q.blocks[n-1]
		if top.name != op.EndBlock {
			q.mu.Unlock()
			err := structural(ErrCodeBlockMismatch, cl.method, "cannot close block %q while %q is open", op.EndBlock, top.name)
			err.Block = top.name
			return err
		}
		q.blocks = q.blocks[:n-1]
		cl.subchain = top.q
		target = q
		if n > 1 {
			target = q.blocks[n-2].q
		}
	}

	target.calls = append(target.calls, cl)
	advance := target == q && q.started
	q.mu.Unlock()

	if advance {
		q.advance()
	}
	return nil
}

// start seeds the queue and begins processing. done may be nil, in which
// case the queue keeps running as calls arrive and only finishes once a
// terminal callback is registered with onFinish.
func (q *queue) start(initial any, done Done, parent *Context, parentCall string) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return structural(ErrCodeAlreadyStarted, "", "chain is already running")
	}
	if n := len(q.blocks); n > 0 {
		name := q.blocks[n-1].name
		q.mu.Unlock()
		err := structural(ErrCodeOpenBlock, "", "block %q is still open", name)
		err.Block = name
		return err
	}
	q.started = true
	q.processing = true
	q.onDone = done
	q.ctx = newContext(q, parent, parentCall, q.tab.tracer.NewID())
	q.ctx.result = initial
	q.startedAt = q.tab.tracer.Now()
	ctx := q.ctx
	q.mu.Unlock()

	q.emitChain(trace.EventChainStart, ctx, 0)

	q.mu.Lock()
	q.processing = false
	q.mu.Unlock()
	q.advance()
	return nil
}

// onFinish registers the terminal callback of a queue started without one.
func (q *queue) onFinish(done Done) error {
	q.mu.Lock()
	switch {
	case !q.started:
		q.mu.Unlock()
		return structural(ErrCodeNotStarted, "", "chain has not been started")
	case q.onDone != nil || q.finished:
		q.mu.Unlock()
		return structural(ErrCodeAlreadyStarted, "", "chain already has a terminal callback")
	case len(q.blocks) > 0:
		name := q.blocks[len(q.blocks)-1].name
		q.mu.Unlock()
		err := structural(ErrCodeOpenBlock, "", "block %q is still open", name)
		err.Block = name
		return err
	}
	q.onDone = done
	q.mu.Unlock()

	q.advance()
	return nil
}

// advance runs queued calls until one is left in flight or the queue is
// drained. Calls whose completion fires before the operation returns are
// handled by the same loop.
func (q *queue) advance() {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true

	for {
		if !q.started || q.processing || q.finished {
			q.draining = false
			q.mu.Unlock()
			return
		}

		if q.pos >= len(q.calls) {
			done := q.onDone
			if done == nil {
				q.draining = false
				q.mu.Unlock()
				return
			}
			q.finished = true
			q.draining = false
			ctx := q.ctx
			err, result := ctx.err, ctx.result
			elapsed := q.tab.tracer.Now().Sub(q.startedAt)
			q.mu.Unlock()

			q.emitChain(trace.EventChainEnd, ctx, elapsed)
			done(err, result)
			return
		}

		cl := q.calls[q.pos]
		q.pos++
		q.processing = true
		ctx := q.ctx
		skip := ctx.err != nil && cl.skipOnError
		q.mu.Unlock()

		if skip {
			q.skip(ctx, cl)
		} else {
			q.invoke(ctx, cl)
		}

		q.mu.Lock()
	}
}

func (q *queue) skip(ctx *Context, cl *call) {
	q.tab.tracer.Emit(trace.Event{
		Type:          trace.EventCallSkipped,
		ID:            q.tab.tracer.NewID(),
		ChainID:       ctx.chainID,
		ParentChainID: ctx.parentChainID(),
		ParentCallID:  ctx.parentCall,
		Depth:         ctx.depth,
		Method:        cl.method,
		DeclaredArgs:  cl.args,
		Result:        ctx.result,
		Err:           ctx.err,
	})
	q.settle(ctx.err, ctx.result)
}

func (q *queue) invoke(ctx *Context, cl *call) {
	tr := q.tab.tracer
	id := tr.NewID()
	ctx.enter(id, cl, q.tab.captureStacks)

	args := cl.args
	if cl.subchain != nil {
		child := &Chain{q: cl.subchain.fork(), parent: ctx, parentCall: id}
		args = append([]any{child}, cl.args...)
	}

	var begin time.Time
	started := false
	emitStart := func(validated []any) {
		started = true
		begin = tr.Now()
		tr.Emit(trace.Event{
			Type:          trace.EventCallStart,
			ID:            id,
			ChainID:       ctx.chainID,
			ParentChainID: ctx.parentChainID(),
			ParentCallID:  ctx.parentCall,
			Depth:         ctx.depth,
			Method:        cl.method,
			DeclaredArgs:  cl.args,
			Args:          validated,
			Result:        ctx.result,
			Time:          begin,
		})
	}

	complete, fired := once(func(err error, result any) {
		if err != nil {
			result = nil
		}
		tr.Emit(trace.Event{
			Type:          trace.EventCallEnd,
			ID:            id,
			ChainID:       ctx.chainID,
			ParentChainID: ctx.parentChainID(),
			ParentCallID:  ctx.parentCall,
			Depth:         ctx.depth,
			Method:        cl.method,
			DeclaredArgs:  cl.args,
			Result:        result,
			Err:           err,
			Duration:      tr.Now().Sub(begin),
		})
		q.settle(err, result)
	}, func() {
		q.tab.logger.Warn("completion callback invoked more than once",
			"method", cl.method,
			"chain_id", ctx.chainID,
			"call_id", id)
	})

	// Panics raised before completion become a *PanicError. A panic after
	// completion cannot change the recorded outcome; it is logged like a
	// second completion and the queue moves on.
	defer func() {
		if r := recover(); r != nil {
			if fired() {
				q.tab.logger.Warn("operation panicked after completing",
					"method", cl.method,
					"chain_id", ctx.chainID,
					"call_id", id,
					"panic", r)
				return
			}
			q.tab.logger.Warn("operation panicked",
				"method", cl.method,
				"chain_id", ctx.chainID,
				"panic", r)
			if !started {
				emitStart(nil)
			}
			complete(newPanicError(cl.method, r), nil)
		}
	}()

	if cl.op.validates() {
		validated, err := validateCall(ctx, cl.op, args)
		if err != nil {
			emitStart(nil)
			complete(err, nil)
			return
		}
		args = validated
	}
	emitStart(args)
	cl.op.Fn(ctx, args, complete)
}

// settle records the outcome of the call in flight and hands control back
// to the advance loop, or restarts it when the completion arrived after
// the operation returned.
func (q *queue) settle(err error, result any) {
	if err != nil {
		result = nil
	}

	q.mu.Lock()
	q.ctx.err = err
	q.ctx.result = result
	q.ctx.leave()
	q.processing = false
	resume := !q.draining
	q.mu.Unlock()

	if resume {
		q.advance()
	}
}

// clone copies the call list into a fresh, unstarted queue. Descriptors are
// shared: they are never mutated once their block is closed.
func (q *queue) clone() (*queue, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n := len(q.blocks); n > 0 {
		name := q.blocks[n-1].name
		err := structural(ErrCodeOpenBlock, "", "block %q is still open", name)
		err.Block = name
		return nil, err
	}
	return q.forkLocked(), nil
}

// fork copies a closed block body so the operation that closes the block
// can extend or run it without touching the stored definition.
func (q *queue) fork() *queue {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.forkLocked()
}

func (q *queue) forkLocked() *queue {
	calls := make([]*call, len(q.calls))
	copy(calls, q.calls)
	return &queue{tab: q.tab, calls: calls}
}

func (q *queue) emitChain(typ trace.EventType, ctx *Context, elapsed time.Duration) {
	ev := trace.Event{
		Type:          typ,
		ID:            ctx.chainID,
		ChainID:       ctx.chainID,
		ParentChainID: ctx.parentChainID(),
		ParentCallID:  ctx.parentCall,
		Depth:         ctx.depth,
		Result:        ctx.result,
		Duration:      elapsed,
	}
	if typ == trace.EventChainEnd {
		ev.Err = ctx.err
	}
	q.tab.tracer.Emit(ev)
}
