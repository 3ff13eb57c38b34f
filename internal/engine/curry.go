package engine

// Method is a chain method whose receiver is bound later. It records only
// the operation name, so one Method value works with any chain.
type Method func(c *Chain, args ...any) *Chain

// Curry returns a Method that queues the named operation.
func Curry(name string) Method {
	return func(c *Chain, args ...any) *Chain {
		return c.Call(name, args...)
	}
}

// Bind fixes the receiver of m.
func (m Method) Bind(c *Chain) func(args ...any) *Chain {
	return func(args ...any) *Chain {
		return m(c, args...)
	}
}

// BoundFunc is an operation bound to a Context (see Context.GetMethod).
type BoundFunc func(args []any, done Done)

func bindOperation(ctx *Context, op *Operation) BoundFunc {
	return func(args []any, done Done) {
		complete, fired := once(done, nil)
		defer func() {
			if r := recover(); r != nil {
				if fired() {
					ctx.Logger().Warn("operation panicked after completing",
						"method", op.Name,
						"panic", r)
					return
				}
				complete(newPanicError(op.Name, r), nil)
			}
		}()

		if op.validates() {
			validated, err := validateCall(ctx, op, args)
			if err != nil {
				complete(err, nil)
				return
			}
			args = validated
		}
		op.Fn(ctx, args, complete)
	}
}
