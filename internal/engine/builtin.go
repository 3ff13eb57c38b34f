package engine

import "reflect"

// Names of the builtin block markers.
const (
	BeginSubchain = "$beginSubchain"
	EndSubchain   = "$endSubchain"
	SubchainBlock = "subchain"
)

// TapFunc observes the chain state.
type TapFunc func(err error, result any)

// RecoverFunc turns an error into a replacement result. Returning a
// non-nil error keeps the chain erroring.
type RecoverFunc func(err error) (any, error)

// TransformFunc maps the chain state to a new state.
type TransformFunc func(err error, result any) (any, error)

var chainType = reflect.TypeOf((*Chain)(nil))

func funcParam(name string, sample any) []Param {
	return []Param{{
		Name:       name,
		Required:   true,
		Type:       TypeFunction,
		InstanceOf: reflect.TypeOf(sample),
	}}
}

// convert returns v as F. Unnamed function literals with the same
// signature are accepted.
func convert[F any](v any) F {
	if f, ok := v.(F); ok {
		return f
	}
	var zero F
	return reflect.ValueOf(v).Convert(reflect.TypeOf(zero)).Interface().(F)
}

func builtins() []Operation {
	return []Operation{
		{
			Name:      "tap",
			Intercept: true,
			Params:    funcParam("fn", TapFunc(nil)),
			Fn: func(c *Context, args []any, done Done) {
				convert[TapFunc](args[0])(c.PreviousError(), c.PreviousResult())
				c.Skip(done)
			},
		},
		{
			Name:      "end",
			Intercept: true,
			Params:    funcParam("fn", Done(nil)),
			Fn: func(c *Context, args []any, done Done) {
				convert[Done](args[0])(c.PreviousError(), c.PreviousResult())
				c.Skip(done)
			},
		},
		{
			Name:      "recover",
			Intercept: true,
			Params:    funcParam("fn", RecoverFunc(nil)),
			Fn: func(c *Context, args []any, done Done) {
				if !c.HasError() {
					c.Skip(done)
					return
				}
				result, err := convert[RecoverFunc](args[0])(c.PreviousError())
				done(err, result)
			},
		},
		{
			Name:      "transform",
			Intercept: true,
			Params:    funcParam("fn", TransformFunc(nil)),
			Fn: func(c *Context, args []any, done Done) {
				result, err := convert[TransformFunc](args[0])(c.PreviousError(), c.PreviousResult())
				done(err, result)
			},
		},
		{
			Name:       BeginSubchain,
			BeginBlock: SubchainBlock,
			Fn: func(c *Context, _ []any, done Done) {
				c.Skip(done)
			},
		},
		{
			Name:     EndSubchain,
			EndBlock: SubchainBlock,
			Params:   []Param{{Name: "chain", Required: true, InstanceOf: chainType}},
			Fn: func(c *Context, args []any, done Done) {
				sub := args[0].(*Chain)
				if err := sub.Run(c.PreviousResult(), done); err != nil {
					done(err, nil)
				}
			},
		},
	}
}
