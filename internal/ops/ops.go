// Package ops is a small library of ready-made operations used by the
// scenario harness and the CLI.
//
// Operation bodies are registered in code; their parameter metadata lives
// in the embedded ops.cue manifest and is applied through the compiler, so
// validation rules read the same way as user manifests.
package ops

import (
	_ "embed"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/callchain/internal/compiler"
	"github.com/roach88/callchain/internal/engine"
)

//go:embed ops.cue
var manifestSource string

// Block marker names.
const (
	BeginMap = "$beginMap"
	EndMap   = "$endMap"
	MapBlock = "map"
)

var chainType = reflect.TypeOf((*engine.Chain)(nil))

// Manifest returns the compiled metadata of the library.
func Manifest() (*compiler.Manifest, error) {
	return compiler.CompileString("ops.cue", manifestSource)
}

// Register adds every library operation to reg and applies the embedded
// manifest.
func Register(reg *engine.Registry) error {
	for _, op := range operations() {
		if err := reg.Register(op); err != nil {
			return err
		}
	}
	m, err := Manifest()
	if err != nil {
		return fmt.Errorf("ops manifest: %w", err)
	}
	return compiler.Apply(reg, *m)
}

// NewRegistry returns a registry with the library registered.
func NewRegistry(opts ...engine.Option) (*engine.Registry, error) {
	reg := engine.NewRegistry(opts...)
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func operations() []engine.Operation {
	return []engine.Operation{
		{Name: "value", Fn: value},
		{Name: "append", Fn: appendString},
		{Name: "upper", Fn: upper},
		{Name: "title", Fn: title},
		{Name: "push", Fn: push},
		{Name: "fail", Fn: fail},
		{Name: "panic", Fn: panicOp},
		{Name: "sleep", Fn: sleep},
		{Name: "recoverWith", Fn: recoverWith},
		{Name: BeginMap, Fn: beginMap},
		{
			Name:   EndMap,
			Fn:     endMap,
			Params: []engine.Param{{Name: "body", Required: true, InstanceOf: chainType}},
		},
	}
}

func value(_ *engine.Context, args []any, done engine.Done) {
	done(nil, args[0])
}

func appendString(c *engine.Context, args []any, done engine.Done) {
	done(nil, c.PreviousResult().(string)+args[0].(string))
}

func upper(c *engine.Context, _ []any, done engine.Done) {
	done(nil, cases.Upper(language.Und).String(c.PreviousResult().(string)))
}

func title(c *engine.Context, args []any, done engine.Done) {
	tag, err := language.Parse(args[0].(string))
	if err != nil {
		done(fmt.Errorf("title: %w", err), nil)
		return
	}
	done(nil, cases.Title(tag).String(c.PreviousResult().(string)))
}

func push(c *engine.Context, args []any, done engine.Done) {
	prev := c.PreviousResult()
	var items []any
	switch v := prev.(type) {
	case nil:
	case []any:
		items = make([]any, len(v), len(v)+1)
		copy(items, v)
	default:
		done(fmt.Errorf("push: previous result is %s, not an array", engine.TypeOf(prev)), nil)
		return
	}
	done(nil, append(items, args[0]))
}

func fail(_ *engine.Context, args []any, done engine.Done) {
	done(errors.New(args[0].(string)), nil)
}

func panicOp(_ *engine.Context, args []any, _ engine.Done) {
	panic(args[0])
}

// sleep waits on a goroutine and passes the previous result through.
func sleep(c *engine.Context, args []any, done engine.Done) {
	d, err := millis(args[0])
	if err != nil {
		done(err, nil)
		return
	}
	prev := c.PreviousResult()
	c.Go(done, func() (any, error) {
		time.Sleep(d)
		return prev, nil
	})
}

func millis(v any) (time.Duration, error) {
	switch n := v.(type) {
	case int:
		return time.Duration(n) * time.Millisecond, nil
	case int64:
		return time.Duration(n) * time.Millisecond, nil
	case float64:
		return time.Duration(n * float64(time.Millisecond)), nil
	}
	return 0, fmt.Errorf("sleep: ms must be a number, got %s", engine.TypeOf(v))
}

// recoverWith replaces an error with a fixed value. Without an error it is
// a pass-through.
func recoverWith(c *engine.Context, args []any, done engine.Done) {
	if !c.HasError() {
		c.Skip(done)
		return
	}
	c.Logger().Debug("recovered",
		"method", c.Method(),
		"error", c.PreviousError())
	done(nil, args[0])
}

func beginMap(c *engine.Context, _ []any, done engine.Done) {
	c.Skip(done)
}

// endMap runs the block body once per element of the previous array, in
// order, and completes with the collected results. The first failing
// element stops the map.
func endMap(c *engine.Context, args []any, done engine.Done) {
	body := args[0].(*engine.Chain)
	items := reflect.ValueOf(c.PreviousResult())
	results := make([]any, 0, items.Len())

	var next func(i int)
	next = func(i int) {
		if i == items.Len() {
			done(nil, results)
			return
		}
		err := body.Run(items.Index(i).Interface(), func(err error, result any) {
			if err != nil {
				done(fmt.Errorf("map element %d: %w", i, err), nil)
				return
			}
			results = append(results, result)
			next(i + 1)
		})
		if err != nil {
			done(err, nil)
		}
	}
	next(0)
}

// Describe renders an operation for listings.
func Describe(op engine.Operation) string {
	var b strings.Builder
	b.WriteString(op.Name)
	b.WriteString("(")
	for i, p := range op.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		if p.Type != "" {
			b.WriteString(" " + p.Type)
		}
		if !p.Required {
			b.WriteString("?")
		}
	}
	b.WriteString(")")
	if op.Previous != nil && op.Previous.Type != "" {
		b.WriteString(" <- " + op.Previous.Type)
	}
	if op.Intercept {
		b.WriteString(" [intercept]")
	}
	return b.String()
}
