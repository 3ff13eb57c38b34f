package engine

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/callchain/internal/trace"
)

// ContextMethod is an extension capability exposed through Context.Ext.
type ContextMethod func(c *Context, args ...any) (any, error)

// reservedNames are the core Context methods an extension may not shadow.
var reservedNames = map[string]bool{
	"previousresult": true,
	"previouserror":  true,
	"haserror":       true,
	"skip":           true,
	"getmethod":      true,
	"newchain":       true,
	"cleanstacks":    true,
	"parent":         true,
	"depth":          true,
	"ext":            true,
	"callext":        true,
	"go":             true,
}

// table is the immutable method table shared by every chain built from one
// registry snapshot, together with the run-time collaborators.
type table struct {
	ops           map[string]*Operation
	ext           map[string]ContextMethod
	tracer        *trace.Tracer
	logger        *slog.Logger
	captureStacks bool
}

// Registry is the bootstrapper that owns the operation table.
//
// Registration is safe for concurrent use. Chains take an immutable
// snapshot of the table when they are created, so operations registered
// afterwards are not visible to existing chains.
type Registry struct {
	mu       sync.Mutex
	ops      map[string]*Operation
	ext      map[string]ContextMethod
	snapshot *table

	tracer        *trace.Tracer
	logger        *slog.Logger
	captureStacks bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithTracer sets the tracer that receives chain and call events.
// Default: a tracer with no sinks.
func WithTracer(t *trace.Tracer) Option {
	return func(r *Registry) {
		r.tracer = t
	}
}

// WithLogger sets the logger used for engine diagnostics.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithStackCapture records call-site and execution-site stacks for every
// call so Context.CleanStacks can report them. Off by default.
func WithStackCapture(enabled bool) Option {
	return func(r *Registry) {
		r.captureStacks = enabled
	}
}

// NewRegistry creates a registry with the builtin operations registered.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		ops: make(map[string]*Operation),
		ext: make(map[string]ContextMethod),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = trace.New()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	for _, op := range builtins() {
		if err := r.Register(op); err != nil {
			panic(err) // builtins are fixed; a failure here is a bug
		}
	}
	return r
}

// Register adds an operation. Duplicate names and malformed definitions are
// rejected with a *StructuralError.
func (r *Registry) Register(op Operation) error {
	if err := op.check(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ops[op.Name]; exists {
		return structural(ErrCodeDuplicateMethod, op.Name, "method %q is already registered", op.Name)
	}
	r.ops[op.Name] = op.clone()
	r.snapshot = nil
	return nil
}

// RegisterFunc adds a plain operation with no metadata.
func (r *Registry) RegisterFunc(name string, fn Func) error {
	return r.Register(Operation{Name: name, Fn: fn})
}

// RegisterMap adds every operation of a {name → func} table. Names are
// registered in sorted order so the first duplicate reported is
// deterministic. Registration stops at the first error.
func (r *Registry) RegisterMap(fns map[string]Func) error {
	names := make([]string, 0, len(fns))
	for name := range fns {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := r.RegisterFunc(name, fns[name]); err != nil {
			return err
		}
	}
	return nil
}

// Annotate updates the metadata of a registered operation. The function
// receives a private copy; the registry stores it only if the result is
// still well formed. Chains created earlier keep the old definition.
func (r *Registry) Annotate(name string, fn func(op *Operation)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.ops[name]
	if !ok {
		return structural(ErrCodeUnknownMethod, name, "method %q is not registered", name)
	}
	updated := existing.clone()
	fn(updated)
	updated.Name = name
	if err := updated.check(); err != nil {
		return err
	}
	r.ops[name] = updated
	r.snapshot = nil
	return nil
}

// RegisterContextMethod adds an extension capability available to every
// operation through Context.Ext. Names are matched case-insensitively
// against the core Context methods and rejected if they collide.
func (r *Registry) RegisterContextMethod(name string, m ContextMethod) error {
	if name == "" || m == nil {
		return structural(ErrCodeInvalidSpec, name, "context method needs a name and a function")
	}
	if reservedNames[strings.ToLower(name)] {
		return structural(ErrCodeReservedName, name, "context method %q shadows a core context method", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ext[name]; exists {
		return structural(ErrCodeDuplicateMethod, name, "context method %q is already registered", name)
	}
	r.ext[name] = m
	r.snapshot = nil
	return nil
}

// Lookup returns a copy of a registered operation.
func (r *Registry) Lookup(name string) (Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.ops[name]
	if !ok {
		return Operation{}, false
	}
	return *op.clone(), true
}

// Names returns the registered operation names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tracer returns the registry's tracer.
func (r *Registry) Tracer() *trace.Tracer {
	return r.tracer
}

// Chain returns a new, empty chain bound to the current method table.
func (r *Registry) Chain() *Chain {
	return &Chain{q: &queue{tab: r.table()}}
}

func (r *Registry) table() *table {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snapshot != nil {
		return r.snapshot
	}
	ops := make(map[string]*Operation, len(r.ops))
	for name, op := range r.ops {
		ops[name] = op
	}
	ext := make(map[string]ContextMethod, len(r.ext))
	for name, m := range r.ext {
		ext[name] = m
	}
	r.snapshot = &table{
		ops:           ops,
		ext:           ext,
		tracer:        r.tracer,
		logger:        r.logger,
		captureStacks: r.captureStacks,
	}
	return r.snapshot
}
