package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/callchain/internal/compiler"
	"github.com/roach88/callchain/internal/engine"
	"github.com/roach88/callchain/internal/ir"
	"github.com/roach88/callchain/internal/ops"
	"github.com/roach88/callchain/internal/store"
	"github.com/roach88/callchain/internal/testutil"
	"github.com/roach88/callchain/internal/trace"
)

// DefaultTimeout bounds a scenario run when no WithTimeout option is given.
const DefaultTimeout = 5 * time.Second

type config struct {
	store   *store.Store
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures Run.
type Option func(*config)

// WithStore persists the run to st instead of a fresh in-memory store.
// The caller owns st and closes it.
func WithStore(st *store.Store) Option {
	return func(c *config) {
		c.store = st
	}
}

// WithLogger sets the logger handed to the engine and the store sink.
// The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithTimeout bounds how long the chain may run.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Run executes a scenario against the ops library and returns the result.
//
// Each run gets deterministic correlation ids and a stepping clock, so the
// same scenario always produces the same trace. Without WithStore the run
// is persisted to a fresh in-memory database.
//
// Execution flow:
//  1. Build a registry with the ops library and the scenario's manifests
//  2. Queue the steps
//  3. Record the run, execute the chain and record its outcome
//  4. Check the expected outcome and evaluate assertions
//
// A returned error means the scenario could not be executed at all; a
// scenario that ran but did not match is reported through Result.Pass.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := config{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	st := cfg.store
	if st == nil {
		var err error
		st, err = store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
	}

	runID := trace.UUIDv7Generator{}.Generate()
	rec := trace.NewRecorder()
	sink := store.NewSink(ctx, st, runID, cfg.logger)
	tracer := trace.New(
		trace.WithIDGenerator(testutil.NewSequentialGenerator("id")),
		trace.WithNow(testutil.NewSteppingClock(time.Millisecond).Now),
		trace.WithSinks(rec, sink),
	)

	reg, err := ops.NewRegistry(engine.WithTracer(tracer), engine.WithLogger(cfg.logger))
	if err != nil {
		return nil, err
	}
	if err := applyManifests(reg, scenario.Manifests); err != nil {
		return nil, err
	}

	chain := reg.Chain()
	for i, step := range scenario.Steps {
		if err := chain.Add(step.Call, step.Args...); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	calls := chain.Calls()
	defHash, err := ir.DefinitionHash(calls)
	if err != nil {
		return nil, err
	}
	if _, err := st.CreateRun(ctx, store.Run{
		ID:             runID,
		Name:           scenario.Name,
		DefinitionHash: defHash,
		Definition:     ir.Definition(calls),
		Initial:        ir.Snapshot(scenario.Initial),
	}); err != nil {
		return nil, err
	}

	cfg.logger.Debug("running scenario",
		"scenario", scenario.Name,
		"run_id", runID,
		"steps", len(scenario.Steps))

	runCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()
	value, runErr := chain.Wait(runCtx, scenario.Initial)
	if err := runCtx.Err(); err != nil && errors.Is(runErr, err) {
		// Calls still running (Context.Go tasks included) keep emitting
		// after this returns; stop persisting them before the store closes.
		sink.Detach()
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, runErr)
	}

	result := NewResult()
	result.RunID = runID
	result.events = rec.Events()
	for _, ev := range result.events {
		result.Trace = append(result.Trace, NewTraceEvent(ev))
	}
	result.Value = ir.ToGo(ir.Snapshot(value))
	if runErr != nil {
		result.Error = runErr.Error()
	}

	if err := st.FinishRun(ctx, runID, ir.Snapshot(value), result.Error); err != nil {
		return nil, err
	}
	if err := sink.Err(); err != nil {
		return nil, err
	}

	checkExpect(result, scenario.Expect, value)
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, &AssertionContext{
		Store: st,
		RunID: runID,
		Ctx:   ctx,
	}) {
		result.AddError(msg)
	}

	cfg.logger.Debug("scenario finished",
		"scenario", scenario.Name,
		"run_id", runID,
		"pass", result.Pass,
		"events", len(result.events))

	return result, nil
}

// applyManifests applies CUE manifests on top of the ops library. A path
// may name a single file or a directory of files of one package.
func applyManifests(reg *engine.Registry, paths []string) error {
	var manifests []compiler.Manifest
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("manifest %s: %w", path, err)
		}
		if info.IsDir() {
			loaded, err := compiler.LoadManifests(path)
			if err != nil {
				return err
			}
			manifests = append(manifests, loaded...)
			continue
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("manifest %s: %w", path, err)
		}
		m, err := compiler.CompileString(path, string(src))
		if err != nil {
			return err
		}
		manifests = append(manifests, *m)
	}
	if len(manifests) == 0 {
		return nil
	}
	return compiler.Apply(reg, manifests...)
}

// checkExpect compares the terminal outcome with the scenario's
// expectation. Values are compared as canonical IR, so 1 and 1.0 match.
func checkExpect(result *Result, expect *Expect, value any) {
	if expect == nil {
		return
	}
	if result.Error != expect.Error {
		if expect.Error == "" {
			result.AddError(fmt.Sprintf("expected success, got error %q", result.Error))
		} else {
			result.AddError(fmt.Sprintf("expected error %q, got %q", expect.Error, result.Error))
		}
	}
	if !expect.HasResult() {
		return
	}
	want, err := expect.ResultValue()
	if err != nil {
		result.AddError(err.Error())
		return
	}
	wantJSON, err := ir.MarshalCanonical(ir.Snapshot(want))
	if err != nil {
		result.AddError(fmt.Sprintf("expected result: %v", err))
		return
	}
	gotJSON, err := ir.MarshalCanonical(ir.Snapshot(value))
	if err != nil {
		result.AddError(fmt.Sprintf("result: %v", err))
		return
	}
	if !bytes.Equal(wantJSON, gotJSON) {
		result.AddError(fmt.Sprintf("expected result %s, got %s", wantJSON, gotJSON))
	}
}
