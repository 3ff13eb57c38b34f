package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/callchain/internal/trace"
)

// Sink persists trace events of one run as they are emitted.
//
// trace.Sink has no error return, so the first write error is kept and
// reported by Err; later events are still attempted.
//
// Thread-safety: Sink is safe for concurrent use.
type Sink struct {
	store  *Store
	runID  string
	ctx    context.Context
	logger *slog.Logger

	// gate is held for reading across each write so Detach can wait out
	// writes already in flight.
	gate     sync.RWMutex
	detached bool

	mu  sync.Mutex
	err error
}

// NewSink creates a sink that writes to s under runID. A nil logger uses
// slog.Default().
func NewSink(ctx context.Context, s *Store, runID string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: s, runID: runID, ctx: ctx, logger: logger}
}

// Handle implements trace.Sink.
func (k *Sink) Handle(_ trace.EventType, ev trace.Event) {
	k.gate.RLock()
	defer k.gate.RUnlock()
	if k.detached {
		return
	}

	err := k.store.WriteEvent(k.ctx, NewEventRecord(k.runID, ev))
	if err == nil {
		return
	}

	k.logger.Error("failed to store trace event",
		"run_id", k.runID,
		"seq", ev.Seq,
		"type", ev.Type,
		"error", err)

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err == nil {
		k.err = err
	}
}

// Detach stops the sink from writing. It returns once every write already
// in progress has finished, after which the store may be closed while
// events are still being emitted. Events handled after Detach are dropped.
func (k *Sink) Detach() {
	k.gate.Lock()
	defer k.gate.Unlock()
	k.detached = true
}

// Err returns the first write error, if any.
func (k *Sink) Err() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.err
}
