package testutil

import (
	"time"

	"github.com/roach88/callchain/internal/trace"
)

// NewTracer returns a deterministic tracer and the recorder attached to
// it. Ids come from a SequentialGenerator with prefix "id" and every clock
// read advances time by one millisecond.
func NewTracer() (*trace.Tracer, *trace.Recorder) {
	rec := trace.NewRecorder()
	tr := trace.New(
		trace.WithIDGenerator(NewSequentialGenerator("id")),
		trace.WithNow(NewSteppingClock(time.Millisecond).Now),
		trace.WithSinks(rec),
	)
	return tr, rec
}
