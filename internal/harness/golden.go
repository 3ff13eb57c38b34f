package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/callchain/internal/ir"
	"github.com/roach88/callchain/internal/trace"
)

// GoldenBytes renders a result as canonical JSON lines: a header with the
// scenario name and terminal outcome, then one line per trace event.
//
// Ids and timings are left out, so two runs of the same scenario render
// the same bytes.
func GoldenBytes(name string, result *Result) ([]byte, error) {
	var buf bytes.Buffer

	var errValue ir.IRValue = ir.IRNull{}
	if result.Error != "" {
		errValue = ir.IRString(result.Error)
	}
	header := ir.IRObject{
		"scenario": ir.IRString(name),
		"result":   ir.Snapshot(result.Value),
		"error":    errValue,
	}
	if err := writeLine(&buf, header); err != nil {
		return nil, fmt.Errorf("golden header: %w", err)
	}

	for _, ev := range result.events {
		if err := writeLine(&buf, goldenEvent(ev)); err != nil {
			return nil, fmt.Errorf("golden event %d: %w", ev.Seq, err)
		}
	}
	return buf.Bytes(), nil
}

func goldenEvent(ev trace.Event) ir.IRObject {
	obj := ir.IRObject{
		"seq":    ir.IRInt(ev.Seq),
		"type":   ir.IRString(ev.Type),
		"depth":  ir.IRInt(ev.Depth),
		"result": ir.Snapshot(ev.Result),
	}
	if !ev.IsChainEvent() {
		obj["method"] = ir.IRString(ev.Method)
	}
	if ev.Args != nil {
		obj["args"] = ir.SnapshotArgs(ev.Args)
	}
	if text := ev.ErrorText(); text != "" {
		obj["error"] = ir.IRString(text)
	}
	return obj
}

func writeLine(buf *bytes.Buffer, obj ir.IRObject) error {
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return err
	}
	buf.Write(data)
	buf.WriteByte('\n')
	return nil
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can make further assertions. An execution
// error is returned as is; a golden mismatch fails t through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := GoldenBytes(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
