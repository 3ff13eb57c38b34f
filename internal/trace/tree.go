package trace

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// ChainNode is one chain run in a reconstructed call tree.
type ChainNode struct {
	ID            string
	ParentChainID string
	ParentCallID  string
	Depth         int

	Started  bool
	Finished bool
	Duration time.Duration
	Result   any
	Err      error

	Calls []*CallNode

	// Children holds chains whose spawning call is unknown (for example an
	// ad hoc chain created outside of any call).
	Children []*ChainNode
}

// CallNode is one queued call in a reconstructed call tree.
type CallNode struct {
	ID      string
	Method  string
	Args    []any
	Skipped bool

	Finished bool
	Duration time.Duration
	Result   any
	Err      error

	// Children are the chains spawned while this call was executing:
	// sub-chain bodies and ad hoc chains created through the context.
	Children []*ChainNode
}

// BuildTree reconstructs the chain/call tree from an event stream.
//
// Events are processed in Seq order. Roots are returned in the order their
// first event was seen. Events for chains whose start was never observed
// produce implicit nodes, so partial streams still yield a usable tree.
func BuildTree(events []Event) []*ChainNode {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	chains := make(map[string]*ChainNode)
	calls := make(map[string]*CallNode)
	var roots []*ChainNode

	chainFor := func(ev Event) *ChainNode {
		if n, ok := chains[ev.ChainID]; ok {
			return n
		}
		n := &ChainNode{
			ID:            ev.ChainID,
			ParentChainID: ev.ParentChainID,
			ParentCallID:  ev.ParentCallID,
			Depth:         ev.Depth,
		}
		chains[ev.ChainID] = n

		switch {
		case ev.ParentCallID != "" && calls[ev.ParentCallID] != nil:
			parent := calls[ev.ParentCallID]
			parent.Children = append(parent.Children, n)
		case ev.ParentChainID != "" && chains[ev.ParentChainID] != nil:
			parent := chains[ev.ParentChainID]
			parent.Children = append(parent.Children, n)
		default:
			roots = append(roots, n)
		}
		return n
	}

	for _, ev := range sorted {
		switch ev.Type {
		case EventChainStart:
			chainFor(ev).Started = true

		case EventChainEnd:
			n := chainFor(ev)
			n.Finished = true
			n.Duration = ev.Duration
			n.Result = ev.Result
			n.Err = ev.Err

		case EventCallStart, EventCallSkipped:
			owner := chainFor(ev)
			c := &CallNode{
				ID:      ev.ID,
				Method:  ev.Method,
				Args:    ev.Args,
				Skipped: ev.Type == EventCallSkipped,
			}
			if c.Skipped {
				c.Args = ev.DeclaredArgs
				c.Err = ev.Err
			}
			calls[ev.ID] = c
			owner.Calls = append(owner.Calls, c)

		case EventCallEnd:
			c, ok := calls[ev.ID]
			if !ok {
				c = &CallNode{ID: ev.ID, Method: ev.Method}
				calls[ev.ID] = c
				owner := chainFor(ev)
				owner.Calls = append(owner.Calls, c)
			}
			c.Finished = true
			c.Duration = ev.Duration
			c.Result = ev.Result
			c.Err = ev.Err
		}
	}

	return roots
}

// Render writes an indented, human-readable rendering of the tree.
func Render(w io.Writer, roots []*ChainNode) error {
	for _, root := range roots {
		if err := renderChain(w, root, 0); err != nil {
			return err
		}
	}
	return nil
}

func renderChain(w io.Writer, n *ChainNode, indent int) error {
	pad := strings.Repeat("  ", indent)
	if _, err := fmt.Fprintf(w, "%schain %s depth=%d %s\n", pad, n.ID, n.Depth, outcome(n.Finished, n.Duration, n.Result, n.Err)); err != nil {
		return err
	}
	for _, c := range n.Calls {
		if err := renderCall(w, c, indent+1); err != nil {
			return err
		}
	}
	for _, child := range n.Children {
		if err := renderChain(w, child, indent+1); err != nil {
			return err
		}
	}
	return nil
}

func renderCall(w io.Writer, c *CallNode, indent int) error {
	pad := strings.Repeat("  ", indent)
	status := outcome(c.Finished, c.Duration, c.Result, c.Err)
	if c.Skipped {
		status = "[skipped]"
	}
	if _, err := fmt.Fprintf(w, "%s%s %s\n", pad, c.Method, status); err != nil {
		return err
	}
	for _, child := range c.Children {
		if err := renderChain(w, child, indent+1); err != nil {
			return err
		}
	}
	return nil
}

func outcome(finished bool, d time.Duration, result any, err error) string {
	switch {
	case !finished:
		return "[pending]"
	case err != nil:
		return fmt.Sprintf("[error %s] %v", d, err)
	default:
		return fmt.Sprintf("[ok %s] %v", d, result)
	}
}
