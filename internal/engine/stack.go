package engine

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Frame is one stack frame reported by Context.CleanStacks.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Stacks holds the diagnostic stacks of the call currently executing.
type Stacks struct {
	// CallSite is where the call was appended to its chain.
	CallSite []Frame
	// ExecSite is where the engine invoked the operation.
	ExecSite []Frame
}

var engineDir = func() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Dir(file)
}()

// CleanStacks returns the call-site and execution-site stacks of the
// current call with engine and Go runtime frames removed. Both are empty
// unless the registry was built WithStackCapture(true).
func (c *Context) CleanStacks() Stacks {
	var s Stacks
	if c.current != nil {
		s.CallSite = cleanFrames(c.current.site)
	}
	s.ExecSite = cleanFrames(c.execSite)
	return s
}

func callers(skip int) []uintptr {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip, pcs)
	return pcs[:n]
}

func cleanFrames(pcs []uintptr) []Frame {
	if len(pcs) == 0 {
		return nil
	}
	var out []Frame
	frames := runtime.CallersFrames(pcs)
	for {
		f, more := frames.Next()
		if !engineFrame(f) {
			out = append(out, Frame{Function: f.Function, File: f.File, Line: f.Line})
		}
		if !more {
			break
		}
	}
	return out
}

func engineFrame(f runtime.Frame) bool {
	if strings.HasPrefix(f.Function, "runtime.") || strings.HasPrefix(f.Function, "testing.") {
		return true
	}
	return filepath.Dir(f.File) == engineDir && !strings.HasSuffix(f.File, "_test.go")
}
