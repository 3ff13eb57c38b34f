package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/callchain/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run record with minimal required fields.
func createTestRun(id string) Run {
	return Run{
		ID:             id,
		Name:           "test",
		DefinitionHash: "test-hash",
		Definition:     ir.IRArray{},
		Initial:        ir.IRNull{},
	}
}
