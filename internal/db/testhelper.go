package db

import (
	"path/filepath"
	"testing"
)

// OpenTestJournal opens a migrated journal in t.TempDir() and closes it when
// the test ends.
func OpenTestJournal(t *testing.T) *Pool {
	t.Helper()

	p, err := OpenJournal(filepath.Join(t.TempDir(), "runs.sqlite"))
	if err != nil {
		t.Fatalf("open test journal: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}
