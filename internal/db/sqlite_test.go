package db

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		mode       Mode
		wantTxLock bool
	}{
		{ModeWrite, true},
		{ModeRead, false},
	}
	for _, tc := range tests {
		t.Run(string(tc.mode), func(t *testing.T) {
			dsn := buildDSN("/tmp/runs.sqlite", tc.mode)
			assert.True(t, strings.HasPrefix(dsn, "/tmp/runs.sqlite?"))
			assert.Contains(t, dsn, "_journal_mode=WAL")
			assert.Contains(t, dsn, "_busy_timeout=5000")
			assert.Contains(t, dsn, "_synchronous=NORMAL")
			assert.Contains(t, dsn, "_foreign_keys=on")
			if tc.wantTxLock {
				assert.Contains(t, dsn, "_txlock=immediate")
			} else {
				assert.NotContains(t, dsn, "_txlock")
			}
		})
	}
}

func TestOpen_InvalidMode(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "test.db"), "sideways", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite mode")
}

func TestOpen_Write(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), ModeWrite, 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", strings.ToLower(journalMode))

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestOpen_ReadDefaultMaxOpen(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), ModeRead, 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	assert.Equal(t, 4, db.Stats().MaxOpenConnections)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db", ModeWrite, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping sqlite")

	_, err = OpenPool("/nonexistent/dir/test.db", 4)
	require.Error(t, err)
}

func TestOpenJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs.sqlite")
	p, err := OpenJournal(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	assert.FileExists(t, path)
	v, err := SchemaVersion(p.Write)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// Migrating again is a no-op.
	require.NoError(t, RunMigrations(p.Write))

	for _, table := range []string{"pipeline_runs", "step_runs"} {
		var n int
		err := p.Read.QueryRow("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestPool_ConcurrentReads(t *testing.T) {
	p := OpenTestJournal(t)

	_, err := p.Write.Exec(`INSERT INTO pipeline_runs (id, status, trigger_type, started_at) VALUES ('r1', 'SUCCESS', 'MANUAL', '2026-01-01T00:00:00Z')`)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			var count int
			errs[idx] = p.Read.QueryRow("SELECT count(*) FROM pipeline_runs").Scan(&count)
		}(i)
	}
	wg.Wait()
	for i, e := range errs {
		assert.NoError(t, e, "reader %d failed", i)
	}
}
