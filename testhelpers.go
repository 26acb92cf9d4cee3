package serialdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// NewTestQueue opens an in-memory queue for tests. It is closed automatically
// when the test finishes.
func NewTestQueue(t *testing.T) *Queue {
	t.Helper()

	opts := DefaultOptions()
	opts.WALMode = false // WAL is not supported for in-memory databases

	q, err := Open(context.Background(), ":memory:", opts)
	if err != nil {
		t.Fatalf("Failed to open in-memory test queue: %v", err)
	}
	t.Cleanup(func() {
		_ = q.Close()
	})
	return q
}

// NewTestFileQueue opens a queue backed by a file in the test's temporary
// directory. The file and queue are cleaned up when the test finishes.
func NewTestFileQueue(t *testing.T) *Queue {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sqlite")
	q, err := Open(context.Background(), path, DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to open file test queue: %v", err)
	}
	t.Cleanup(func() {
		_ = q.Close()
		_ = os.Remove(path)
	})
	return q
}

// MustExecute runs SQL during test setup and fails the test on error.
func MustExecute(t *testing.T, q *Queue, sql string, binds Bindings) {
	t.Helper()

	err := q.InDatabase(context.Background(), func(ctx context.Context, db *DB) error {
		_, err := db.Execute(ctx, sql, binds)
		return err
	})
	if err != nil {
		t.Fatalf("Failed to execute %q: %v", sql, err)
	}
}
