package serialdb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTableMigration(name string) Migration {
	return func(ctx context.Context, db *DB) error {
		_, err := db.Execute(ctx, "CREATE TABLE "+quoteIdent(name)+" (id INTEGER PRIMARY KEY)", Bindings{})
		return err
	}
}

func TestMigrateAppliesInOrder(t *testing.T) {
	q := NewTestQueue(t)
	ctx := context.Background()

	m := NewMigrator()
	m.Register("createUsers", createTableMigration("users"))
	m.Register("createPosts", createTableMigration("posts"))
	m.Register("addPostAuthor", func(ctx context.Context, db *DB) error {
		_, err := db.Execute(ctx, "ALTER TABLE posts ADD COLUMN author_id INTEGER", Bindings{})
		return err
	})

	require.NoError(t, m.Migrate(ctx, q))

	names, err := m.AppliedNames(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"createUsers", "createPosts", "addPostAuthor"}, names)

	done, err := m.HasCompleted(ctx, q)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestMigrateIsIdempotent(t *testing.T) {
	q := NewTestQueue(t)
	ctx := context.Background()

	runs := 0
	m := NewMigrator()
	m.Register("counted", func(ctx context.Context, db *DB) error {
		runs++
		_, err := db.Execute(ctx, "CREATE TABLE once (id INTEGER)", Bindings{})
		return err
	})

	require.NoError(t, m.Migrate(ctx, q))
	require.NoError(t, m.Migrate(ctx, q))
	assert.Equal(t, 1, runs)
}

func TestMigrateFailureHaltsAndRollsBack(t *testing.T) {
	q := NewTestQueue(t)
	ctx := context.Background()
	boom := errors.New("schema change failed")

	m := NewMigrator()
	m.Register("first", createTableMigration("first"))
	m.Register("second", func(ctx context.Context, db *DB) error {
		if _, err := db.Execute(ctx, "CREATE TABLE partial (id INTEGER)", Bindings{}); err != nil {
			return err
		}
		return boom
	})
	m.Register("third", createTableMigration("third"))

	err := m.Migrate(ctx, q)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMigration)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "second")

	// The first migration stays committed; the failed one left nothing behind.
	names, nerr := m.AppliedNames(ctx, q)
	require.NoError(t, nerr)
	assert.Equal(t, []string{"first"}, names)

	err = q.InDatabase(ctx, func(ctx context.Context, db *DB) error {
		exists := func(table string) bool {
			_, found, err := db.FetchOne(ctx,
				"SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?", Args(table))
			require.NoError(t, err)
			return found
		}
		assert.True(t, exists("first"))
		assert.False(t, exists("partial"))
		assert.False(t, exists("third"))
		return nil
	})
	require.NoError(t, err)

	done, derr := m.HasCompleted(ctx, q)
	require.NoError(t, derr)
	assert.False(t, done)
}

func TestMigrateResumesAfterFailure(t *testing.T) {
	q := NewTestQueue(t)
	ctx := context.Background()

	fail := true
	m := NewMigrator()
	m.Register("first", createTableMigration("first"))
	m.Register("flaky", func(ctx context.Context, db *DB) error {
		if fail {
			return errors.New("transient")
		}
		_, err := db.Execute(ctx, "CREATE TABLE flaky (id INTEGER)", Bindings{})
		return err
	})
	m.Register("third", createTableMigration("third"))

	require.Error(t, m.Migrate(ctx, q))

	fail = false
	require.NoError(t, m.Migrate(ctx, q))

	names, err := m.AppliedNames(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "flaky", "third"}, names)
}

func TestRegisterRejectsBadNames(t *testing.T) {
	m := NewMigrator()
	m.Register("v1", func(ctx context.Context, db *DB) error { return nil })

	assert.Panics(t, func() {
		m.Register("v1", func(ctx context.Context, db *DB) error { return nil })
	})
	assert.Panics(t, func() {
		m.Register("", func(ctx context.Context, db *DB) error { return nil })
	})
}

func TestHasCompletedWithUnregisteredApplied(t *testing.T) {
	q := NewTestQueue(t)
	ctx := context.Background()

	m1 := NewMigrator()
	m1.Register("v1", createTableMigration("v1"))
	require.NoError(t, m1.Migrate(ctx, q))

	// A registry that grew since the last run is not complete.
	m2 := NewMigrator()
	m2.Register("v1", createTableMigration("v1"))
	m2.Register("v2", createTableMigration("v2"))

	done, err := m2.HasCompleted(ctx, q)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, m2.Migrate(ctx, q))
	done, err = m2.HasCompleted(ctx, q)
	require.NoError(t, err)
	assert.True(t, done)
}
