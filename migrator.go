package serialdb

import (
	"context"
	"fmt"
	"log/slog"
)

// MigrationsTable is the reserved table recording applied migrations. It is
// managed exclusively by the Migrator and must not be mutated by callers.
const MigrationsTable = "serialdb_migrations"

// Migration is one named schema change. It runs inside its own transaction;
// returning an error rolls that transaction back.
type Migration func(ctx context.Context, db *DB) error

type registeredMigration struct {
	name string
	fn   Migration
}

// Migrator applies an ordered registry of named schema changes, each at most
// once, tracked in MigrationsTable. Registration order is application order.
type Migrator struct {
	migrations []registeredMigration
	names      map[string]bool
}

// NewMigrator returns an empty registry.
func NewMigrator() *Migrator {
	return &Migrator{names: make(map[string]bool)}
}

// Register appends a named migration. Names must be unique and non-empty;
// violating that is a programming error and panics.
func (m *Migrator) Register(name string, fn Migration) {
	if name == "" {
		panic("serialdb: migration name must not be empty")
	}
	if m.names[name] {
		panic("serialdb: migration " + name + " registered twice")
	}
	m.names[name] = true
	m.migrations = append(m.migrations, registeredMigration{name: name, fn: fn})
}

// Migrate ensures the migrations table exists and applies every registered
// migration not yet recorded, in registration order, one transaction per
// migration. A failing migration is rolled back, left unrecorded, and halts
// the run with an ErrMigration-wrapped error; earlier migrations stay
// committed. Re-invoking Migrate resumes at the first unapplied migration,
// so it is safe to call on every startup.
func (m *Migrator) Migrate(ctx context.Context, q *Queue) error {
	applied, err := m.appliedSet(ctx, q)
	if err != nil {
		return err
	}

	order := int64(0)
	for _, v := range applied {
		if v > order {
			order = v
		}
	}

	for _, mig := range m.migrations {
		if _, done := applied[mig.name]; done {
			continue
		}
		order++

		name, fn, appliedOrder := mig.name, mig.fn, order
		err := q.InTransaction(ctx, func(ctx context.Context, db *DB) (Completion, error) {
			if err := fn(ctx, db); err != nil {
				return Rollback, err
			}
			_, err := db.Execute(ctx,
				"INSERT INTO "+MigrationsTable+" (name, applied_order) VALUES (?, ?)",
				Args(name, appliedOrder))
			return Commit, err
		})
		if err != nil {
			return fmt.Errorf("%w: %q: %w", ErrMigration, name, err)
		}
		q.log.Info("migration applied", slog.String("name", name), slog.Int64("order", appliedOrder))
	}
	return nil
}

// AppliedNames returns the recorded migration names in applied order.
func (m *Migrator) AppliedNames(ctx context.Context, q *Queue) ([]string, error) {
	if err := m.ensureTable(ctx, q); err != nil {
		return nil, err
	}
	var names []string
	err := q.InDatabase(ctx, func(ctx context.Context, db *DB) error {
		var err error
		names, err = FetchValues[string](ctx, db,
			"SELECT name FROM "+MigrationsTable+" ORDER BY applied_order", Bindings{}, ColumnName("name"))
		return err
	})
	return names, err
}

// HasCompleted reports whether every registered migration has been applied.
func (m *Migrator) HasCompleted(ctx context.Context, q *Queue) (bool, error) {
	applied, err := m.appliedSet(ctx, q)
	if err != nil {
		return false, err
	}
	for _, mig := range m.migrations {
		if _, done := applied[mig.name]; !done {
			return false, nil
		}
	}
	return true, nil
}

// appliedSet loads name -> applied_order for every recorded migration,
// creating the migrations table on first use.
func (m *Migrator) appliedSet(ctx context.Context, q *Queue) (map[string]int64, error) {
	if err := m.ensureTable(ctx, q); err != nil {
		return nil, err
	}
	applied := make(map[string]int64)
	err := q.InDatabase(ctx, func(ctx context.Context, db *DB) error {
		cur, err := db.Fetch(ctx, "SELECT name, applied_order FROM "+MigrationsTable, Bindings{})
		if err != nil {
			return err
		}
		defer cur.Close()
		for cur.Next() {
			row := cur.Row()
			name, err := RequireColumn[string](row, "name")
			if err != nil {
				return err
			}
			order, err := RequireColumn[int64](row, "applied_order")
			if err != nil {
				return err
			}
			applied[name] = order
		}
		return cur.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read applied migrations: %w", ErrMigration, err)
	}
	return applied, nil
}

func (m *Migrator) ensureTable(ctx context.Context, q *Queue) error {
	err := q.InDatabase(ctx, func(ctx context.Context, db *DB) error {
		_, err := db.Execute(ctx, `CREATE TABLE IF NOT EXISTS `+MigrationsTable+` (
			name TEXT PRIMARY KEY NOT NULL,
			applied_order INTEGER NOT NULL
		)`, Bindings{})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: create migrations table: %w", ErrMigration, err)
	}
	return nil
}
