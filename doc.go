// Package serialdb is a lightweight data-access layer over SQLite, built on
// the pure-Go modernc.org/sqlite driver.
//
// Main features:
// - A serial queue giving crash-safe, race-free access to one database file
// - Raw SQL execution with positional (?) and named (:name) bindings
// - Lazy cursors and typed value extraction over the five SQLite storage kinds
// - Transactions with explicit commit/rollback outcomes and savepoint nesting
// - A minimal record API for entity CRUD with declared primary keys
// - An ordered, resumable schema migrator
// - Test helpers for in-memory and temp-file databases
//
// # Quick start
//
// Open a queue and run blocks against it:
//
//	ctx := context.Background()
//	q, err := serialdb.Open(ctx, "app.db", serialdb.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	defer q.Close()
//
//	err = q.InDatabase(ctx, func(ctx context.Context, db *serialdb.DB) error {
//		_, err := db.Execute(ctx,
//			"INSERT INTO persons (name, age) VALUES (?, ?)",
//			serialdb.Args("Arthur", 36))
//		return err
//	})
//
// # Concurrency model
//
// All operations against one Queue execute on a single serial worker, in
// submission order. Blocks may be submitted from any goroutine; the caller
// blocks until its block completes. Because serialization is the sole
// concurrency-control mechanism, block bodies need no locks. Nested
// InDatabase/InTransaction calls from inside a running block execute inline
// and never deadlock, provided they pass the ctx the block received: that
// ctx carries the execution right. A nested call made with a fresh context
// is treated as an outside submission and deadlocks.
//
// Cursors are bound to the block that created them. Advancing a cursor after
// its block returned panics: the statement it wraps may have been reused or
// released. Use FetchAll to carry results out of a block.
//
// # Transactions
//
// Transaction blocks state their outcome explicitly:
//
//	err = q.InTransaction(ctx, func(ctx context.Context, db *serialdb.DB) (serialdb.Completion, error) {
//		if err := serialdb.Insert(ctx, db, &person); err != nil {
//			return serialdb.Rollback, err
//		}
//		return serialdb.Commit, nil
//	})
//
// Any error rolls the transaction back before it is returned; either every
// statement in the block is durably committed or none is.
//
// # Migrations
//
// Migrations are named blocks applied at most once, in registration order,
// one transaction each:
//
//	m := serialdb.NewMigrator()
//	m.Register("createPersons", func(ctx context.Context, db *serialdb.DB) error {
//		_, err := db.Execute(ctx, `CREATE TABLE persons (
//			id INTEGER PRIMARY KEY AUTOINCREMENT,
//			name TEXT NOT NULL,
//			age INTEGER
//		)`, serialdb.Bindings{})
//		return err
//	})
//	if err := m.Migrate(ctx, q); err != nil {
//		return err
//	}
package serialdb
