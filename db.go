package serialdb

import (
	"context"
	"database/sql"
	"fmt"
)

// DB is the execution handle passed to queue blocks. It wraps the queue's
// single pinned connection plus the prepared-statement cache. A DB is only
// valid inside a block; it must never be stored and used from outside one.
type DB struct {
	queue *Queue
	conn  *sql.Conn

	// stmts caches prepared statements keyed by exact SQL text. The cache
	// lives as long as the connection.
	stmts map[string]*sql.Stmt

	cursors []*Cursor
	txDepth int
	spSeq   int

	lastInsertID int64
}

func newDB(q *Queue, conn *sql.Conn) *DB {
	return &DB{queue: q, conn: conn, stmts: make(map[string]*sql.Stmt)}
}

// Execute compiles (or reuses the cached compiled form of) query, binds the
// arguments, runs it to completion and returns the number of rows changed.
// Engine failures come back as ExecutionError; binding mismatches as
// ErrBinding without anything executing.
func (db *DB) Execute(ctx context.Context, query string, binds Bindings) (int64, error) {
	args, err := binds.resolve(query)
	if err != nil {
		return 0, err
	}
	stmt, err := db.cachedStmt(ctx, query)
	if err != nil {
		return 0, err
	}
	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, execError(query, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		db.lastInsertID = id
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, execError(query, err)
	}
	return affected, nil
}

// LastInsertRowID returns the rowid generated by the most recent successful
// INSERT on this connection.
func (db *DB) LastInsertRowID() int64 { return db.lastInsertID }

// Prepare compiles query into a Statement the caller owns, for reuse across
// many bind/execute cycles (batch inserts). The caller must Close it; cached
// statements used by Execute and the fetch family are managed automatically.
func (db *DB) Prepare(ctx context.Context, query string) (*Statement, error) {
	stmt, err := db.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, execError(query, err)
	}
	return &Statement{db: db, sql: query, stmt: stmt}, nil
}

// Fetch runs query and returns a lazy Cursor over the result rows. The
// cursor is bound to the executing block: advancing it after the block
// returned is a fatal usage error.
func (db *DB) Fetch(ctx context.Context, query string, binds Bindings) (*Cursor, error) {
	args, err := binds.resolve(query)
	if err != nil {
		return nil, err
	}
	stmt, err := db.cachedStmt(ctx, query)
	if err != nil {
		return nil, err
	}
	return db.newCursor(ctx, query, stmt, args)
}

// FetchAll eagerly drains the result set into a slice of Rows, safe to use
// after the block has returned.
func (db *DB) FetchAll(ctx context.Context, query string, binds Bindings) ([]Row, error) {
	cur, err := db.Fetch(ctx, query, binds)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []Row
	for cur.Next() {
		out = append(out, cur.Row())
	}
	return out, cur.Err()
}

// FetchOne returns the first result Row. The boolean is false when the result
// set is empty. The rest of the result set is not consumed.
func (db *DB) FetchOne(ctx context.Context, query string, binds Bindings) (Row, bool, error) {
	cur, err := db.Fetch(ctx, query, binds)
	if err != nil {
		return Row{}, false, err
	}
	defer cur.Close()

	if !cur.Next() {
		return Row{}, false, cur.Err()
	}
	return cur.Row(), true, nil
}

// cachedStmt returns the compiled form of query, preparing and caching it on
// first use.
func (db *DB) cachedStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := db.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := db.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, execError(query, err)
	}
	db.stmts[query] = stmt
	return stmt, nil
}

// releaseStatements closes every cached statement. Called on queue teardown.
func (db *DB) releaseStatements() {
	for q, stmt := range db.stmts {
		_ = stmt.Close()
		delete(db.stmts, q)
	}
}

// closeCursors closes any cursor the finished block left iterating.
func (db *DB) closeCursors() {
	for _, c := range db.cursors {
		_ = c.closeRows()
	}
	db.cursors = db.cursors[:0]
}

// transaction runs fn inside one BEGIN/COMMIT cycle with the given lock mode.
// database/sql cannot express BEGIN IMMEDIATE, so the statements are issued
// manually on the pinned connection.
func (db *DB) transaction(ctx context.Context, mode TxLockMode, fn func(ctx context.Context, db *DB) (Completion, error)) error {
	if _, err := db.Execute(ctx, "BEGIN "+string(mode), Bindings{}); err != nil {
		return err
	}
	db.txDepth++

	completion, err := fn(ctx, db)
	db.txDepth--

	if err != nil {
		_, _ = db.Execute(ctx, "ROLLBACK", Bindings{})
		return err
	}
	if completion == Rollback {
		_, err := db.Execute(ctx, "ROLLBACK", Bindings{})
		return err
	}
	if _, err := db.Execute(ctx, "COMMIT", Bindings{}); err != nil {
		// A failed COMMIT (SQLITE_BUSY under rollback journaling) leaves the
		// transaction open; clear it so retries and later blocks start from
		// a clean connection.
		_, _ = db.Execute(ctx, "ROLLBACK", Bindings{})
		return err
	}
	return nil
}

// savepoint runs fn inside a savepoint of the enclosing transaction, so a
// nested rollback discards only the nested writes.
func (db *DB) savepoint(ctx context.Context, fn func(ctx context.Context, db *DB) (Completion, error)) error {
	db.spSeq++
	name := fmt.Sprintf("sp_%d", db.spSeq)

	if _, err := db.Execute(ctx, "SAVEPOINT "+name, Bindings{}); err != nil {
		return err
	}
	db.txDepth++

	completion, err := fn(ctx, db)
	db.txDepth--

	if err != nil || completion == Rollback {
		if _, rbErr := db.Execute(ctx, "ROLLBACK TO SAVEPOINT "+name, Bindings{}); rbErr != nil && err != nil {
			return fmt.Errorf("rollback to savepoint %s failed: %v (original error: %w)", name, rbErr, err)
		}
		_, _ = db.Execute(ctx, "RELEASE SAVEPOINT "+name, Bindings{})
		return err
	}
	_, err = db.Execute(ctx, "RELEASE SAVEPOINT "+name, Bindings{})
	return err
}
