package serialdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// queueKey stores the executing *DB in the context passed to blocks, so
// nested submissions from inside a block can be detected and run inline.
type queueKey struct{}

// request is one block waiting for its turn on the serial worker.
type request struct {
	ctx context.Context
	fn  func(ctx context.Context, db *DB) error
	res chan error
}

// Completion is the outcome a transaction block signals.
type Completion int

const (
	// Commit makes the transaction's writes durable.
	Commit Completion = iota
	// Rollback discards the transaction's writes without reporting an error.
	Rollback
)

// Queue serializes all access to one database file. Blocks submitted from any
// goroutine execute one at a time, in submission order, on a single worker
// that exclusively owns the connection. Distinct Queues are fully independent.
type Queue struct {
	path string
	opts Options
	log  *slog.Logger

	pool *sql.DB
	conn *sql.Conn
	db   *DB

	reqs       chan request
	workerDone chan struct{}

	// gen counts top-level blocks; executing is true while one runs.
	// Cursors record gen at creation and check both before advancing.
	gen       atomic.Uint64
	executing atomic.Bool

	mu     sync.Mutex
	closed bool
}

// Open establishes the single connection to the database file at path and
// starts the serial worker. The parent directory is created if missing.
// Open fails with an ErrConnection-wrapped error when the file cannot be
// opened or created, or the options are invalid.
func Open(ctx context.Context, path string, opts Options) (*Queue, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create directory %s: %w", ErrConnection, dir, err)
		}
	}

	pool, err := sql.Open("sqlite", buildDSN(path, opts))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrConnection, path, err)
	}
	// The worker is the only user of the connection; the pool exists solely
	// to hand us that one connection.
	pool.SetMaxOpenConns(1)
	pool.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnection, path, err)
	}

	conn, err := pool.Conn(ctx)
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("%w: acquire connection: %w", ErrConnection, err)
	}

	for _, pragma := range opts.pragmas() {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			_ = pool.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrConnection, pragma, err)
		}
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(discardHandler{})
	}

	q := &Queue{
		path:       path,
		opts:       opts,
		log:        log,
		pool:       pool,
		conn:       conn,
		reqs:       make(chan request, 64),
		workerDone: make(chan struct{}),
	}
	q.db = newDB(q, conn)

	go q.run()

	log.Debug("database opened", slog.String("path", path), slog.String("mode", string(opts.AccessMode)))
	return q, nil
}

// Path returns the database file path the queue was opened with.
func (q *Queue) Path() string { return q.path }

// InDatabase submits fn for execution on the serial worker and blocks until
// it completes, returning fn's error. Calls from inside a running block of
// the same queue execute inline, preserving program order without deadlock.
//
// Nested calls MUST pass the ctx their block received: that ctx carries the
// execution right, and it is the only way a nested call is recognized as
// such. A nested call made with any other context (context.Background, a
// request context) is treated as an outside submission and deadlocks,
// because the worker is busy running the enclosing block.
func (q *Queue) InDatabase(ctx context.Context, fn func(ctx context.Context, db *DB) error) error {
	if db, ok := executingDB(ctx); ok && db.queue == q {
		return fn(ctx, db)
	}
	return q.submit(ctx, fn)
}

// InTransaction runs fn inside a transaction using the configured lock mode.
// A (Commit, nil) return commits; (Rollback, nil) rolls back without error;
// any error rolls back and is returned to the caller after the rollback
// completes. Nested calls from inside a transaction run in a savepoint, so a
// nested rollback only discards the nested block's writes.
//
// Blocks that fail because the database is locked by another process are
// retried from scratch per Options.BusyRetry.
//
// Nested calls from inside a running block must pass that block's ctx; see
// InDatabase.
func (q *Queue) InTransaction(ctx context.Context, fn func(ctx context.Context, db *DB) (Completion, error)) error {
	return q.InDatabase(ctx, func(ctx context.Context, db *DB) error {
		if db.txDepth > 0 {
			return db.savepoint(ctx, fn)
		}
		return q.transactionWithRetry(ctx, db, fn)
	})
}

// Close drains pending blocks, releases cached statements and closes the
// connection. It is idempotent. Blocks submitted after Close fail with
// ErrConnection.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.reqs)
	q.mu.Unlock()

	<-q.workerDone

	q.db.releaseStatements()
	err := q.conn.Close()
	if perr := q.pool.Close(); err == nil {
		err = perr
	}
	if err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrConnection, q.path, err)
	}
	q.log.Debug("database closed", slog.String("path", q.path))
	return nil
}

// submit hands a block to the worker and waits for the result. Submission
// order is FIFO; once submitted, the caller blocks until the block finishes
// (there is no cancellation of a running block).
func (q *Queue) submit(ctx context.Context, fn func(ctx context.Context, db *DB) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := request{ctx: ctx, fn: fn, res: make(chan error, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("%w: queue is closed", ErrConnection)
	}
	q.reqs <- req
	q.mu.Unlock()

	return <-req.res
}

// run is the serial worker. It is the only goroutine that ever touches the
// connection.
func (q *Queue) run() {
	defer close(q.workerDone)

	for req := range q.reqs {
		q.gen.Add(1)
		q.executing.Store(true)

		ctx := context.WithValue(req.ctx, queueKey{}, q.db)
		err := req.fn(ctx, q.db)

		// Any cursor still iterating belongs to the finished block and must
		// not survive it.
		q.db.closeCursors()
		q.executing.Store(false)
		req.res <- err
	}
}

// assertInBlock panics when a resource created inside generation gen is used
// while that block is no longer executing. This is programmer misuse, not a
// recoverable engine error.
func (q *Queue) assertInBlock(gen uint64, what string) {
	if !q.executing.Load() || q.gen.Load() != gen {
		panic("serialdb: " + what + " used outside the database block that created it")
	}
}

// executingDB extracts the *DB of the currently running block, if the context
// came from one.
func executingDB(ctx context.Context) (*DB, bool) {
	db, ok := ctx.Value(queueKey{}).(*DB)
	return db, ok
}

// transactionWithRetry re-runs the whole transaction block when the engine
// reports the database as locked by another connection. Each attempt starts
// from a fresh BEGIN, so a retried block never observes partial state.
func (q *Queue) transactionWithRetry(ctx context.Context, db *DB, fn func(ctx context.Context, db *DB) (Completion, error)) error {
	policy := q.opts.BusyRetry
	delay := policy.InitialDelay

	for attempt := 1; ; attempt++ {
		err := db.transaction(ctx, q.opts.TxLockMode, fn)
		if err == nil || attempt == policy.MaxAttempts || !isBusy(err) {
			return err
		}

		q.log.Debug("database busy, retrying transaction",
			slog.Int("attempt", attempt), slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * policy.Multiplier)
			if delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		}
	}
}

// isBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	var ee *ExecutionError
	if errors.As(err, &ee) && ee.Code != 0 {
		primary := ee.Code & 0xff
		return primary == 5 || primary == 6 // SQLITE_BUSY, SQLITE_LOCKED
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// discardHandler drops every record. Used when no logger is configured.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
