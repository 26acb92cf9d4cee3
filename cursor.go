package serialdb

import (
	"context"
	"database/sql"
)

// Cursor is a lazy, forward-only, non-restartable sequence of Rows. It is
// bound to the queue block that created it: advancing or closing it after
// that block returned panics, because the statement it wraps may have been
// reused or released since. Drain into []Row with FetchAll (or copy the Rows
// you need) to carry results out of a block.
type Cursor struct {
	queue *Queue
	gen   uint64
	rows  *sql.Rows
	sql   string

	cols   []string
	buf    []any
	row    Row
	err    error
	closed bool
}

// newCursor runs the query on the given compiled statement and registers the
// cursor with the executing block, which closes it when the block ends.
func (db *DB) newCursor(ctx context.Context, query string, stmt *sql.Stmt, args []any) (*Cursor, error) {
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, execError(query, err)
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, execError(query, err)
	}
	c := &Cursor{
		queue: db.queue,
		gen:   db.queue.gen.Load(),
		rows:  rows,
		sql:   query,
		cols:  cols,
		buf:   make([]any, len(cols)),
	}
	db.cursors = append(db.cursors, c)
	return c, nil
}

// Next advances to the next row, reporting whether one is available. After
// Next returns false, check Err.
func (c *Cursor) Next() bool {
	c.queue.assertInBlock(c.gen, "cursor")
	if c.closed {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		return false
	}

	ptrs := make([]any, len(c.buf))
	for i := range c.buf {
		ptrs[i] = &c.buf[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		c.err = execError(c.sql, err)
		return false
	}

	vals := make([]Value, len(c.buf))
	for i, raw := range c.buf {
		vals[i] = valueFromColumn(raw)
	}
	c.row = Row{cols: c.cols, vals: vals}
	return true
}

// Row returns the current row as an immutable snapshot. Only valid after a
// successful Next.
func (c *Cursor) Row() Row { return c.row }

// Err returns the error that terminated iteration, if any.
func (c *Cursor) Err() error { return c.err }

// ColumnNames returns the result's column names.
func (c *Cursor) ColumnNames() []string { return c.cols }

// Close releases the underlying result. It must be called inside the
// originating block; the block's end closes any cursor left open.
func (c *Cursor) Close() error {
	c.queue.assertInBlock(c.gen, "cursor")
	return c.closeRows()
}

// closeRows releases the result without the block check; the queue worker
// uses it during end-of-block cleanup.
func (c *Cursor) closeRows() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}
