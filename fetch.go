package serialdb

import (
	"context"
	"fmt"
)

// Column designates the column a typed fetch extracts, by index or by name.
type Column struct {
	name    string
	index   int
	hasName bool
}

// ColumnIndex designates a column by zero-based result index.
func ColumnIndex(i int) Column { return Column{index: i} }

// ColumnName designates a column by exact name.
func ColumnName(name string) Column { return Column{name: name, hasName: true} }

// valueIn extracts the designated value from r.
func (c Column) valueIn(r Row) (Value, bool) {
	if c.hasName {
		return r.Named(c.name)
	}
	if c.index < 0 || c.index >= r.Len() {
		return Value{}, false
	}
	return r.Value(c.index), true
}

func (c Column) String() string {
	if c.hasName {
		return c.name
	}
	return fmt.Sprintf("#%d", c.index)
}

// FetchValue runs query and converts the designated column of the first row
// into T. The boolean is false when the result set is empty. A stored kind
// that cannot convert to T fails with ErrTypeMismatch; use
// FetchNullableValue when absence is acceptable.
func FetchValue[T any](ctx context.Context, db *DB, query string, binds Bindings, col Column) (T, bool, error) {
	var zero T
	row, ok, err := db.FetchOne(ctx, query, binds)
	if err != nil || !ok {
		return zero, false, err
	}
	out, err := requireAt[T](row, col)
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

// FetchNullableValue is the optional variant of FetchValue: an incompatible
// or NULL stored value yields nil, never an error.
func FetchNullableValue[T any](ctx context.Context, db *DB, query string, binds Bindings, col Column) (*T, bool, error) {
	row, ok, err := db.FetchOne(ctx, query, binds)
	if err != nil || !ok {
		return nil, false, err
	}
	return decodeAt[T](row, col), true, nil
}

// FetchValues runs query and converts the designated column of every row
// into T, in result order. Any row whose stored kind cannot convert fails
// the whole fetch with ErrTypeMismatch.
func FetchValues[T any](ctx context.Context, db *DB, query string, binds Bindings, col Column) ([]T, error) {
	cur, err := db.Fetch(ctx, query, binds)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []T
	for cur.Next() {
		v, err := requireAt[T](cur.Row(), col)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, cur.Err()
}

// FetchNullableValues is the optional variant of FetchValues: incompatible
// or NULL stored values yield nil entries.
func FetchNullableValues[T any](ctx context.Context, db *DB, query string, binds Bindings, col Column) ([]*T, error) {
	cur, err := db.Fetch(ctx, query, binds)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []*T
	for cur.Next() {
		out = append(out, decodeAt[T](cur.Row(), col))
	}
	return out, cur.Err()
}

func requireAt[T any](r Row, col Column) (T, error) {
	var zero T
	v, ok := col.valueIn(r)
	if !ok {
		return zero, fmt.Errorf("%w: no column %s in result", ErrTypeMismatch, col)
	}
	out, ok := DecodeValue[T](v)
	if !ok {
		return zero, fmt.Errorf("%w: cannot convert %s value in column %s to %T", ErrTypeMismatch, v.Kind(), col, zero)
	}
	return out, nil
}

func decodeAt[T any](r Row, col Column) *T {
	v, ok := col.valueIn(r)
	if !ok {
		return nil
	}
	out, ok := DecodeValue[T](v)
	if !ok {
		return nil
	}
	return &out
}
