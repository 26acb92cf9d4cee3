package serialdb

import "fmt"

// Row is a read-only view over one fetched record: an ordered sequence of
// (column name, Value) pairs captured at fetch time. Rows are snapshots and
// stay valid after their cursor or block is gone.
type Row struct {
	cols []string
	vals []Value
}

// Len returns the number of columns.
func (r Row) Len() int { return len(r.vals) }

// ColumnNames returns the column names in result order.
func (r Row) ColumnNames() []string { return r.cols }

// Value returns the value at the given column index.
func (r Row) Value(i int) Value { return r.vals[i] }

// Named returns the value of the named column. Lookup is a case-sensitive
// exact match against the names the engine returned; when a query yields
// duplicate column names the first occurrence wins. The boolean is false
// when no such column exists.
func (r Row) Named(name string) (Value, bool) {
	for i, c := range r.cols {
		if c == name {
			return r.vals[i], true
		}
	}
	return Value{}, false
}

// Has reports whether the row contains the named column.
func (r Row) Has(name string) bool {
	_, ok := r.Named(name)
	return ok
}

// DecodeColumn converts the named column of r into T, yielding absence when
// the column is missing or its stored kind cannot convert.
func DecodeColumn[T any](r Row, name string) (T, bool) {
	v, ok := r.Named(name)
	if !ok {
		var zero T
		return zero, false
	}
	return DecodeValue[T](v)
}

// RequireColumn is the non-optional variant of DecodeColumn: a missing column
// or incompatible kind is an ErrTypeMismatch.
func RequireColumn[T any](r Row, name string) (T, error) {
	v, ok := r.Named(name)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: no column named %q in row", ErrTypeMismatch, name)
	}
	return RequireValue[T](v)
}
