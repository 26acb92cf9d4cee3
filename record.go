package serialdb

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// pkKind discriminates the primary-key strategies.
type pkKind int

const (
	pkNone pkKind = iota
	pkRowID
	pkSingle
	pkComposite
)

// PrimaryKey declares how a record type is keyed. The declared strategy
// governs Insert, Update, Delete and FetchByKey: None disables all of them.
type PrimaryKey struct {
	kind    pkKind
	columns []string
}

// NoPrimaryKey declares a record without a key. Insert, Update, Delete and
// FetchByKey fail with ErrUnsupported for such records.
func NoPrimaryKey() PrimaryKey { return PrimaryKey{kind: pkNone} }

// RowIDKey declares the engine-assigned rowid, exposed as the given column.
// Insert reads the generated id back and assigns it into the record when it
// implements RowIDAssignable.
func RowIDKey(column string) PrimaryKey {
	return PrimaryKey{kind: pkRowID, columns: []string{column}}
}

// SingleColumnKey declares one application-supplied key column.
func SingleColumnKey(column string) PrimaryKey {
	return PrimaryKey{kind: pkSingle, columns: []string{column}}
}

// CompositeKey declares an ordered multi-column key.
func CompositeKey(columns ...string) PrimaryKey {
	return PrimaryKey{kind: pkComposite, columns: append([]string(nil), columns...)}
}

// Columns returns the declared key columns in declared order.
func (pk PrimaryKey) Columns() []string { return pk.columns }

// IsRowID reports whether the key is the engine-assigned rowid.
func (pk PrimaryKey) IsRowID() bool { return pk.kind == pkRowID }

// TableRecord is the entire persistence contract for an entity type: table
// name, key strategy, write mapping, and row population.
type TableRecord interface {
	// DatabaseTableName returns the table the record persists to.
	DatabaseTableName() string

	// DatabasePrimaryKey returns the declared key strategy.
	DatabasePrimaryKey() PrimaryKey

	// PersistentValues returns the column-name-to-Value mapping written by
	// Insert and Update.
	PersistentValues() map[string]Value

	// PopulateFromRow assigns the record's fields from a fetched row.
	// Implementations must leave fields unset for columns the row does not
	// contain, so partial-column queries (joins, aggregates) populate what
	// they can without erroring.
	PopulateFromRow(row Row)
}

// RowIDAssignable receives the engine-generated rowid after a successful
// Insert of a RowIDKey record.
type RowIDAssignable interface {
	AssignRowID(id int64)
}

// Insert writes rec as a new table row. For RowIDKey records an unset (NULL
// or absent) key column is omitted so the engine assigns the id, which is
// read back and handed to AssignRowID. Records declared with NoPrimaryKey,
// an empty table name or an empty write mapping fail with ErrUnsupported.
func Insert(ctx context.Context, db *DB, rec TableRecord) error {
	table, values, err := writePlan(rec)
	if err != nil {
		return err
	}
	pk := rec.DatabasePrimaryKey()

	if pk.IsRowID() {
		key := pk.columns[0]
		if v, ok := values[key]; ok && v.IsNull() {
			delete(values, key)
		}
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: insert into %s: no column values to write", ErrUnsupported, table)
	}

	cols := sortedColumns(values)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), quoteAll(cols), placeholders)

	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = values[c]
	}
	if _, err := db.Execute(ctx, query, Args(args...)); err != nil {
		return err
	}

	if pk.IsRowID() {
		if assignable, ok := rec.(RowIDAssignable); ok {
			assignable.AssignRowID(db.LastInsertRowID())
		}
	}
	return nil
}

// Update rewrites the non-key columns of rec's table row, keyed by the
// record's current key values. It returns the number of rows changed; zero
// means no row matched the key and is reported distinctly from an error, so
// callers decide whether a missing row is a logic error. Unset key fields
// fail with ErrUnsupported and never execute a key-less statement.
func Update(ctx context.Context, db *DB, rec TableRecord) (int64, error) {
	table, values, err := writePlan(rec)
	if err != nil {
		return 0, err
	}
	keyCols, keyVals, err := keyPlan(rec, values)
	if err != nil {
		return 0, err
	}

	isKey := map[string]bool{}
	for _, c := range keyCols {
		isKey[c] = true
	}
	var setCols []string
	for _, c := range sortedColumns(values) {
		if !isKey[c] {
			setCols = append(setCols, c)
		}
	}
	if len(setCols) == 0 {
		return 0, fmt.Errorf("%w: update %s: no non-key columns to write", ErrUnsupported, table)
	}

	assignments := make([]string, len(setCols))
	args := make([]any, 0, len(setCols)+len(keyVals))
	for i, c := range setCols {
		assignments[i] = quoteIdent(c) + " = ?"
		args = append(args, values[c])
	}
	for _, v := range keyVals {
		args = append(args, v)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		quoteIdent(table), strings.Join(assignments, ", "), keyPredicate(keyCols))
	return db.Execute(ctx, query, Args(args...))
}

// Delete removes rec's table row, keyed by the record's current key values.
// It returns the number of rows changed; zero means no row matched. Unset
// key fields fail with ErrUnsupported.
func Delete(ctx context.Context, db *DB, rec TableRecord) (int64, error) {
	table, values, err := writePlan(rec)
	if err != nil {
		return 0, err
	}
	keyCols, keyVals, err := keyPlan(rec, values)
	if err != nil {
		return 0, err
	}

	args := make([]any, len(keyVals))
	for i, v := range keyVals {
		args[i] = v
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(table), keyPredicate(keyCols))
	return db.Execute(ctx, query, Args(args...))
}

// Exists reports whether a row with rec's current key values is present.
func Exists(ctx context.Context, db *DB, rec TableRecord) (bool, error) {
	table, values, err := writePlan(rec)
	if err != nil {
		return false, err
	}
	keyCols, keyVals, err := keyPlan(rec, values)
	if err != nil {
		return false, err
	}

	args := make([]any, len(keyVals))
	for i, v := range keyVals {
		args[i] = v
	}
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s", quoteIdent(table), keyPredicate(keyCols))
	_, found, err := db.FetchOne(ctx, query, Args(args...))
	return found, err
}

// FetchByKey selects the row matching the given key values (one per declared
// key column, in declared order) and populates a fresh record from it. The
// boolean is false when no row matched.
func FetchByKey[T any, PT interface {
	TableRecord
	*T
}](ctx context.Context, db *DB, key ...any) (PT, bool, error) {
	rec := PT(new(T))
	table := rec.DatabaseTableName()
	pk := rec.DatabasePrimaryKey()

	if table == "" {
		return nil, false, fmt.Errorf("%w: record type %T declares no table name", ErrUnsupported, rec)
	}
	if pk.kind == pkNone {
		return nil, false, fmt.Errorf("%w: record type %T declares no primary key", ErrUnsupported, rec)
	}
	if len(key) != len(pk.columns) {
		return nil, false, fmt.Errorf("%w: key for %s has %d columns, got %d values",
			ErrUnsupported, table, len(pk.columns), len(key))
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", quoteIdent(table), keyPredicate(pk.columns))
	row, found, err := db.FetchOne(ctx, query, Args(key...))
	if err != nil || !found {
		return nil, false, err
	}
	rec.PopulateFromRow(row)
	return rec, true, nil
}

// writePlan validates the persistence contract and returns the table plus a
// mutable copy of the write mapping.
func writePlan(rec TableRecord) (string, map[string]Value, error) {
	table := rec.DatabaseTableName()
	if table == "" {
		return "", nil, fmt.Errorf("%w: record type %T declares no table name", ErrUnsupported, rec)
	}
	if rec.DatabasePrimaryKey().kind == pkNone {
		return "", nil, fmt.Errorf("%w: record type %T declares no primary key", ErrUnsupported, rec)
	}
	src := rec.PersistentValues()
	if len(src) == 0 {
		return "", nil, fmt.Errorf("%w: record type %T declares no write mapping", ErrUnsupported, rec)
	}
	values := make(map[string]Value, len(src))
	for k, v := range src {
		values[k] = v
	}
	return table, values, nil
}

// keyPlan extracts the record's current key values from its write mapping.
// Missing or NULL key values mean the key fields are unset.
func keyPlan(rec TableRecord, values map[string]Value) ([]string, []Value, error) {
	pk := rec.DatabasePrimaryKey()
	keyVals := make([]Value, len(pk.columns))
	for i, c := range pk.columns {
		v, ok := values[c]
		if !ok || v.IsNull() {
			return nil, nil, fmt.Errorf("%w: key column %q of %s is unset",
				ErrUnsupported, c, rec.DatabaseTableName())
		}
		keyVals[i] = v
	}
	return pk.columns, keyVals, nil
}

// keyPredicate builds the WHERE conjunction over the key columns in declared
// order.
func keyPredicate(cols []string) string {
	preds := make([]string, len(cols))
	for i, c := range cols {
		preds[i] = quoteIdent(c) + " = ?"
	}
	return strings.Join(preds, " AND ")
}

func sortedColumns(values map[string]Value) []string {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// quoteIdent quotes an identifier, escaping embedded quotes.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteAll(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}
