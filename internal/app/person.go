package app

import (
	"context"

	"serialdb"
)

// Person is an addressbook entry persisted to the persons table, keyed by
// the engine-assigned rowid.
type Person struct {
	ID    int64
	Name  string
	Age   int64
	Email string
}

// DatabaseTableName implements serialdb.TableRecord.
func (p *Person) DatabaseTableName() string { return "persons" }

// DatabasePrimaryKey implements serialdb.TableRecord.
func (p *Person) DatabasePrimaryKey() serialdb.PrimaryKey { return serialdb.RowIDKey("id") }

// PersistentValues implements serialdb.TableRecord.
func (p *Person) PersistentValues() map[string]serialdb.Value {
	id := serialdb.Null
	if p.ID != 0 {
		id = serialdb.Integer(p.ID)
	}
	return map[string]serialdb.Value{
		"id":    id,
		"name":  serialdb.Text(p.Name),
		"age":   serialdb.Integer(p.Age),
		"email": serialdb.Text(p.Email),
	}
}

// PopulateFromRow implements serialdb.TableRecord. Columns missing from the
// row leave the corresponding fields unset.
func (p *Person) PopulateFromRow(row serialdb.Row) {
	if v, ok := serialdb.DecodeColumn[int64](row, "id"); ok {
		p.ID = v
	}
	if v, ok := serialdb.DecodeColumn[string](row, "name"); ok {
		p.Name = v
	}
	if v, ok := serialdb.DecodeColumn[int64](row, "age"); ok {
		p.Age = v
	}
	if v, ok := serialdb.DecodeColumn[string](row, "email"); ok {
		p.Email = v
	}
}

// AssignRowID implements serialdb.RowIDAssignable.
func (p *Person) AssignRowID(id int64) { p.ID = id }

// Migrations returns the schema registry for the addressbook database.
func Migrations() *serialdb.Migrator {
	m := serialdb.NewMigrator()
	m.Register("createPersons", func(ctx context.Context, db *serialdb.DB) error {
		_, err := db.Execute(ctx, `CREATE TABLE persons (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			age INTEGER NOT NULL,
			email TEXT NOT NULL DEFAULT ''
		)`, serialdb.Bindings{})
		return err
	})
	m.Register("createPersonsNameIndex", func(ctx context.Context, db *serialdb.DB) error {
		_, err := db.Execute(ctx, "CREATE INDEX idx_persons_name ON persons (name)", serialdb.Bindings{})
		return err
	})
	return m
}
