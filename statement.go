package serialdb

import (
	"context"
	"database/sql"
)

// Statement is a compiled SQL command the caller owns, reusable across many
// bind/execute cycles. It may be kept across blocks of its queue, but must
// only be driven from inside one: executing it elsewhere would touch the
// pinned connection off the serial worker, so it panics instead.
// It is destroyed by Close or when its queue closes.
type Statement struct {
	db   *DB
	sql  string
	stmt *sql.Stmt
}

// SQL returns the statement's source text.
func (s *Statement) SQL() string { return s.sql }

// assertInBlock panics unless ctx comes from an executing block of the
// statement's queue. The connection is exclusively the worker's; driving a
// statement from anywhere else is programmer misuse, like a leaked cursor.
func (s *Statement) assertInBlock(ctx context.Context) {
	if db, ok := executingDB(ctx); !ok || db != s.db {
		panic("serialdb: statement used outside a database block")
	}
}

// Execute binds the arguments and runs the statement to completion,
// returning the number of rows changed.
func (s *Statement) Execute(ctx context.Context, binds Bindings) (int64, error) {
	s.assertInBlock(ctx)
	args, err := binds.resolve(s.sql)
	if err != nil {
		return 0, err
	}
	res, err := s.stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, execError(s.sql, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		s.db.lastInsertID = id
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, execError(s.sql, err)
	}
	return affected, nil
}

// Fetch binds the arguments and returns a lazy Cursor over the result rows.
func (s *Statement) Fetch(ctx context.Context, binds Bindings) (*Cursor, error) {
	s.assertInBlock(ctx)
	args, err := binds.resolve(s.sql)
	if err != nil {
		return nil, err
	}
	return s.db.newCursor(ctx, s.sql, s.stmt, args)
}

// Close releases the compiled statement.
func (s *Statement) Close() error {
	return s.stmt.Close()
}

// Bindings supplies values for a statement's placeholders: either a dense
// ordered sequence matched to `?` placeholders by position (1-based in the
// engine protocol), or a name-keyed mapping matched to `:name` placeholders
// by exact name. The zero value binds nothing.
type Bindings struct {
	positional []any
	named      map[string]any
	isNamed    bool
}

// Args builds positional bindings for `?` placeholders.
func Args(values ...any) Bindings {
	return Bindings{positional: values}
}

// Named builds name-keyed bindings for `:name` placeholders.
func Named(values map[string]any) Bindings {
	return Bindings{named: values, isNamed: true}
}

// resolve validates the bindings against the placeholders in query and
// converts them to driver arguments. Mismatches return ErrBinding-wrapped
// errors before anything executes.
func (b Bindings) resolve(query string) ([]any, error) {
	count, names := scanPlaceholders(query)

	if b.isNamed {
		if count > 0 {
			return nil, bindingError("query uses positional placeholders but named bindings were supplied")
		}
		args := make([]any, 0, len(names))
		for _, name := range names {
			raw, ok := b.named[name]
			if !ok {
				return nil, bindingError("no value for placeholder :%s", name)
			}
			v, err := valueOf(raw)
			if err != nil {
				return nil, err
			}
			args = append(args, sql.Named(name, v.arg()))
		}
		return args, nil
	}

	if len(names) > 0 && len(b.positional) > 0 {
		return nil, bindingError("query uses named placeholders but positional bindings were supplied")
	}
	if len(b.positional) != count {
		return nil, bindingError("query has %d positional placeholders, got %d values", count, len(b.positional))
	}
	args := make([]any, 0, len(b.positional))
	for i, raw := range b.positional {
		v, err := valueOf(raw)
		if err != nil {
			return nil, bindingError("argument %d: %v", i+1, err)
		}
		args = append(args, v.arg())
	}
	return args, nil
}

// scanPlaceholders counts `?` placeholders and collects `:name` placeholders
// in query, skipping string literals, quoted identifiers and line comments.
// Duplicate names are reported once, in first-occurrence order.
func scanPlaceholders(query string) (count int, names []string) {
	seen := map[string]bool{}
	for i := 0; i < len(query); i++ {
		switch c := query[i]; c {
		case '\'', '"', '`':
			// Skip to the closing quote; doubled quotes escape themselves.
			for i++; i < len(query); i++ {
				if query[i] == c {
					if i+1 < len(query) && query[i+1] == c {
						i++
						continue
					}
					break
				}
			}
		case '-':
			if i+1 < len(query) && query[i+1] == '-' {
				for i++; i < len(query) && query[i] != '\n'; i++ {
				}
			}
		case '?':
			count++
		case ':':
			start := i + 1
			j := start
			for j < len(query) && isNameByte(query[j]) {
				j++
			}
			if j > start {
				name := query[start:j]
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
				i = j - 1
			}
		}
	}
	return count, names
}

func isNameByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
