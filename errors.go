package serialdb

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the error categories the layer can produce.
// Callers classify failures with errors.Is or the IsX helpers below.
var (
	// ErrConnection indicates the underlying database file could not be
	// opened, created or closed. Fatal to the Queue being constructed.
	ErrConnection = errors.New("connection failed")

	// ErrExecution indicates the engine rejected a statement (syntax error,
	// constraint violation, type error). The queue remains usable.
	ErrExecution = errors.New("execution failed")

	// ErrBinding indicates a placeholder/argument mismatch detected before
	// execution. Nothing was executed.
	ErrBinding = errors.New("binding failed")

	// ErrTypeMismatch indicates a required typed extraction could not convert
	// the stored value's kind.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnsupported indicates a persistence operation that the record's
	// primary-key declaration cannot support (no key, or key fields unset).
	ErrUnsupported = errors.New("unsupported operation")

	// ErrMigration indicates a registered migration failed. Its transaction
	// was rolled back and no later migrations ran.
	ErrMigration = errors.New("migration failed")
)

// ExecutionError carries the engine's native result code and message for a
// failed statement. It wraps ErrExecution so errors.Is(err, ErrExecution)
// holds for every engine-level failure.
type ExecutionError struct {
	Code    int    // SQLite extended result code, 0 if unknown
	Message string // engine message
	SQL     string // statement text that failed
	cause   error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	b := new(strings.Builder)
	b.WriteString("execution failed")
	if e.Code != 0 {
		fmt.Fprintf(b, " (code %d)", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.SQL != "" {
		fmt.Fprintf(b, " in %q", e.SQL)
	}
	return b.String()
}

// Unwrap exposes both the sentinel and the driver error to errors.Is/As.
func (e *ExecutionError) Unwrap() []error { return []error{ErrExecution, e.cause} }

// sqliteCoder matches the error type of modernc.org/sqlite, which exposes the
// extended result code without forcing a dependency on its concrete type here.
type sqliteCoder interface {
	error
	Code() int
}

// execError wraps a driver error into an ExecutionError, extracting the
// engine code when the driver provides one.
func execError(sql string, err error) error {
	if err == nil {
		return nil
	}
	ee := &ExecutionError{Message: err.Error(), SQL: sql, cause: err}
	var coded sqliteCoder
	if errors.As(err, &coded) {
		ee.Code = coded.Code()
	}
	return ee
}

// bindingError reports a placeholder/argument mismatch.
func bindingError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBinding, fmt.Sprintf(format, args...))
}

// IsConnection reports whether err is a connection failure.
func IsConnection(err error) bool { return errors.Is(err, ErrConnection) }

// IsExecution reports whether err is an engine-level execution failure.
func IsExecution(err error) bool { return errors.Is(err, ErrExecution) }

// IsBinding reports whether err is a placeholder/argument mismatch.
func IsBinding(err error) bool { return errors.Is(err, ErrBinding) }

// IsTypeMismatch reports whether err is a failed required extraction.
func IsTypeMismatch(err error) bool { return errors.Is(err, ErrTypeMismatch) }

// IsUnsupported reports whether err is an unsupported persistence operation.
func IsUnsupported(err error) bool { return errors.Is(err, ErrUnsupported) }

// IsMigration reports whether err comes from a failed migration.
func IsMigration(err error) bool { return errors.Is(err, ErrMigration) }
