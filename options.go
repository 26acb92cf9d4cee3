package serialdb

import (
	"fmt"
	"log/slog"
	"time"
)

// TxLockMode selects the locking behavior of transactions started by
// InTransaction.
type TxLockMode string

const (
	// TxLockDeferred defers locking until the first read/write (SQLite default).
	TxLockDeferred TxLockMode = "DEFERRED"
	// TxLockImmediate takes a RESERVED lock up front, avoiding SQLITE_BUSY
	// upgrades in write transactions.
	TxLockImmediate TxLockMode = "IMMEDIATE"
	// TxLockExclusive takes an EXCLUSIVE lock up front.
	TxLockExclusive TxLockMode = "EXCLUSIVE"
)

// AccessMode selects how the database file is opened.
type AccessMode string

const (
	// AccessReadWrite opens an existing file for reading and writing.
	AccessReadWrite AccessMode = "rw"
	// AccessReadOnly opens an existing file for reading only.
	AccessReadOnly AccessMode = "ro"
	// AccessReadWriteCreate opens for reading and writing, creating the file
	// if it does not exist.
	AccessReadWriteCreate AccessMode = "rwc"
)

// RetryPolicy controls retries of blocks that fail with SQLITE_BUSY, which
// can happen when another process holds a lock on the same file.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Options configures a Queue. The zero value is not useful; start from
// DefaultOptions.
type Options struct {
	// AccessMode controls opening of the database file.
	AccessMode AccessMode
	// WALMode switches the journal to write-ahead logging.
	WALMode bool
	// ForeignKeys enables foreign-key enforcement.
	ForeignKeys bool
	// BusyTimeout is how long the engine waits on a locked database before
	// reporting SQLITE_BUSY.
	BusyTimeout time.Duration
	// PingTimeout bounds the connectivity check during Open.
	PingTimeout time.Duration
	// TxLockMode is the lock mode used by InTransaction.
	TxLockMode TxLockMode
	// BusyRetry retries blocks that fail with SQLITE_BUSY.
	BusyRetry RetryPolicy
	// Logger receives debug/info events. Nil disables logging.
	Logger *slog.Logger
}

// DefaultOptions returns settings suited to embedded single-writer use.
func DefaultOptions() Options {
	return Options{
		AccessMode:  AccessReadWriteCreate,
		WALMode:     true,
		ForeignKeys: true,
		BusyTimeout: 5 * time.Second,
		PingTimeout: 5 * time.Second,
		TxLockMode:  TxLockDeferred,
		BusyRetry: RetryPolicy{
			MaxAttempts:  3,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2.0,
		},
	}
}

// validate rejects option combinations the engine cannot honor.
func (o Options) validate() error {
	switch o.AccessMode {
	case AccessReadWrite, AccessReadOnly, AccessReadWriteCreate:
	default:
		return fmt.Errorf("%w: invalid access mode %q", ErrConnection, o.AccessMode)
	}
	switch o.TxLockMode {
	case TxLockDeferred, TxLockImmediate, TxLockExclusive:
	default:
		return fmt.Errorf("%w: invalid tx lock mode %q", ErrConnection, o.TxLockMode)
	}
	if o.BusyRetry.MaxAttempts < 1 {
		return fmt.Errorf("%w: BusyRetry.MaxAttempts must be at least 1", ErrConnection)
	}
	return nil
}

// buildDSN builds the driver DSN. Settings are applied via PRAGMA after
// opening; only the access mode must be in the DSN, and the driver honors
// query parameters on file: URIs only, so non-default modes get the prefix.
func buildDSN(path string, opts Options) string {
	if opts.AccessMode == "" || opts.AccessMode == AccessReadWriteCreate {
		return path
	}
	return "file:" + path + "?mode=" + string(opts.AccessMode)
}

// pragmas returns the PRAGMA statements applied to the connection at open.
func (o Options) pragmas() []string {
	ps := make([]string, 0, 4)
	if o.ForeignKeys {
		ps = append(ps, "PRAGMA foreign_keys = ON")
	}
	if o.WALMode {
		ps = append(ps, "PRAGMA journal_mode = WAL")
	}
	ps = append(ps, "PRAGMA synchronous = NORMAL")
	if o.BusyTimeout > 0 {
		ps = append(ps, fmt.Sprintf("PRAGMA busy_timeout = %d", o.BusyTimeout.Milliseconds()))
	}
	return ps
}
