package migrator

import (
	"errors"
	"fmt"

	"github.com/mirajehossain/shift/internal/fsutil"
)

var (
	ErrHalted            = errors.New("migration halted")
	ErrVersionMismatch   = errors.New("migration version mismatch")
	ErrNameMismatch      = errors.New("migration name mismatch")
	ErrChecksumMismatch  = errors.New("migration checksum mismatch")
	ErrPendingMigrations = errors.New("pending migrations")
	ErrDuplicateVersion  = fsutil.ErrDuplicateVersion
	ErrNoSession         = errors.New("no database session")
	ErrNoKeyspace        = errors.New("keyspace not configured")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrMissingEntryPoint = errors.New("executable migration has no usable Migrate function")
	ErrForbiddenImport   = errors.New("import not allowed in executable migration")
)

// DiscoveryError reports an unreadable or malformed migration source.
type DiscoveryError struct {
	Path string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("load migration %s: %v", e.Path, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ConsistencyError reports a ledger that does not line up with the available
// migrations, or a ledger halted on a failed migration.
type ConsistencyError struct {
	Version int64
	Name    string
	Field   string // version, name or checksum; empty when halted
	Applied string
	Defined string
	Err     error
}

func (e *ConsistencyError) Error() string {
	if errors.Is(e.Err, ErrHalted) {
		return fmt.Sprintf("migration %d - %q failed, fix manually before retrying", e.Version, e.Name)
	}
	return fmt.Sprintf("migration %s mismatch at version %d: applied %s, defined %s", e.Field, e.Version, e.Applied, e.Defined)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

// ExecutionError wraps the failure of a migration's own statements or logic.
// The attempt has already been recorded in the ledger when it is returned.
type ExecutionError struct {
	Version int64
	Name    string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("migration %d %q failed: %v", e.Version, e.Name, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// LedgerAccessError reports a failed read or write of the ledger table.
type LedgerAccessError struct {
	Op    string
	Table string
	Err   error
}

func (e *LedgerAccessError) Error() string {
	return fmt.Sprintf("ledger %s on %s: %v", e.Op, e.Table, e.Err)
}

func (e *LedgerAccessError) Unwrap() error { return e.Err }
