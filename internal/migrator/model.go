package migrator

import (
	"context"
	"time"
)

// Type tells how a migration is executed.
type Type string

const (
	TypeScript     Type = "SCRIPT"
	TypeExecutable Type = "EXECUTABLE"
)

// Session is one live database connection. Execute runs a single statement and
// returns the produced rows, if any.
type Session interface {
	Execute(ctx context.Context, stmt string, args ...any) ([]map[string]any, error)
}

// Admin performs keyspace level administration and ledger table provisioning.
// Every method must be idempotent.
type Admin interface {
	EnsureKeyspace(ctx context.Context, keyspace string) error
	UseKeyspace(ctx context.Context, keyspace string) error
	DropKeyspace(ctx context.Context, keyspace string) error
	EnsureLedgerTable(ctx context.Context, table string) error
}

// Migration is one locally available migration. The set of implementations is
// closed: ScriptMigration and ExecutableMigration.
type Migration interface {
	Version() int64
	Name() string
	Type() Type
	Checksum() string
	Path() string
	Execute(ctx context.Context, sessions []Session) error

	sealed()
}

// descriptor carries the fields every Migration variant shares.
type descriptor struct {
	version  int64
	name     string
	path     string
	checksum string
}

func (d descriptor) Version() int64   { return d.version }
func (d descriptor) Name() string     { return d.name }
func (d descriptor) Path() string     { return d.path }
func (d descriptor) Checksum() string { return d.checksum }
func (d descriptor) sealed()          {}

// LedgerEntry is one row of the migration history table.
type LedgerEntry struct {
	Version       int64
	Name          string
	Type          Type
	Checksum      string
	InstalledOn   time.Time
	ExecutionTime int64 // milliseconds
	Success       bool
}

// State is the reconciled lifecycle state of one slot.
type State string

const (
	StatePending        State = "PENDING"
	StateSuccess        State = "SUCCESS"
	StateFailed         State = "FAILED"
	StateMismatch       State = "MISMATCH"
	StateUnknownSuccess State = "UNKNOWN_SUCCESS"
	StateUnknownFailed  State = "UNKNOWN_FAILED"
	StateUnknown        State = "UNKNOWN"
)

// InfoSlot is one row of the Info report.
type InfoSlot struct {
	Index         int        `json:"index"`
	Version       int64      `json:"version"`
	Name          string     `json:"name"`
	Type          Type       `json:"type"`
	State         State      `json:"state"`
	InstalledOn   *time.Time `json:"installed_on,omitempty"`
	ExecutionTime *int64     `json:"execution_time_ms,omitempty"`
}
