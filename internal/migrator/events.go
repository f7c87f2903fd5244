package migrator

import "time"

// EventKind names a lifecycle checkpoint of a Shift operation.
type EventKind string

const (
	EventEnsuredKeyspace       EventKind = "ensured-keyspace"
	EventUsedKeyspace          EventKind = "used-keyspace"
	EventEnsuredMigrationTable EventKind = "ensured-migration-table"
	EventCheckedApplied        EventKind = "checked-applied-migrations"
	EventAppliedMigration      EventKind = "applied-migration"
	EventFailedMigration       EventKind = "failed-migration"
	EventCleaned               EventKind = "cleaned"
)

// Event is delivered to every observer. Migration fields are only set for
// applied-migration and failed-migration.
type Event struct {
	Kind          EventKind
	RunID         string
	Keyspace      string
	Version       int64
	Name          string
	Type          Type
	ExecutionTime int64
	At            time.Time
}

type Observer interface {
	Notify(e Event)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) Notify(e Event) { f(e) }
