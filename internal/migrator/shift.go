package migrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
)

const DefaultMigrationTable = "migration_history"

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options configure a Shift. They are resolved once by New.
type Options struct {
	Keyspace       string
	EnsureKeyspace bool
	UseKeyspace    bool
	Dir            string
	FS             fs.FS // optional; Dir is then a path inside FS
	MigrationTable string
}

type Option func(*Shift)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Shift) {
		if l != nil {
			s.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Shift) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithLedger replaces the table backed ledger.
func WithLedger(l Ledger) Option {
	return func(s *Shift) { s.ledger = l }
}

// WithProvider registers an extra file extension.
func WithProvider(ext string, p Provider) Option {
	return func(s *Shift) { s.extra[ext] = p }
}

// Shift drives migrations for one ledger table. It is not safe for concurrent
// use, and nothing prevents two processes from migrating the same ledger at
// the same time.
type Shift struct {
	sessions  []Session
	admin     Admin
	opts      Options
	ledger    Ledger
	loader    *Loader
	runner    *Runner
	observers []Observer
	extra     map[string]Provider
	log       *slog.Logger
}

// New builds a Shift. The first session is used for administration and the
// ledger; executable migrations receive all of them.
func New(sessions []Session, admin Admin, opts Options, options ...Option) (*Shift, error) {
	if len(sessions) == 0 {
		return nil, ErrNoSession
	}
	if admin == nil {
		return nil, errors.New("admin is required")
	}
	if opts.MigrationTable == "" {
		opts.MigrationTable = DefaultMigrationTable
	}
	if !identifierRe.MatchString(opts.MigrationTable) {
		return nil, fmt.Errorf("%w: migration table %q", ErrInvalidIdentifier, opts.MigrationTable)
	}
	if opts.Keyspace != "" && !identifierRe.MatchString(opts.Keyspace) {
		return nil, fmt.Errorf("%w: keyspace %q", ErrInvalidIdentifier, opts.Keyspace)
	}
	if (opts.EnsureKeyspace || opts.UseKeyspace) && opts.Keyspace == "" {
		return nil, ErrNoKeyspace
	}

	s := &Shift{
		sessions: sessions,
		admin:    admin,
		opts:     opts,
		extra:    map[string]Provider{},
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range options {
		o(s)
	}
	if s.ledger == nil {
		s.ledger = &Storage{Session: sessions[0], Table: opts.MigrationTable}
	}
	s.loader = NewLoader(Source{FS: opts.FS, Dir: opts.Dir}, s.log)
	for ext, p := range s.extra {
		s.loader.Register(ext, p)
	}
	s.runner = NewRunner(sessions, s.ledger, s.log)
	return s, nil
}

// Options returns the resolved options.
func (s *Shift) Options() Options { return s.opts }

// Migrate applies every pending migration in order and returns the ledger
// entries written by this run. It stops at the first failure; the failed
// attempt is the last returned entry.
func (s *Shift) Migrate(ctx context.Context) ([]LedgerEntry, error) {
	runID := uuid.NewString()
	log := s.log.With("run_id", runID, "op", "migrate")

	if s.opts.EnsureKeyspace {
		log.Debug("ensuring keyspace", "keyspace", s.opts.Keyspace)
		if err := s.admin.EnsureKeyspace(ctx, s.opts.Keyspace); err != nil {
			return nil, fmt.Errorf("ensure keyspace %s: %w", s.opts.Keyspace, err)
		}
		s.emit(Event{Kind: EventEnsuredKeyspace, RunID: runID})
	}
	if s.opts.UseKeyspace {
		if err := s.useKeyspace(ctx, log, runID); err != nil {
			return nil, err
		}
	}

	log.Debug("ensuring migration table", "table", s.opts.MigrationTable)
	if err := s.admin.EnsureLedgerTable(ctx, s.opts.MigrationTable); err != nil {
		return nil, &LedgerAccessError{Op: "ensure", Table: s.opts.MigrationTable, Err: err}
	}
	s.emit(Event{Kind: EventEnsuredMigrationTable, RunID: runID})

	applied, available, err := s.reconcile(ctx, log, runID)
	if err != nil {
		return nil, err
	}

	written := make([]LedgerEntry, 0, len(available))
	for i := len(applied); i < len(available); i++ {
		m := available[i]
		entry, err := s.runner.Execute(ctx, m)
		written = append(written, entry)
		ev := Event{
			Kind:          EventAppliedMigration,
			RunID:         runID,
			Version:       m.Version(),
			Name:          m.Name(),
			Type:          m.Type(),
			ExecutionTime: entry.ExecutionTime,
		}
		if err != nil {
			ev.Kind = EventFailedMigration
			s.emit(ev)
			return written, err
		}
		s.emit(ev)
	}

	log.Info("migrations applied successfully", "applied", len(written))
	return written, nil
}

// Validate reports whether the ledger matches the available migrations and
// nothing is pending. With rethrow the reason is returned as the error;
// otherwise a failure is only reported as false.
func (s *Shift) Validate(ctx context.Context, rethrow bool) (bool, error) {
	runID := uuid.NewString()
	log := s.log.With("run_id", runID, "op", "validate")

	err := func() error {
		if s.opts.UseKeyspace {
			if err := s.useKeyspace(ctx, log, runID); err != nil {
				return err
			}
		}
		applied, available, err := s.reconcile(ctx, log, runID)
		if err != nil {
			return err
		}
		if len(available) > len(applied) {
			return fmt.Errorf("%w: applied %d out of %d migrations", ErrPendingMigrations, len(applied), len(available))
		}
		return nil
	}()
	if err != nil {
		log.Warn("validation failed", "error", err)
		if rethrow {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Info builds a best effort report over max(applied, available) slots. An
// unreadable ledger is treated as empty; a keyspace that cannot be selected
// is an error.
func (s *Shift) Info(ctx context.Context) ([]InfoSlot, error) {
	runID := uuid.NewString()
	log := s.log.With("run_id", runID, "op", "info")

	if s.opts.UseKeyspace {
		if err := s.useKeyspace(ctx, log, runID); err != nil {
			return nil, err
		}
	}

	applied, err := s.ledger.FetchApplied(ctx)
	if err != nil {
		log.Warn("ledger unreadable, treating as empty", "error", err)
		applied = nil
	}
	available, err := s.loader.Load()
	if err != nil {
		return nil, err
	}

	n := max(len(applied), len(available))
	slots := make([]InfoSlot, 0, n)
	for i := 0; i < n; i++ {
		var am *LedgerEntry
		if i < len(applied) {
			am = &applied[i]
		}
		var m Migration
		if i < len(available) {
			m = available[i]
		}
		slots = append(slots, newSlot(i, am, m))
	}
	return slots, nil
}

func newSlot(i int, am *LedgerEntry, m Migration) InfoSlot {
	slot := InfoSlot{Index: i, State: ComputeState(am, m)}
	if m != nil {
		slot.Version, slot.Name, slot.Type = m.Version(), m.Name(), m.Type()
	} else if am != nil {
		slot.Version, slot.Name, slot.Type = am.Version, am.Name, am.Type
	}
	if am != nil {
		installed, took := am.InstalledOn, am.ExecutionTime
		slot.InstalledOn = &installed
		slot.ExecutionTime = &took
	}
	return slot
}

// Clean drops the keyspace and recreates it empty. The ledger table goes with
// it.
func (s *Shift) Clean(ctx context.Context) error {
	if s.opts.Keyspace == "" {
		return ErrNoKeyspace
	}
	runID := uuid.NewString()
	log := s.log.With("run_id", runID, "op", "clean")

	log.Info("cleaning keyspace", "keyspace", s.opts.Keyspace)
	if err := s.admin.DropKeyspace(ctx, s.opts.Keyspace); err != nil {
		return fmt.Errorf("drop keyspace %s: %w", s.opts.Keyspace, err)
	}
	if err := s.admin.EnsureKeyspace(ctx, s.opts.Keyspace); err != nil {
		return fmt.Errorf("recreate keyspace %s: %w", s.opts.Keyspace, err)
	}
	s.emit(Event{Kind: EventCleaned, RunID: runID})
	log.Info("keyspace cleaned successfully", "keyspace", s.opts.Keyspace)
	return nil
}

func (s *Shift) useKeyspace(ctx context.Context, log *slog.Logger, runID string) error {
	log.Debug("using keyspace", "keyspace", s.opts.Keyspace)
	if err := s.admin.UseKeyspace(ctx, s.opts.Keyspace); err != nil {
		return fmt.Errorf("use keyspace %s: %w", s.opts.Keyspace, err)
	}
	s.emit(Event{Kind: EventUsedKeyspace, RunID: runID})
	return nil
}

// reconcile fetches both sides and runs the consistency check.
func (s *Shift) reconcile(ctx context.Context, log *slog.Logger, runID string) ([]LedgerEntry, []Migration, error) {
	log.Debug("retrieving applied migrations", "table", s.opts.MigrationTable)
	applied, err := s.ledger.FetchApplied(ctx)
	if err != nil {
		return nil, nil, err
	}
	available, err := s.loader.Load()
	if err != nil {
		return nil, nil, err
	}

	if len(applied) > len(available) {
		log.Info("more migrations applied than defined", "applied", len(applied), "defined", len(available))
	}
	if err := CheckApplied(applied, available); err != nil {
		return nil, nil, err
	}
	s.emit(Event{Kind: EventCheckedApplied, RunID: runID})
	return applied, available, nil
}

func (s *Shift) emit(e Event) {
	e.Keyspace = s.opts.Keyspace
	if e.At.IsZero() {
		e.At = time.Now()
	}
	for _, o := range s.observers {
		o.Notify(e)
	}
}
