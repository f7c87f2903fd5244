package migrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// Runner executes single migrations and records every attempt.
type Runner struct {
	Sessions []Session
	Ledger   Ledger
	Log      *slog.Logger

	now func() time.Time
}

func NewRunner(sessions []Session, ledger Ledger, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{Sessions: sessions, Ledger: ledger, Log: log, now: time.Now}
}

// Execute applies m and appends the outcome to the ledger whether or not it
// succeeded. A failed migration is only reported after its entry is written;
// if that write fails too, both errors are returned.
func (r *Runner) Execute(ctx context.Context, m Migration) (LedgerEntry, error) {
	r.Log.Info("applying migration", "version", m.Version(), "name", m.Name(), "type", m.Type())

	start := r.now()
	execErr := m.Execute(ctx, r.Sessions)
	elapsed := r.now().Sub(start).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}

	entry := LedgerEntry{
		Version:       m.Version(),
		Name:          m.Name(),
		Type:          m.Type(),
		Checksum:      m.Checksum(),
		InstalledOn:   start,
		ExecutionTime: elapsed,
		Success:       execErr == nil,
	}

	// a cancelled ctx must not prevent the failure from being recorded
	if err := r.Ledger.Append(context.WithoutCancel(ctx), entry); err != nil {
		r.Log.Error("recording migration failed", "version", m.Version(), "error", err)
		if execErr != nil {
			return entry, errors.Join(&ExecutionError{Version: m.Version(), Name: m.Name(), Err: execErr}, err)
		}
		return entry, err
	}

	if execErr != nil {
		r.Log.Error("migration failed", "version", m.Version(), "name", m.Name(), "duration_ms", elapsed, "error", execErr)
		return entry, &ExecutionError{Version: m.Version(), Name: m.Name(), Err: execErr}
	}
	r.Log.Info("migration applied", "version", m.Version(), "name", m.Name(), "duration_ms", elapsed)
	return entry, nil
}
