package migrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type call struct {
	stmt string
	args []any
}

// memSession records statements. Statements containing a key of fail return
// that error; those starting with a key of rows return those rows.
type memSession struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]error
	rows  map[string][]map[string]any
}

func (s *memSession) Execute(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{stmt: stmt, args: args})
	for sub, err := range s.fail {
		if strings.Contains(stmt, sub) {
			return nil, err
		}
	}
	for prefix, rows := range s.rows {
		if strings.HasPrefix(stmt, prefix) {
			return rows, nil
		}
	}
	return nil, nil
}

func (s *memSession) statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.stmt
	}
	return out
}

type memLedger struct {
	entries   []LedgerEntry
	fetchErr  error
	appendErr error
}

func (l *memLedger) FetchApplied(ctx context.Context) ([]LedgerEntry, error) {
	if l.fetchErr != nil {
		return nil, l.fetchErr
	}
	return append([]LedgerEntry(nil), l.entries...), nil
}

func (l *memLedger) Append(ctx context.Context, e LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.appendErr != nil {
		return l.appendErr
	}
	l.entries = append(l.entries, e)
	return nil
}

type memAdmin struct {
	calls []string
	err   error
}

func (a *memAdmin) record(op, name string) error {
	a.calls = append(a.calls, op+":"+name)
	return a.err
}

func (a *memAdmin) EnsureKeyspace(ctx context.Context, ks string) error { return a.record("ensure", ks) }
func (a *memAdmin) UseKeyspace(ctx context.Context, ks string) error    { return a.record("use", ks) }
func (a *memAdmin) DropKeyspace(ctx context.Context, ks string) error   { return a.record("drop", ks) }
func (a *memAdmin) EnsureLedgerTable(ctx context.Context, t string) error {
	return a.record("table", t)
}

type eventLog struct{ kinds []EventKind }

func (e *eventLog) Notify(ev Event) { e.kinds = append(e.kinds, ev.Kind) }

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func mustScript(version int64, name, body string) *ScriptMigration {
	return NewScriptMigration(version, name, "", []byte(body))
}

var errBoom = errors.New("boom")
