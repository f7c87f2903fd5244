package migrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mirajehossain/shift/internal/checksum"
)

// A statement ends at ";" followed by at least one line break.
var statementTerminator = regexp.MustCompile(`;[\r\n]+`)

// ScriptMigration is a batch of declarative statements (CQL or SQL).
type ScriptMigration struct {
	descriptor
	source string
}

func NewScriptMigration(version int64, name, path string, source []byte) *ScriptMigration {
	return &ScriptMigration{
		descriptor: descriptor{
			version:  version,
			name:     name,
			path:     path,
			checksum: checksum.SHA256(source),
		},
		source: string(source),
	}
}

func (m *ScriptMigration) Type() Type { return TypeScript }

// Statements splits the source into individual statements. Fragments holding
// nothing but comments are dropped.
func (m *ScriptMigration) Statements() []string {
	parts := statementTerminator.Split(m.source, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
		if s == "" || commentOnly(s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Execute runs the statements in order on the first session and stops at the
// first failure.
func (m *ScriptMigration) Execute(ctx context.Context, sessions []Session) error {
	if len(sessions) == 0 {
		return ErrNoSession
	}
	for i, stmt := range m.Statements() {
		if _, err := sessions[0].Execute(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return nil
}

func commentOnly(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") || strings.HasPrefix(line, "//") {
			continue
		}
		return false
	}
	return true
}
