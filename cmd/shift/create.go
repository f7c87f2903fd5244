package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mirajehossain/shift/internal/config"
	"github.com/mirajehossain/shift/internal/fsutil"
	"github.com/mirajehossain/shift/internal/migrator"
)

const executableTemplate = `package migration

import "context"

func Migrate(ctx context.Context, sessions []func(context.Context, string, ...interface{}) ([]map[string]interface{}, error)) error {
	// sessions[0] is the primary session
	return nil
}
`

var nonWord = regexp.MustCompile(`\W+`)

// create scaffolds an empty migration numbered one past the highest existing
// version and returns its path.
func create(dir, name, typ, driver string) (string, error) {
	var ext, body string
	switch typ {
	case "", "script":
		ext, body = "cql", "-- write your migration here\n"
		if driver == config.DriverMySQL || driver == config.DriverSQLite {
			ext = "sql"
		}
	case "go":
		ext, body = "go", executableTemplate
	default:
		return "", fmt.Errorf("unknown migration type %q", typ)
	}
	base := sanitize(name)
	if base == "" {
		return "", fmt.Errorf("invalid migration name %q", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	version, err := nextVersion(dir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%d__%s.%s", version, base, ext))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// nextVersion scans dir with every registered migration extension.
func nextVersion(dir string) (int64, error) {
	exts := migrator.NewLoader(migrator.Source{Dir: dir}, nil).Extensions()
	entries, err := fsutil.ScanDir(dir, fsutil.Pattern(exts))
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(entries) == 0 {
		return 1, nil
	}
	return entries[len(entries)-1].Version + 1, nil
}

func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonWord.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
