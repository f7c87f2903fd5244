package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrDuplicateVersion = errors.New("duplicate migration version")
	ErrInvalidVersion   = errors.New("invalid migration version")
)

// Entry is one migration file whose name matched the pattern.
type Entry struct {
	Version  int64
	RawName  string // text between "__" and the extension
	Ext      string
	Filename string
	Path     string // path on disk, or inside the fs.FS
}

// Pattern builds `^(\d+)__(\w*)\.(ext|...)$` for the given extensions.
func Pattern(exts []string) *regexp.Regexp {
	quoted := make([]string, 0, len(exts))
	for _, e := range exts {
		quoted = append(quoted, regexp.QuoteMeta(strings.TrimPrefix(e, ".")))
	}
	sort.Strings(quoted)
	return regexp.MustCompile(`^(\d+)__(\w*)\.(` + strings.Join(quoted, "|") + `)$`)
}

// ScanDir scans a local directory on disk.
func ScanDir(dir string, re *regexp.Regexp) ([]Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	return scan(entries, re, func(name string) string { return filepath.Join(dir, name) })
}

// ScanEmbedded scans an fs.FS under a root dir path (logical, slash separated).
func ScanEmbedded(fsys fs.FS, root string, re *regexp.Regexp) ([]Entry, error) {
	if root == "" {
		root = "."
	}
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, err
	}
	return scan(entries, re, func(name string) string { return path.Join(root, name) })
}

func scan(entries []fs.DirEntry, re *regexp.Regexp, full func(name string) string) ([]Entry, error) {
	out := make([]Entry, 0, len(entries))
	seen := map[int64]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("%w: %q in %s", ErrInvalidVersion, m[1], e.Name())
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("%w: %d in %s and %s", ErrDuplicateVersion, version, prev, e.Name())
		}
		seen[version] = e.Name()
		out = append(out, Entry{
			Version:  version,
			RawName:  m[2],
			Ext:      m[3],
			Filename: e.Name(),
			Path:     full(e.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// DisplayName turns "create_users" into "Create users".
func DisplayName(raw string) string {
	spaced := strings.ReplaceAll(raw, "_", " ")
	r, size := utf8.DecodeRuneInString(spaced)
	if r == utf8.RuneError {
		return spaced
	}
	return string(unicode.ToUpper(r)) + spaced[size:]
}
