package migrator

import (
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sort"

	"github.com/mirajehossain/shift/internal/fsutil"
)

// Source locates the migration definitions.
type Source struct {
	FS  fs.FS // nil means local disk
	Dir string
}

// File is a matched migration file handed to a Provider.
type File struct {
	Version int64
	Name    string // display name
	Path    string
	Content []byte
}

// Provider turns the contents of one file into a Migration.
type Provider func(f File) (Migration, error)

// ScriptProvider loads CQL/SQL statement batches.
func ScriptProvider(f File) (Migration, error) {
	return NewScriptMigration(f.Version, f.Name, f.Path, f.Content), nil
}

// ExecutableProvider loads interpreted Go migrations.
func ExecutableProvider(f File) (Migration, error) {
	return NewExecutableMigration(f.Version, f.Name, f.Path, f.Content)
}

// Loader discovers migrations. Only extensions with a registered Provider
// match the filename pattern.
type Loader struct {
	src       Source
	providers map[string]Provider
	log       *slog.Logger
}

func NewLoader(src Source, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{
		src: src,
		providers: map[string]Provider{
			"cql": ScriptProvider,
			"sql": ScriptProvider,
			"go":  ExecutableProvider,
		},
		log: log,
	}
}

// Register binds ext (without the dot) to p, replacing any previous provider.
func (l *Loader) Register(ext string, p Provider) {
	if len(ext) > 0 && ext[0] == '.' {
		ext = ext[1:]
	}
	l.providers[ext] = p
}

// Extensions returns the registered extensions, sorted.
func (l *Loader) Extensions() []string {
	out := make([]string, 0, len(l.providers))
	for ext := range l.providers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Load returns every available migration ordered by version. Any failure
// aborts the whole load.
func (l *Loader) Load() ([]Migration, error) {
	l.log.Debug("loading available migrations", "dir", l.src.Dir)

	re := fsutil.Pattern(l.Extensions())
	var entries []fsutil.Entry
	var err error
	if l.src.FS != nil {
		entries, err = fsutil.ScanEmbedded(l.src.FS, l.src.Dir, re)
	} else {
		entries, err = fsutil.ScanDir(l.src.Dir, re)
	}
	if err != nil {
		return nil, &DiscoveryError{Path: l.src.Dir, Err: err}
	}

	out := make([]Migration, 0, len(entries))
	for _, e := range entries {
		l.log.Debug("loading migration definition", "file", e.Filename)
		content, err := l.read(e.Path)
		if err != nil {
			return nil, &DiscoveryError{Path: e.Path, Err: err}
		}
		m, err := l.providers[e.Ext](File{
			Version: e.Version,
			Name:    fsutil.DisplayName(e.RawName),
			Path:    e.Path,
			Content: content,
		})
		if err != nil {
			return nil, &DiscoveryError{Path: e.Path, Err: err}
		}
		out = append(out, m)
	}
	return out, nil
}

func (l *Loader) read(path string) ([]byte, error) {
	if l.src.FS != nil {
		return fs.ReadFile(l.src.FS, path)
	}
	return os.ReadFile(path)
}
