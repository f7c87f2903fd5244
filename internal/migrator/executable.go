package migrator

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"reflect"
	"strings"

	"github.com/GoCodeAlone/yaegi/interp"
	"github.com/GoCodeAlone/yaegi/stdlib"

	"github.com/mirajehossain/shift/internal/checksum"
)

// SessionFunc is how an executable migration sees one database session.
type SessionFunc = func(context.Context, string, ...interface{}) ([]map[string]interface{}, error)

type entryFunc = func(context.Context, []SessionFunc) error

const (
	executablePackage = "migration"
	executableEntry   = executablePackage + ".Migrate"
)

// AllowedImports lists the packages an executable migration may import.
var AllowedImports = map[string]bool{
	"context":       true,
	"errors":        true,
	"fmt":           true,
	"strings":       true,
	"strconv":       true,
	"time":          true,
	"math":          true,
	"sort":          true,
	"bytes":         true,
	"encoding/json": true,
	"regexp":        true,
	"unicode":       true,
	"unicode/utf8":  true,
	"slices":        true,
	"maps":          true,
}

// ExecutableMigration is a Go source file interpreted at load time. It must
// declare package migration and
//
//	func Migrate(ctx context.Context, sessions []func(context.Context, string, ...interface{}) ([]map[string]interface{}, error)) error
type ExecutableMigration struct {
	descriptor
	fn entryFunc
}

// NewExecutableMigration validates and compiles source. Compilation errors are
// returned here so that a broken unit fails discovery, not execution.
func NewExecutableMigration(version int64, name, path string, source []byte) (*ExecutableMigration, error) {
	if err := validateExecutableSource(path, source); err != nil {
		return nil, err
	}
	fn, err := compileExecutable(string(source))
	if err != nil {
		return nil, err
	}
	return &ExecutableMigration{
		descriptor: descriptor{
			version:  version,
			name:     name,
			path:     path,
			checksum: checksum.SHA256(source),
		},
		fn: fn,
	}, nil
}

func (m *ExecutableMigration) Type() Type { return TypeExecutable }

// Execute hands every session to the interpreted Migrate function.
func (m *ExecutableMigration) Execute(ctx context.Context, sessions []Session) (err error) {
	if len(sessions) == 0 {
		return ErrNoSession
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in Migrate: %v", r)
		}
	}()
	fns := make([]SessionFunc, len(sessions))
	for i, s := range sessions {
		fns[i] = s.Execute
	}
	return m.fn(ctx, fns)
}

func validateExecutableSource(path string, source []byte) error {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, source, parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("syntax error: %w", err)
	}
	if f.Name.Name != executablePackage {
		return fmt.Errorf("%w: package %s, want %s", ErrMissingEntryPoint, f.Name.Name, executablePackage)
	}
	for _, imp := range f.Imports {
		pkg := strings.Trim(imp.Path.Value, `"`)
		if !AllowedImports[pkg] {
			return fmt.Errorf("%w: %q", ErrForbiddenImport, pkg)
		}
	}
	return nil
}

func compileExecutable(source string) (fn entryFunc, err error) {
	defer func() {
		if r := recover(); r != nil {
			fn, err = nil, fmt.Errorf("panic while compiling: %v", r)
		}
	}()

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if _, err := i.Eval(source); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	v, err := i.Eval(executableEntry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingEntryPoint, err)
	}
	if f, ok := v.Interface().(entryFunc); ok {
		return f, nil
	}
	return reflectEntry(v)
}

// reflectEntry adapts a Migrate value the interpreter did not hand back with
// the exact function type.
func reflectEntry(v reflect.Value) (entryFunc, error) {
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, ErrMissingEntryPoint
	}
	t := v.Type()
	sessionsType := reflect.TypeOf([]SessionFunc(nil))
	if t.NumIn() != 2 || t.NumOut() != 1 || !sessionsType.ConvertibleTo(t.In(1)) {
		return nil, fmt.Errorf("%w: signature %s", ErrMissingEntryPoint, t)
	}
	return func(ctx context.Context, sessions []SessionFunc) error {
		out := v.Call([]reflect.Value{
			reflect.ValueOf(&ctx).Elem(),
			reflect.ValueOf(sessions).Convert(t.In(1)),
		})
		if err, ok := out[0].Interface().(error); ok {
			return err
		}
		return nil
	}, nil
}
