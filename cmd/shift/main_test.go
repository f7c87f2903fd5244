package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/gocql/gocql"

	"github.com/mirajehossain/shift/internal/migrator"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRunSQLite(t *testing.T) {
	tmp := t.TempDir()
	dir := filepath.Join(tmp, "migrations")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "1__create_users.sql", "CREATE TABLE users (id INTEGER PRIMARY KEY);\n")

	metricsPath := filepath.Join(tmp, "shift.prom")
	base := []string{"--driver", "sqlite", "--dsn", filepath.Join(tmp, "app.db"), "--dir", dir, "--keyspace", "main"}
	shift := func(cmd string, extra ...string) (int, string) {
		var stdout, stderr bytes.Buffer
		args := append([]string{cmd}, append(append([]string{}, base...), extra...)...)
		code := run(args, &stdout, &stderr)
		return code, stdout.String()
	}

	if code, _ := shift("migrate"); code != exitOK {
		t.Fatalf("first migrate exited %d", code)
	}
	writeFile(t, dir, "2__seed_users.sql", "INSERT INTO users (id) VALUES (1);\n")
	if code, _ := shift("validate"); code != exitPending {
		t.Fatalf("expected pending, got %d", code)
	}
	if code, _ := shift("migrate", "--metrics-file", metricsPath); code != exitOK {
		t.Fatalf("migrate exited %d", code)
	}
	if b, err := os.ReadFile(metricsPath); err != nil || !strings.Contains(string(b), "shift_migrations_total") {
		t.Fatalf("metrics file not written: %v", err)
	}
	if code, _ := shift("validate"); code != exitOK {
		t.Fatalf("validate exited %d", code)
	}

	code, out := shift("info", "--json")
	if code != exitOK {
		t.Fatalf("info exited %d", code)
	}
	var slots []migrator.InfoSlot
	if err := json.Unmarshal([]byte(out), &slots); err != nil {
		t.Fatalf("decode info %q: %v", out, err)
	}
	if len(slots) != 2 || slots[1].State != migrator.StateSuccess || slots[1].Name != "Seed users" {
		t.Fatalf("unexpected slots: %#v", slots)
	}

	writeFile(t, dir, "1__create_users.sql", "CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT);\n")
	if code, _ := shift("validate"); code != exitConsistency {
		t.Fatalf("expected consistency exit, got %d", code)
	}
	if code, _ := shift("migrate"); code != exitConsistency {
		t.Fatalf("expected migrate to refuse drift, got %d", code)
	}

	if code, _ := shift("clean"); code != exitPlanError {
		t.Fatalf("clean without --yes must be refused, got %d", code)
	}
	if code, _ := shift("clean", "--yes"); code != exitOK {
		t.Fatalf("clean exited %d", code)
	}
	if code, _ := shift("migrate"); code != exitOK {
		t.Fatalf("migrate after clean exited %d", code)
	}
}

func TestRunFailedMigrationHalts(t *testing.T) {
	tmp := t.TempDir()
	writeFile(t, tmp, "1__broken.sql", "CREATE TABLE ok (id INTEGER);\nNOT SQL AT ALL;\n")
	base := []string{"--driver", "sqlite", "--dsn", filepath.Join(tmp, "app.db"), "--dir", tmp}

	var out, errOut bytes.Buffer
	if code := run(append([]string{"migrate"}, base...), &out, &errOut); code != exitFail {
		t.Fatalf("expected execution failure, got %d: %s", code, errOut.String())
	}
	if code := run(append([]string{"migrate"}, base...), &out, &errOut); code != exitConsistency {
		t.Fatalf("expected halted ledger, got %d", code)
	}
}

func TestRunConfigErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	cases := [][]string{
		{"migrate", "--driver", "oracle"},
		{"migrate", "--driver", "mysql", "--dsn", ""},
		{"migrate", "--bogus"},
		{"create"},
		{"frobnicate"},
		{"info", "--config", filepath.Join(t.TempDir(), "missing.yaml")},
	}
	for _, args := range cases {
		if code := run(args, &out, &errOut); code != exitPlanError {
			t.Fatalf("%v: expected %d, got %d", args, exitPlanError, code)
		}
	}
	if code := run(nil, &out, &errOut); code != exitOK {
		t.Fatalf("usage should exit 0, got %d", code)
	}
}

func versionOf(t *testing.T, path string) int64 {
	t.Helper()
	m := regexp.MustCompile(`^(\d+)__`).FindStringSubmatch(filepath.Base(path))
	if m == nil {
		t.Fatalf("no version in %s", path)
	}
	v, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		t.Fatalf("parse version %s: %v", m[1], err)
	}
	return v
}

func TestCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")

	path, err := create(dir, "Add User-Table", "script", "cassandra")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "1__add_user_table.cql" {
		t.Fatalf("unexpected file name: %s", path)
	}

	path, err = create(dir, "seed", "go", "sqlite")
	if err != nil {
		t.Fatalf("create go: %v", err)
	}
	if versionOf(t, path) != 2 {
		t.Fatalf("expected version 2, got %s", path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := migrator.NewExecutableMigration(2, "Seed", path, src); err != nil {
		t.Fatalf("template must compile: %v", err)
	}

	if path, err = create(dir, "ddl", "", "mysql"); err != nil || filepath.Base(path) != "3__ddl.sql" {
		t.Fatalf("expected 3__ddl.sql for mysql, got %s, %v", path, err)
	}
	if _, err := create(dir, "x", "python", ""); err == nil {
		t.Fatal("expected unknown type error")
	}
	if _, err := create(dir, "!!!", "script", ""); err == nil {
		t.Fatal("expected invalid name error")
	}
}

func TestCreateContinuesAfterHighestVersion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "7__users.cql", "CREATE TABLE users (id int PRIMARY KEY);\n")
	writeFile(t, dir, "12__orders.go", "package migration\n")
	writeFile(t, dir, "99__notes.txt", "not a migration")

	path, err := create(dir, "add_index", "script", "cassandra")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	v := versionOf(t, path)
	if v != 13 {
		t.Fatalf("expected version 13, got %d", v)
	}
	// the ledger binds versions as CQL values
	for _, typ := range []gocql.Type{gocql.TypeInt, gocql.TypeBigInt} {
		if _, err := gocql.Marshal(gocql.NewNativeType(4, typ, ""), v); err != nil {
			t.Fatalf("version %d does not fit %s: %v", v, typ, err)
		}
	}

	writeFile(t, dir, "013__dup.cql", "x;\n")
	if _, err := create(dir, "again", "script", "cassandra"); err == nil {
		t.Fatal("expected duplicate versions to be reported")
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{&migrator.ConsistencyError{Err: migrator.ErrHalted}, exitConsistency},
		{fmt.Errorf("%w: applied 1 out of 2 migrations", migrator.ErrPendingMigrations), exitPending},
		{&migrator.DiscoveryError{Path: "x", Err: migrator.ErrDuplicateVersion}, exitPlanError},
		{&migrator.ExecutionError{Err: errors.New("boom")}, exitFail},
		{&migrator.LedgerAccessError{Op: "fetch", Err: errors.New("down")}, exitFail},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Fatalf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
