package db

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockMySQL(t *testing.T) (*SQL, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	s := NewMySQL(mockDB)
	t.Cleanup(func() {
		_ = s.Close()
		mockDB.Close()
	})
	return s, mock
}

func TestMySQLAdminStatements(t *testing.T) {
	s, mock := newMockMySQL(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("CREATE DATABASE IF NOT EXISTS `app`")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("USE `app`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS migration_history")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DROP DATABASE IF EXISTS `app`")).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.EnsureKeyspace(ctx, "app"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := s.UseKeyspace(ctx, "app"); err != nil {
		t.Fatalf("use: %v", err)
	}
	if err := s.EnsureLedgerTable(ctx, "migration_history"); err != nil {
		t.Fatalf("ledger table: %v", err)
	}
	if err := s.DropKeyspace(ctx, "app"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLRejectsBadIdentifiers(t *testing.T) {
	s, mock := newMockMySQL(t)
	ctx := context.Background()
	for _, name := range []string{"", "a-b", "x; DROP TABLE y", "1abc"} {
		if err := s.UseKeyspace(ctx, name); !errors.Is(err, ErrInvalidIdentifier) {
			t.Fatalf("UseKeyspace(%q): expected ErrInvalidIdentifier, got %v", name, err)
		}
		if err := s.EnsureLedgerTable(ctx, name); !errors.Is(err, ErrInvalidIdentifier) {
			t.Fatalf("EnsureLedgerTable(%q): expected ErrInvalidIdentifier, got %v", name, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLExecuteReadsRows(t *testing.T) {
	s, mock := newMockMySQL(t)
	rows := sqlmock.NewRows([]string{"version", "name"}).
		AddRow(int64(1), []byte("Create users")).
		AddRow(int64(2), []byte("Add index"))
	mock.ExpectQuery("SELECT version, name FROM migration_history").WillReturnRows(rows)

	out, err := s.Execute(context.Background(), "SELECT version, name FROM migration_history")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}
	if out[0]["name"] != "Create users" || out[1]["version"] != int64(2) {
		t.Fatalf("unexpected rows: %#v", out)
	}
}

func TestSQLExecutePassesArgs(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO t (a, b) VALUES (?, ?)")).
		WithArgs(int64(7), "x").
		WillReturnResult(sqlmock.NewResult(1, 1))

	out, err := s.Execute(context.Background(), "INSERT INTO t (a, b) VALUES (?, ?)", int64(7), "x")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != nil {
		t.Fatalf("expected no rows, got %#v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReturnsRows(t *testing.T) {
	cases := map[string]bool{
		"SELECT 1":                    true,
		"  select * from t":           true,
		"WITH x AS (SELECT 1) SELECT": true,
		"INSERT INTO t VALUES (1)":    false,
		"CREATE TABLE t (id int)":     false,
		"":                            false,
	}
	for stmt, want := range cases {
		if got := returnsRows(stmt); got != want {
			t.Fatalf("returnsRows(%q) = %v, want %v", stmt, got, want)
		}
	}
}
