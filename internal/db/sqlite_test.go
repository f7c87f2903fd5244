package db

import (
	"context"
	"testing"
	"time"
)

func TestSQLiteLedgerRoundTrip(t *testing.T) {
	sqlDB, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()
	s := NewSQLite(sqlDB)
	defer s.Close()
	ctx := context.Background()

	if err := s.EnsureKeyspace(ctx, "main"); err != nil {
		t.Fatalf("ensure keyspace: %v", err)
	}
	if err := s.UseKeyspace(ctx, "main"); err != nil {
		t.Fatalf("use keyspace: %v", err)
	}
	if err := s.EnsureLedgerTable(ctx, "migration_history"); err != nil {
		t.Fatalf("ensure table: %v", err)
	}
	// idempotent
	if err := s.EnsureLedgerTable(ctx, "migration_history"); err != nil {
		t.Fatalf("ensure table twice: %v", err)
	}

	_, err = s.Execute(ctx, `INSERT INTO migration_history (version, name, type, checksum, installed_on, execution_time, success) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(1), "Create users", "SCRIPT", "abc", time.Now(), int64(3), true)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	rows, err := s.Execute(ctx, `SELECT version, name FROM migration_history`)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "Create users" {
		t.Fatalf("unexpected rows: %#v", rows)
	}

	if err := s.DropKeyspace(ctx, "main"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	tables, err := s.Execute(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		t.Fatalf("list tables: %v", err)
	}
	if len(tables) != 0 {
		t.Fatalf("expected no tables after drop, got %#v", tables)
	}
}
