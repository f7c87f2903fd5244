package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
)

// SQL adapts a database/sql pool to the migrator's session and admin
// contracts. Every statement runs on one dedicated connection so that a
// USE issued by the admin sticks for the following statements.
type SQL struct {
	mu      sync.Mutex
	db      *sqlx.DB
	conn    *sqlx.Conn
	dialect dialect
}

type dialect interface {
	ensureKeyspace(keyspace string) []string
	useKeyspace(keyspace string) []string
	dropKeyspace(ctx context.Context, s *SQL, keyspace string) error
	ledgerDDL(table string) string
}

// NewMySQL wraps a pool opened with OpenMySQL.
func NewMySQL(db *sql.DB) *SQL {
	return &SQL{db: sqlx.NewDb(db, "mysql"), dialect: mysqlDialect{}}
}

// NewSQLite wraps a pool opened with OpenSQLite.
func NewSQLite(db *sql.DB) *SQL {
	return &SQL{db: sqlx.NewDb(db, "sqlite"), dialect: sqliteDialect{}}
}

func (s *SQL) connection(ctx context.Context) (*sqlx.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	return conn, nil
}

// Execute runs stmt. Statements that produce rows are read through MapScan;
// everything else is executed and yields no rows.
func (s *SQL) Execute(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		return nil, err
	}
	if !returnsRows(stmt) {
		_, err := conn.ExecContext(ctx, stmt, args...)
		return nil, err
	}
	rows, err := conn.QueryxContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []map[string]any
	for rows.Next() {
		r := map[string]any{}
		if err := rows.MapScan(r); err != nil {
			return nil, err
		}
		for k, v := range r {
			if b, ok := v.([]byte); ok {
				r[k] = string(b)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func returnsRows(stmt string) bool {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "SHOW", "WITH", "PRAGMA", "DESCRIBE", "DESC", "EXPLAIN":
		return true
	}
	return false
}

func (s *SQL) run(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := s.Execute(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQL) EnsureKeyspace(ctx context.Context, keyspace string) error {
	if err := checkIdent("keyspace", keyspace); err != nil {
		return err
	}
	return s.run(ctx, s.dialect.ensureKeyspace(keyspace))
}

func (s *SQL) UseKeyspace(ctx context.Context, keyspace string) error {
	if err := checkIdent("keyspace", keyspace); err != nil {
		return err
	}
	return s.run(ctx, s.dialect.useKeyspace(keyspace))
}

func (s *SQL) DropKeyspace(ctx context.Context, keyspace string) error {
	if err := checkIdent("keyspace", keyspace); err != nil {
		return err
	}
	return s.dialect.dropKeyspace(ctx, s, keyspace)
}

func (s *SQL) EnsureLedgerTable(ctx context.Context, table string) error {
	if err := checkIdent("table", table); err != nil {
		return err
	}
	_, err := s.Execute(ctx, s.dialect.ledgerDDL(table))
	return err
}

// Close returns the dedicated connection to the pool. The pool itself belongs
// to the caller.
func (s *SQL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

type mysqlDialect struct{}

func (mysqlDialect) ensureKeyspace(ks string) []string {
	return []string{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4", ks)}
}

func (mysqlDialect) useKeyspace(ks string) []string {
	return []string{fmt.Sprintf("USE `%s`", ks)}
}

func (mysqlDialect) dropKeyspace(ctx context.Context, s *SQL, ks string) error {
	_, err := s.Execute(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", ks))
	return err
}

func (mysqlDialect) ledgerDDL(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  version BIGINT NOT NULL PRIMARY KEY,
  name VARCHAR(255) NOT NULL,
  type VARCHAR(32) NOT NULL,
  checksum CHAR(64) NOT NULL,
  installed_on TIMESTAMP(3) NOT NULL,
  execution_time BIGINT NOT NULL,
  success BOOLEAN NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, table)
}

// A SQLite database file is its own keyspace: it exists once opened and can
// not be switched, so cleaning it means dropping every table.
type sqliteDialect struct{}

func (sqliteDialect) ensureKeyspace(string) []string { return nil }

func (sqliteDialect) useKeyspace(string) []string { return nil }

func (sqliteDialect) dropKeyspace(ctx context.Context, s *SQL, _ string) error {
	rows, err := s.Execute(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return err
	}
	for _, r := range rows {
		name := fmt.Sprint(r["name"])
		if _, err := s.Execute(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, strings.ReplaceAll(name, `"`, `""`))); err != nil {
			return err
		}
	}
	return nil
}

func (sqliteDialect) ledgerDDL(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  version INTEGER NOT NULL PRIMARY KEY,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  checksum TEXT NOT NULL,
  installed_on TIMESTAMP NOT NULL,
  execution_time INTEGER NOT NULL,
  success BOOLEAN NOT NULL
)`, table)
}
