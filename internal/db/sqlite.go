package db

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens a SQLite database with the pure Go driver. With ":memory:"
// every pooled connection is a separate database; SQL pins one connection, so
// go through it rather than the returned pool.
func OpenSQLite(dsn string) (*sql.DB, error) {
	return sql.Open("sqlite", dsn)
}
