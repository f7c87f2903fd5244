package db

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// OpenMySQL opens a pool for dsn. The migrations database itself is selected
// later through USE, so dsn may omit it.
func OpenMySQL(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", withParseTime(dsn))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// withParseTime makes the driver scan ledger timestamps as time.Time.
func withParseTime(dsn string) string {
	if strings.Contains(strings.ToLower(dsn), "parsetime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}
