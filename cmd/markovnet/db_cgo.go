//go:build cgo_sqlite

package main

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// initDB opens the database with the cgo driver. Pragmas go in the DSN using
// go-sqlite3's syntax, e.g. "file.db?_journal_mode=WAL&_busy_timeout=5000".
func initDB(dataSource string) (*sql.DB, error) {
	return sql.Open("sqlite3", dataSource)
}
