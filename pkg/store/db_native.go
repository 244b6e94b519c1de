//go:build !cgo_sqlite

package store

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// Open opens the SQLite database at dataSource with the pure-Go driver.
// Build with the cgo_sqlite tag to use github.com/mattn/go-sqlite3 instead.
func Open(dataSource string) (*sql.DB, error) {
	return sql.Open("sqlite", dataSource)
}
