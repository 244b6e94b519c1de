//go:build cgo_sqlite

package store

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens the SQLite database at dataSource with the cgo driver. This
// driver spells connection pragmas as "?_journal_mode=WAL&_busy_timeout=5000"
// and ignores the _pragma parameters understood by modernc.org/sqlite.
func Open(dataSource string) (*sql.DB, error) {
	return sql.Open("sqlite3", dataSource)
}
