package store

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrModelNotFound is returned when a named model does not exist. It wraps
// sql.ErrNoRows, so errors.Is works with either.
var ErrModelNotFound = fmt.Errorf("model not found: %w", sql.ErrNoRows)

// SetupSchema initializes the necessary tables in the provided database. This
// function should be called once on a new database before any other
// operations are performed. It is idempotent and safe to call on an
// already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaModels = `
CREATE TABLE IF NOT EXISTS markov_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    model_order INTEGER NOT NULL,
    revision TEXT NOT NULL,
    corpus_size INTEGER NOT NULL DEFAULT 0
);
`
		schemaWindows = `
CREATE TABLE IF NOT EXISTS markov_windows (
    model_id INTEGER NOT NULL,
    window_id INTEGER NOT NULL,
    window_bytes BLOB NOT NULL,
    PRIMARY KEY (model_id, window_id)
);
`
		schemaChains = `
CREATE TABLE IF NOT EXISTS markov_chains (
    model_id INTEGER NOT NULL,
    window_id INTEGER NOT NULL,
    next_byte INTEGER NOT NULL,
    frequency INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (model_id, window_id, next_byte)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing. If it fails, this will clean up.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaModels); err != nil {
		return fmt.Errorf("could not create models schema: %w", err)
	}

	if _, err = tx.Exec(schemaWindows); err != nil {
		return fmt.Errorf("could not create windows schema: %w", err)
	}

	if _, err = tx.Exec(schemaChains); err != nil {
		return fmt.Errorf("could not create chains schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Store persists byte-level Markov models in a SQLite database. It holds
// the database connection and prepared SQL statements for efficient access.
// All methods are safe for concurrent use.
type Store struct {
	db               *sql.DB
	stmtGetModelInfo *sql.Stmt
	stmtGetModelByID *sql.Stmt
	stmtGetModels    *sql.Stmt
	stmtModelWindows *sql.Stmt
	stmtModelChains  *sql.Stmt
	stmtModelFreq    *sql.Stmt
	stmtLoadWindows  *sql.Stmt
	stmtLoadChains   *sql.Stmt
	logger           *slog.Logger

	entropyMu sync.Mutex
	entropy   *rand.Rand
}

// New creates and returns a new Store. The schema must already exist (see
// SetupSchema). It pre-compiles all necessary SQL statements, returning an
// error if any preparation fails.
func New(db *sql.DB) (*Store, error) {
	s := &Store{
		db:      db,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	prepare := func(dst **sql.Stmt, query string) error {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("could not prepare %q: %w", query, err)
		}
		*dst = stmt
		return nil
	}

	statements := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtGetModelInfo, `SELECT model_id, model_order, revision, corpus_size FROM markov_models WHERE model_name = ?;`},
		{&s.stmtGetModelByID, `SELECT model_order, corpus_size FROM markov_models WHERE model_id = ?;`},
		{&s.stmtGetModels, `SELECT model_id, model_name, model_order, revision, corpus_size FROM markov_models;`},
		{&s.stmtModelWindows, `SELECT COUNT(*) FROM markov_windows WHERE model_id = ?;`},
		{&s.stmtModelChains, `SELECT COUNT(*) FROM markov_chains WHERE model_id = ?;`},
		{&s.stmtModelFreq, `SELECT coalesce(SUM(frequency), 0) FROM markov_chains WHERE model_id = ?;`},
		{&s.stmtLoadWindows, `SELECT window_id, window_bytes FROM markov_windows WHERE model_id = ? ORDER BY window_id;`},
		{&s.stmtLoadChains, `SELECT window_id, next_byte, frequency FROM markov_chains WHERE model_id = ? ORDER BY window_id, next_byte;`},
	}
	for _, st := range statements {
		if err := prepare(st.dst, st.query); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

// Close releases all prepared SQL statements held by the Store. It does not
// close the underlying database.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{
		s.stmtGetModelInfo,
		s.stmtGetModelByID,
		s.stmtGetModels,
		s.stmtModelWindows,
		s.stmtModelChains,
		s.stmtModelFreq,
		s.stmtLoadWindows,
		s.stmtLoadChains,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// newRevision returns a fresh, time-ordered revision identifier.
func (s *Store) newRevision() string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}
