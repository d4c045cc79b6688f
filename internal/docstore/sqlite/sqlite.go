// Package sqlite implements docstore.Store on top of an embedded SQLite file.
//
// WHY SQLITE FOR A DOCUMENT STORE?
// The hosted document database is an external collaborator. For local runs
// and for tests we want the same contract without any infrastructure, and
// SQLite's JSON1 functions give us everything the contract needs: every
// document is one row holding a JSON object, and equality filters become
// json_extract(data, '$."field"') = ? comparisons.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the binary builds without CGo.
//
// WHY sqlx?
// database/sql makes us Scan column by column. sqlx keeps the same pool and
// driver but scans rows straight into tagged structs (GetContext /
// SelectContext), which is all this adapter needs.
package sqlite

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB is a SQLite-backed document store.
type DB struct {
	conn *sqlx.DB
	now  func() time.Time
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/campus-link.db" → file-based database
//   - ":memory:"            → in-memory database, used by tests
func New(dbPath string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database. Pin the
	// pool to one connection so all queries see the same data.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn, now: time.Now}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the single documents table. CREATE ... IF NOT EXISTS makes
// it safe to run on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			data       TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, id)
		);
		CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
	`)
	if err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	return nil
}
