// Package store provides the SQLite-backed insights cache and the rolling
// knee data store. Both live in one database file; every mutation is a
// per-date transaction, so a failure mid-run never corrupts earlier dates.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register sqlite driver
)

// schemaVersion is stamped into PRAGMA user_version on creation.
const schemaVersion = 1

// DB wraps the shared database handle behind both stores.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// OpenMemory opens a private in-memory database. Used when the on-disk
// file cannot be opened: the run proceeds with an empty cache instead of
// aborting, and the next run retries the real file.
func OpenMemory() (*DB, error) {
	db, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory db: %w", err)
	}
	// Every pooled connection gets its own private in-memory database;
	// pinning the pool to one connection keeps schema and data alive.
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("db schema version %d is newer than supported %d", version, schemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("stamping schema version: %w", err)
	}
	return nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Insights returns the insights cache view of this database.
func (d *DB) Insights() *InsightsCache {
	return &InsightsCache{db: d.db}
}

// KneeData returns the knee data store view of this database.
func (d *DB) KneeData() *KneeDataStore {
	return &KneeDataStore{db: d.db}
}
