// Package corrdb persists correlation analysis runs to SQLite: the
// upper-triangle coefficient/lag pairs, the delay-time statistics, the merge
// tree and the cluster assignment, keyed by run id. The stored form keeps
// the matrix dimension, full float precision and the distance convention the
// tree was built under, so downstream dendrogram rendering stays consistent
// with the stored data.
package corrdb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the results database and brings the schema up to
// date.
func Open(path string) (*DB, error) {
	db, err := OpenRaw(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate results database: %w", err)
	}
	return db, nil
}

// OpenRaw opens the database without touching the schema. Used by the
// migrate CLI, which manages the schema itself.
func OpenRaw(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	return &DB{db}, nil
}
