// Package repository is the document-store collaborator: hand-written SQL
// over database/sql for report persistence, fingerprint persistence and
// duplicate lookups.
package repository

import (
	"database/sql"
)

// Queries bundles all database access behind one constructor-injected value.
type Queries struct {
	db *sql.DB
}

// New creates a Queries instance over an open database handle.
func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}
