// Package store is the SQLite-backed persistent store for the RTU core
// (§6 "Persistent store"): users, modules, physical_sensors, adc_sensors,
// actuators, alarm_rules, alarm_history. Conflict detection (unique names,
// unique slots, pin-in-use) is enforced in Go before any write, not left
// to schema constraints alone, per §6.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/watertreat/rtu/errcode"
)

// Store wraps a *sql.DB opened against a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, &errcode.E{C: errcode.IoError, Op: "store.Open", Err: err}
	}
	db.SetMaxOpenConns(1) // sqlite3 driver: single writer, avoid SQLITE_BUSY churn

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &errcode.E{C: errcode.IoError, Op: "store.migrate", Err: fmt.Errorf("%s: %w", stmt, err)}
		}
	}
	return nil
}
