// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SchemaVersion is the current SQLite schema version.
const SchemaVersion = "1"

const schemaKey = "schema_version"

// SQLite is a SQLite-backed store. Every Put of a changed source appends a
// version row; the current source is the highest version.
type SQLite struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLite opens or creates a store at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS expressions (
			name TEXT NOT NULL,
			version INTEGER NOT NULL,
			source TEXT NOT NULL,
			ts TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
			PRIMARY KEY (name, version)
		);
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	s := &SQLite{db: db}

	version, err := s.getMetadataUnlocked(schemaKey)
	if err != nil {
		db.Close()
		return nil, err
	}
	switch version {
	case "":
		if err := s.setMetadataUnlocked(schemaKey, SchemaVersion); err != nil {
			db.Close()
			return nil, err
		}
	case SchemaVersion:
	default:
		db.Close()
		return nil, fmt.Errorf("store: unsupported schema version: %s (expected %s)", version, SchemaVersion)
	}

	return s, nil
}

// Get retrieves the current source by name.
func (s *SQLite) Get(name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var source string
	err := s.db.QueryRow(
		"SELECT source FROM expressions WHERE name = ? ORDER BY version DESC LIMIT 1", name,
	).Scan(&source)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get %s: %w", name, err)
	}
	return source, true, nil
}

// Put stores a source by name.
func (s *SQLite) Put(name, source string) error {
	if err := checkName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: put %s: %w", name, err)
	}
	defer tx.Rollback()

	var (
		latest  int
		current string
	)
	err = tx.QueryRow(
		"SELECT version, source FROM expressions WHERE name = ? ORDER BY version DESC LIMIT 1", name,
	).Scan(&latest, &current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("store: put %s: %w", name, err)
	case current == source:
		return nil
	}

	if _, err := tx.Exec(
		"INSERT INTO expressions (name, version, source) VALUES (?, ?, ?)", name, latest+1, source,
	); err != nil {
		return fmt.Errorf("store: put %s: %w", name, err)
	}
	return tx.Commit()
}

// Delete removes a name and its history.
func (s *SQLite) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM expressions WHERE name = ?", name); err != nil {
		return fmt.Errorf("store: delete %s: %w", name, err)
	}
	return nil
}

// List returns the stored names in sorted order.
func (s *SQLite) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT DISTINCT name FROM expressions ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetHistory returns up to limit versions of name, newest first. A limit of
// zero or less returns every version.
func (s *SQLite) GetHistory(name string, limit int) ([]VersionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		"SELECT version, source, ts FROM expressions WHERE name = ? ORDER BY version DESC LIMIT ?",
		name, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: history %s: %w", name, err)
	}
	defer rows.Close()
	var entries []VersionEntry
	for rows.Next() {
		var e VersionEntry
		if err := rows.Scan(&e.Version, &e.Source, &e.Ts); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetMetadata retrieves a metadata value by key.
func (s *SQLite) GetMetadata(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getMetadataUnlocked(key)
}

// getMetadataUnlocked retrieves metadata without locking (caller must hold lock).
func (s *SQLite) getMetadataUnlocked(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: metadata %s: %w", key, err)
	}
	return value, nil
}

// SetMetadata stores a metadata value by key.
func (s *SQLite) SetMetadata(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMetadataUnlocked(key, value)
}

// setMetadataUnlocked stores metadata without locking (caller must hold lock).
func (s *SQLite) setMetadataUnlocked(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("store: set metadata %s: %w", key, err)
	}
	return nil
}
