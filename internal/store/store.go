// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package store persists a library of named expression sources.
package store

import (
	"errors"
	"strings"
)

// ErrEmptyName is returned when storing a source without a name.
var ErrEmptyName = errors.New("store: empty expression name")

// Store is the interface for expression persistence.
type Store interface {
	// Get retrieves the current source stored under name. ok is false if
	// nothing is stored.
	Get(name string) (source string, ok bool, err error)
	// Put stores a source by name, replacing the current one.
	Put(name, source string) error
	// Delete removes a name and its history.
	Delete(name string) error
	// List returns the stored names in sorted order.
	List() ([]string, error)
	// Close releases resources.
	Close() error
}

// VersionEntry represents a single version of a stored source.
type VersionEntry struct {
	Version int
	Source  string
	Ts      string
}

// HistoryStore extends Store with version history queries. Putting a source
// identical to the current one does not create a version.
type HistoryStore interface {
	GetHistory(name string, limit int) ([]VersionEntry, error)
}

// MetadataStore holds string metadata such as the schema version.
type MetadataStore interface {
	GetMetadata(key string) (string, error)
	SetMetadata(key, value string) error
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	return nil
}
