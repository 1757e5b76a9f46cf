// Package store provides local board snapshot persistence.
//
// The flow manager is client-authoritative: every structural change is
// written through to a local snapshot first, and backend sync happens
// best-effort via the retry queue. A board therefore survives a reload even
// when the backend was unreachable the whole session.
package store

import (
	"errors"
	"time"
)

// Store persists board snapshots keyed by graph id.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a snapshot for a graph, overwriting any previous one.
	Save(graphID string, data []byte) error

	// Load retrieves the latest snapshot.
	// Returns ErrNotFound if the graph has no snapshot.
	Load(graphID string) ([]byte, error)

	// List returns metadata for all stored snapshots.
	List() ([]Info, error)

	// Delete removes a graph's snapshot.
	// Returns nil if no snapshot exists.
	Delete(graphID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides snapshot metadata without loading the payload.
type Info struct {
	GraphID   string
	UpdatedAt time.Time
	Size      int64
}

// Sentinel errors for snapshot operations.
var (
	// ErrNotFound indicates a snapshot doesn't exist.
	ErrNotFound = errors.New("snapshot not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("snapshot store closed")
)
