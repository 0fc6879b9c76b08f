// Package cache persists check outcomes keyed by content fingerprint.
//
// Entries are append-only: Record inserts an entry only when none exists for
// the fingerprint, and nothing in a run ever updates or deletes one. When a
// check's inputs change its fingerprint changes, so the old entry is simply
// never looked up again.
package cache

import (
	"context"
	"errors"
	"time"
)

// Store persists cache entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Lookup returns the entry for a fingerprint.
	// Returns ErrNotFound if no entry exists.
	Lookup(ctx context.Context, fingerprint string) (*Entry, error)

	// Record inserts e unless an entry for e.Fingerprint already exists.
	// Reports whether this call inserted the entry. An existing entry is
	// never overwritten.
	Record(ctx context.Context, e Entry) (bool, error)

	// Stats summarizes the store's contents.
	Stats(ctx context.Context) (Stats, error)

	// Prune removes entries created before the cutoff and returns how many
	// were removed. It is a maintenance operation, never part of a run.
	Prune(ctx context.Context, before time.Time) (int, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Stats summarizes a store.
type Stats struct {
	Backend string
	Entries int
	// Original is the sum of every entry's original duration.
	Original time.Duration
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates no entry exists for the fingerprint.
	ErrNotFound = errors.New("cache entry not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("cache store closed")

	// ErrInvalidEntry indicates an entry without a fingerprint.
	ErrInvalidEntry = errors.New("cache entry requires a fingerprint")

	// ErrUnknownBackend indicates an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown cache backend")
)
