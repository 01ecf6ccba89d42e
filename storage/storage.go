// Package storage defines the persistence contract for verified VDF
// snapshots. The archive is purely additive: nothing in the engine's
// correctness path ever reads from it.
package storage

import (
	"errors"

	"github.com/timecrypt/vdf/model/vdf"
)

// ErrNotFound is returned when a requested snapshot is not in the archive.
// Note: badger returns badger.ErrKeyNotFound from its own API; the badger
// implementation converts that to ErrNotFound so callers only ever match
// against this sentinel.
var ErrNotFound = errors.New("snapshot not found")

// Snapshots archives verified instance snapshots.
type Snapshots interface {
	// Store persists the snapshot, overwriting any previous snapshot with
	// the same instance id.
	Store(snapshot vdf.Snapshot) error

	// ByID retrieves a snapshot by instance id.
	// Returns ErrNotFound if no snapshot with the id exists.
	ByID(id vdf.InstanceID) (vdf.Snapshot, error)

	// Close releases the underlying resources.
	Close() error
}
