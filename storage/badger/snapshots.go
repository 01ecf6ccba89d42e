// Package badger implements the snapshot archive on a Badger key-value
// store, with msgpack-encoded values.
package badger

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v4"

	"github.com/timecrypt/vdf/model/vdf"
	"github.com/timecrypt/vdf/storage"
)

// keyPrefix namespaces snapshot records within the store.
const keyPrefix = 0x01

// Snapshots is a Badger-backed snapshot archive.
type Snapshots struct {
	db *badger.DB
}

var _ storage.Snapshots = (*Snapshots)(nil)

// NewSnapshots opens (or creates) an archive at the given directory.
func NewSnapshots(log zerolog.Logger, dir string) (*Snapshots, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("could not open archive at %s: %w", dir, err)
	}
	log.Info().Str("component", "snapshot_archive").Str("dir", dir).Msg("archive opened")
	return &Snapshots{db: db}, nil
}

// WithDB wraps an already-open database, used in tests.
func WithDB(db *badger.DB) *Snapshots {
	return &Snapshots{db: db}
}

// Store persists the snapshot, overwriting any previous record under the
// same instance id.
func (s *Snapshots) Store(snapshot vdf.Snapshot) error {
	val, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("could not encode snapshot: %w", err)
	}
	err = s.db.Update(func(tx *badger.Txn) error {
		return tx.Set(makeKey(snapshot.ID), val)
	})
	if err != nil {
		return fmt.Errorf("could not store snapshot %s: %w", snapshot.ID, err)
	}
	return nil
}

// ByID retrieves a snapshot, returning storage.ErrNotFound when absent.
func (s *Snapshots) ByID(id vdf.InstanceID) (vdf.Snapshot, error) {
	var snapshot vdf.Snapshot
	err := s.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(makeKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &snapshot)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return vdf.Snapshot{}, storage.ErrNotFound
	}
	if err != nil {
		return vdf.Snapshot{}, fmt.Errorf("could not retrieve snapshot %s: %w", id, err)
	}
	return snapshot, nil
}

// Close releases the underlying database.
func (s *Snapshots) Close() error {
	return s.db.Close()
}

func makeKey(id vdf.InstanceID) []byte {
	key := make([]byte, 0, 1+len(id))
	key = append(key, keyPrefix)
	key = append(key, id...)
	return key
}
