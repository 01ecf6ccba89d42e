package badger_test

import (
	"testing"
	"time"

	badgerdb "github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timecrypt/vdf/model/vdf"
	"github.com/timecrypt/vdf/storage"
	"github.com/timecrypt/vdf/storage/badger"
	"github.com/timecrypt/vdf/utils/unittest"
)

func TestStoreRetrieve(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badgerdb.DB) {
		archive := badger.WithDB(db)

		snapshot := unittest.SnapshotFixture()
		require.NoError(t, archive.Store(snapshot))

		retrieved, err := archive.ByID(snapshot.ID)
		require.NoError(t, err)

		assert.Equal(t, snapshot.ID, retrieved.ID)
		assert.Equal(t, snapshot.Params, retrieved.Params)
		assert.Equal(t, snapshot.Input, retrieved.Input)
		assert.Equal(t, snapshot.Output, retrieved.Output)
		assert.Equal(t, snapshot.Proof, retrieved.Proof)
		assert.Equal(t, snapshot.Status, retrieved.Status)
		assert.Equal(t, snapshot.Reward, retrieved.Reward)
		assert.WithinDuration(t, snapshot.VerifiedAt, retrieved.VerifiedAt, time.Millisecond)
	})
}

func TestStoreOverwrites(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badgerdb.DB) {
		archive := badger.WithDB(db)

		snapshot := unittest.SnapshotFixture()
		require.NoError(t, archive.Store(snapshot))

		snapshot.Reward = 42.0
		require.NoError(t, archive.Store(snapshot))

		retrieved, err := archive.ByID(snapshot.ID)
		require.NoError(t, err)
		assert.Equal(t, 42.0, retrieved.Reward)
	})
}

func TestByIDNotFound(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badgerdb.DB) {
		archive := badger.WithDB(db)

		_, err := archive.ByID(vdf.NewInstanceID())
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestOpenStoreReopen(t *testing.T) {
	unittest.RunWithTempDir(t, func(dir string) {
		archive, err := badger.NewSnapshots(unittest.Logger(), dir)
		require.NoError(t, err)

		snapshot := unittest.SnapshotFixture()
		require.NoError(t, archive.Store(snapshot))
		require.NoError(t, archive.Close())

		// the snapshot survives a restart
		archive, err = badger.NewSnapshots(unittest.Logger(), dir)
		require.NoError(t, err)
		defer archive.Close()

		retrieved, err := archive.ByID(snapshot.ID)
		require.NoError(t, err)
		assert.Equal(t, snapshot.Output, retrieved.Output)
	})
}
