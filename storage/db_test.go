package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Database {
	t.Helper()
	dir := t.TempDir()
	level, err := NewLevelDB(filepath.Join(dir, "leveldb"))
	require.NoError(t, err)
	bolt, err := NewBoltDB(filepath.Join(dir, "state.bolt"))
	require.NoError(t, err)
	dbs := map[string]Database{
		"memory":  NewMemDB(),
		"leveldb": level,
		"bolt":    bolt,
	}
	t.Cleanup(func() {
		for _, db := range dbs {
			_ = db.Close()
		}
	})
	return dbs
}

func TestPutGetDelete(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := []byte("key")
			require.NoError(t, db.Put(key, []byte("value")))

			got, err := db.Get(key)
			require.NoError(t, err)
			require.Equal(t, []byte("value"), got)

			require.NoError(t, db.Put(key, []byte("updated")))
			got, err = db.Get(key)
			require.NoError(t, err)
			require.Equal(t, []byte("updated"), got)

			require.NoError(t, db.Delete(key))
			_, err = db.Get(key)
			require.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestGetMissingKey(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("absent"))
			require.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestDeleteMissingKey(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Delete([]byte("absent")))
		})
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("original")
	require.NoError(t, db.Put([]byte("key"), value))

	value[0] = 'X'
	got, err := db.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got)

	// Mutating the returned slice must not leak back into the store.
	got[0] = 'Y'
	again, err := db.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), again)
}
