package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketstate/storage"
)

type record struct {
	Name  string
	Value uint64
}

func newTestManager() *Manager {
	return NewManager(storage.NewMemDB())
}

func TestKVRoundTrip(t *testing.T) {
	mgr := newTestManager()
	key := []byte("record/1")

	var out record
	ok, err := mgr.KVGet(key, &out)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.KVPut(key, &record{Name: "alpha", Value: 7}))
	ok, err = mgr.KVGet(key, &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record{Name: "alpha", Value: 7}, out)

	require.NoError(t, mgr.KVDelete(key))
	ok, err = mgr.KVGet(key, &out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVRejectsEmptyKey(t *testing.T) {
	mgr := newTestManager()
	require.Error(t, mgr.KVPut(nil, &record{}))
	_, err := mgr.KVGet(nil, &record{})
	require.Error(t, err)
	require.Error(t, mgr.KVDelete(nil))
}

func TestKVListAppendRemove(t *testing.T) {
	mgr := newTestManager()
	key := []byte("index")

	list, err := mgr.KVGetList(key)
	require.NoError(t, err)
	require.Empty(t, list)

	require.NoError(t, mgr.KVAppend(key, EncodeUint64(1)))
	require.NoError(t, mgr.KVAppend(key, EncodeUint64(2)))
	// Duplicate appends are ignored.
	require.NoError(t, mgr.KVAppend(key, EncodeUint64(1)))

	list, err = mgr.KVGetList(key)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, mgr.KVRemove(key, EncodeUint64(1)))
	// Removing an absent entry is not an error.
	require.NoError(t, mgr.KVRemove(key, EncodeUint64(9)))

	list, err = mgr.KVGetList(key)
	require.NoError(t, err)
	require.Len(t, list, 1)

	id, err := DecodeUint64(list[0])
	require.NoError(t, err)
	require.Equal(t, uint64(2), id)
}

func TestCounter(t *testing.T) {
	mgr := newTestManager()
	key := []byte("counter")

	current, err := mgr.CounterPeek(key)
	require.NoError(t, err)
	require.Equal(t, uint64(0), current)

	for want := uint64(0); want < 3; want++ {
		got, err := mgr.CounterNext(key)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	current, err = mgr.CounterPeek(key)
	require.NoError(t, err)
	require.Equal(t, uint64(3), current)
}

func TestDecodeUint64Malformed(t *testing.T) {
	_, err := DecodeUint64([]byte{1, 2, 3})
	require.Error(t, err)
}
