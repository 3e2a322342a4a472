package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"marketstate/storage"
)

// Manager provides typed key-value access over the raw storage backend. Values
// are RLP encoded and keys are keccak256 hashed before hitting the database so
// logical key layout changes never collide with stored entries.
//
// Manager performs no locking of its own; the coordinating node serializes all
// mutations (one at a time, globally ordered) before they reach this layer.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var kvPrefix = []byte("kv:")

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(kvPrefix, key)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the entry stored under the supplied key. Deleting a missing
// key is not an error.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.db.Delete(kvKey(key))
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	list, err := m.KVGetList(key)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, value)
	return m.KVPut(key, list)
}

// KVRemove removes the provided value from the RLP-encoded byte slice list
// stored under the supplied key. Removing an absent value is not an error.
func (m *Manager) KVRemove(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	list, err := m.KVGetList(key)
	if err != nil {
		return err
	}
	filtered := list[:0]
	for _, existing := range list {
		if !bytes.Equal(existing, value) {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == len(list) {
		return nil
	}
	return m.KVPut(key, filtered)
}

// KVGetList decodes the byte slice list stored under the supplied key. A
// missing key yields an empty list.
func (m *Manager) KVGetList(key []byte) ([][]byte, error) {
	var list [][]byte
	ok, err := m.KVGet(key, &list)
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][]byte{}, nil
	}
	return list, nil
}

// CounterNext returns the current value of the monotonic counter stored under
// the supplied key and advances it by one. Counters start at zero.
func (m *Manager) CounterNext(key []byte) (uint64, error) {
	var current uint64
	if _, err := m.KVGet(key, &current); err != nil {
		return 0, err
	}
	if err := m.KVPut(key, current+1); err != nil {
		return 0, err
	}
	return current, nil
}

// CounterPeek reads the counter without advancing it.
func (m *Manager) CounterPeek(key []byte) (uint64, error) {
	var current uint64
	if _, err := m.KVGet(key, &current); err != nil {
		return 0, err
	}
	return current, nil
}

// EncodeUint64 renders an identifier as fixed-width big-endian bytes, suitable
// for index list entries.
func EncodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// DecodeUint64 reverses EncodeUint64.
func DecodeUint64(buf []byte) (uint64, error) {
	if len(buf) != 8 {
		return 0, fmt.Errorf("kv: malformed uint64 index entry")
	}
	return binary.BigEndian.Uint64(buf), nil
}
