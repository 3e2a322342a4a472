package identity

import (
	"errors"
	"fmt"
)

// storage abstracts the subset of state manager functionality required by the
// identity registry.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte) ([][]byte, error)
}

var (
	profilePrefix   = []byte("identity/profile/")
	accountIndexKey = []byte("identity/accounts")
)

func profileKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", profilePrefix, addr))
}

var (
	// ErrAlreadyRegistered marks a second registration attempt for an account
	// that already holds a profile.
	ErrAlreadyRegistered = errors.New("identity: account already registered")
	// ErrNotRegistered marks lookups for accounts without a profile.
	ErrNotRegistered = errors.New("identity: account not registered")
)

type storedProfile struct {
	Role         uint8
	RegisteredAt uint64
}

// Ledger persists user profiles and the insertion-ordered account index.
type Ledger struct {
	store storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{store: store}
}

// Put stores the profile and appends the account to the insertion-order index.
// The caller is responsible for the created-exactly-once check.
func (l *Ledger) Put(profile *UserProfile) error {
	if l == nil || l.store == nil {
		return errors.New("identity: storage unavailable")
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	stored := storedProfile{
		Role:         uint8(profile.Role),
		RegisteredAt: uint64(profile.RegisteredAt),
	}
	if err := l.store.KVPut(profileKey(profile.Address), &stored); err != nil {
		return err
	}
	return l.store.KVAppend(accountIndexKey, profile.Address[:])
}

// Get retrieves the profile for the supplied account. The boolean return value
// indicates whether the account is registered.
func (l *Ledger) Get(addr [20]byte) (*UserProfile, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, errors.New("identity: storage unavailable")
	}
	var stored storedProfile
	ok, err := l.store.KVGet(profileKey(addr), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &UserProfile{
		Address:      addr,
		Role:         Role(stored.Role),
		RegisteredAt: int64(stored.RegisteredAt),
	}, true, nil
}

// Accounts returns every registered account in insertion order.
func (l *Ledger) Accounts() ([][20]byte, error) {
	if l == nil || l.store == nil {
		return nil, errors.New("identity: storage unavailable")
	}
	raw, err := l.store.KVGetList(accountIndexKey)
	if err != nil {
		return nil, err
	}
	accounts := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 20 {
			return nil, fmt.Errorf("identity: malformed account index entry")
		}
		var addr [20]byte
		copy(addr[:], entry)
		accounts = append(accounts, addr)
	}
	return accounts, nil
}
