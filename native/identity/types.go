package identity

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the closed set of participant kinds the registry recognises. It is a
// tagged variant rather than a boolean so every authorization check matches
// exhaustively.
type Role uint8

const (
	// RoleUser marks an ordinary participant that can sell, buy and rate.
	RoleUser Role = iota
	// RoleMarketplace marks a supervising marketplace operator. Marketplaces
	// initiate and drive escrow transactions but never sell.
	RoleMarketplace
)

// Valid reports whether the role value is within the supported range.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleMarketplace:
		return true
	default:
		return false
	}
}

// String renders the canonical lowercase label used on the wire.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleMarketplace:
		return "marketplace"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole maps a wire label onto a Role.
func ParseRole(label string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "user":
		return RoleUser, nil
	case "marketplace":
		return RoleMarketplace, nil
	default:
		return 0, fmt.Errorf("identity: unknown role %q", label)
	}
}

// UserProfile is the registry record for a single account. Profiles are
// created exactly once and never deleted; the role is immutable after
// registration.
type UserProfile struct {
	Address      [20]byte
	Role         Role
	RegisteredAt int64
}

// Validate ensures the profile payload is well formed before persistence.
func (p *UserProfile) Validate() error {
	if p == nil {
		return errors.New("identity: profile nil")
	}
	if p.Address == ([20]byte{}) {
		return errors.New("identity: address required")
	}
	if !p.Role.Valid() {
		return fmt.Errorf("identity: invalid role: %d", p.Role)
	}
	if p.RegisteredAt <= 0 {
		return errors.New("identity: registeredAt must be positive")
	}
	return nil
}

// Clone returns a copy of the profile so callers can safely mutate the result
// without affecting the stored instance.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
