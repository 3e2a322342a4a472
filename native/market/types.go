package market

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Offer is a seller's proposal to sell an item at a price. It stays in the
// open book until the seller deletes it or a marketplace consumes it into an
// escrow transaction. Buyer acceptance is a non-binding expression of
// interest, not a transfer of funds.
type Offer struct {
	ID            uint64
	Seller        [20]byte
	Item          string
	Price         *big.Int
	Description   string
	Buyer         [20]byte
	BuyerAccepted bool
	CreatedAt     int64
}

// Accepted reports whether a buyer has expressed interest in the offer.
func (o *Offer) Accepted() bool {
	return o != nil && o.BuyerAccepted
}

// Clone returns a deep copy of the offer so callers can safely mutate the copy
// without affecting the stored instance.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Price != nil {
		clone.Price = new(big.Int).Set(o.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// SanitizeOffer validates and normalises the supplied offer definition,
// returning a cloned instance with trimmed strings and a non-nil price. The
// function does not mutate the original value.
func SanitizeOffer(o *Offer) (*Offer, error) {
	if o == nil {
		return nil, errors.New("market: nil offer")
	}
	clone := o.Clone()
	clone.Item = strings.TrimSpace(clone.Item)
	clone.Description = strings.TrimSpace(clone.Description)
	if clone.Item == "" {
		return nil, fmt.Errorf("%w: item must not be empty", ErrValidation)
	}
	if clone.Description == "" {
		return nil, fmt.Errorf("%w: description must not be empty", ErrValidation)
	}
	if clone.Seller == ([20]byte{}) {
		return nil, fmt.Errorf("%w: seller required", ErrValidation)
	}
	if clone.Price == nil || clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	if !clone.BuyerAccepted && clone.Buyer != ([20]byte{}) {
		return nil, fmt.Errorf("%w: buyer set without acceptance", ErrValidation)
	}
	return clone, nil
}
