package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Status is the single lifecycle state of a transaction. Collapsing the phase
// counter and the finalized/cancelled flags into one closed enum makes illegal
// combinations (such as a finalized phase-1 transaction) unrepresentable.
type Status uint8

const (
	// StatusShipmentPending is phase 1: the marketplace has consumed the
	// offer and shipment has not been confirmed yet.
	StatusShipmentPending Status = iota + 1
	// StatusDeliveryPending is phase 2: goods are in transit.
	StatusDeliveryPending
	// StatusRatingPending is phase 3: delivery is confirmed and both parties
	// owe their ratings.
	StatusRatingPending
	// StatusFinalized is the terminal state reached once both parties rated
	// and the marketplace closed the transaction. Irreversible.
	StatusFinalized
	// StatusCancelled is the terminal state reached when the marketplace
	// aborts a non-finalized transaction. Irreversible.
	StatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusShipmentPending, StatusDeliveryPending, StatusRatingPending, StatusFinalized, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusFinalized || s == StatusCancelled
}

// String renders the canonical lowercase label used on the wire.
func (s Status) String() string {
	switch s {
	case StatusShipmentPending:
		return "shipment_pending"
	case StatusDeliveryPending:
		return "delivery_pending"
	case StatusRatingPending:
		return "rating_pending"
	case StatusFinalized:
		return "finalized"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// DeliveryState tracks the shipment outcome recorded by the marketplace while
// a transaction sits in phase 2. Problem states do not advance the phase; they
// exist for dispute resolution.
type DeliveryState uint8

const (
	DeliveryNotShipped DeliveryState = iota
	DeliveryShipped
	DeliveryMissingData
	DeliveryProblem
)

// Valid reports whether the delivery state value is within the supported range.
func (d DeliveryState) Valid() bool {
	switch d {
	case DeliveryNotShipped, DeliveryShipped, DeliveryMissingData, DeliveryProblem:
		return true
	default:
		return false
	}
}

// String renders the canonical lowercase label used on the wire.
func (d DeliveryState) String() string {
	switch d {
	case DeliveryNotShipped:
		return "not_shipped"
	case DeliveryShipped:
		return "shipped"
	case DeliveryMissingData:
		return "missing_data"
	case DeliveryProblem:
		return "delivery_problem"
	default:
		return fmt.Sprintf("delivery(%d)", uint8(d))
	}
}

// ParseDeliveryState maps a wire label onto a DeliveryState.
func ParseDeliveryState(label string) (DeliveryState, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "not_shipped":
		return DeliveryNotShipped, nil
	case "shipped":
		return DeliveryShipped, nil
	case "missing_data":
		return DeliveryMissingData, nil
	case "delivery_problem":
		return DeliveryProblem, nil
	default:
		return 0, fmt.Errorf("escrow: unknown delivery state %q", label)
	}
}

// Transaction is the escrow lifecycle record for one consumed offer. It is
// never physically destroyed: finalization and cancellation leave it behind as
// a read-only historical record.
type Transaction struct {
	ID          uint64
	OfferID     uint64
	Buyer       [20]byte
	Seller      [20]byte
	Marketplace [20]byte
	Item        string
	Price       *big.Int

	Status         Status
	CancelledPhase uint8
	DeliveryState  DeliveryState

	StartTime     int64
	Phase1EndTime int64
	Phase2EndTime int64
	Phase3EndTime int64

	BuyerRated               bool
	SellerRated              bool
	MarketplaceRatedByBuyer  bool
	MarketplaceRatedBySeller bool
}

// Phase derives the 1/2/3 phase number the dashboard renders. Finalized
// transactions report phase 3; cancelled transactions report the phase they
// had reached when aborted.
func (t *Transaction) Phase() uint8 {
	if t == nil {
		return 0
	}
	switch t.Status {
	case StatusShipmentPending:
		return 1
	case StatusDeliveryPending:
		return 2
	case StatusRatingPending, StatusFinalized:
		return 3
	case StatusCancelled:
		return t.CancelledPhase
	default:
		return 0
	}
}

// Finalized reports whether the transaction reached its successful terminal
// state.
func (t *Transaction) Finalized() bool {
	return t != nil && t.Status == StatusFinalized
}

// Clone returns a deep copy of the transaction so callers can safely mutate
// the copy without affecting the stored instance.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Price != nil {
		clone.Price = new(big.Int).Set(t.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// SanitizeTransaction validates the supplied transaction definition and
// returns a cloned instance with a non-nil price. The function does not mutate
// the original value.
func SanitizeTransaction(t *Transaction) (*Transaction, error) {
	if t == nil {
		return nil, errors.New("escrow: nil transaction")
	}
	clone := t.Clone()
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("escrow: invalid status: %d", clone.Status)
	}
	if !clone.DeliveryState.Valid() {
		return nil, fmt.Errorf("escrow: invalid delivery state: %d", clone.DeliveryState)
	}
	if clone.Buyer == ([20]byte{}) || clone.Seller == ([20]byte{}) || clone.Marketplace == ([20]byte{}) {
		return nil, errors.New("escrow: participants required")
	}
	if clone.Buyer == clone.Seller || clone.Buyer == clone.Marketplace || clone.Seller == clone.Marketplace {
		return nil, errors.New("escrow: participants must be distinct")
	}
	if clone.Price.Sign() <= 0 {
		return nil, errors.New("escrow: price must be positive")
	}
	if clone.Status == StatusCancelled && (clone.CancelledPhase < 1 || clone.CancelledPhase > 3) {
		return nil, errors.New("escrow: cancelled phase out of range")
	}
	return clone, nil
}
