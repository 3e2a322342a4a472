package escrow

import (
	"encoding/hex"
	"strconv"

	"marketstate/core/types"
)

const (
	EventTypeInitiated         = "escrow.transaction.initiated"
	EventTypeShippingConfirmed = "escrow.transaction.shipping_confirmed"
	EventTypeDeliveryUpdated   = "escrow.transaction.delivery_updated"
	EventTypeDeliveryConfirmed = "escrow.transaction.delivery_confirmed"
	EventTypeRatingSubmitted   = "escrow.transaction.rating_submitted"
	EventTypeFinalized         = "escrow.transaction.finalized"
	EventTypeCancelled         = "escrow.transaction.cancelled"
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// NewInitiatedEvent returns the payload emitted when an offer is consumed into
// a new transaction.
func NewInitiatedEvent(tx *Transaction) *types.Event {
	return newTransactionEvent(EventTypeInitiated, tx)
}

// NewShippingConfirmedEvent returns the payload emitted on the phase 1 to 2
// transition.
func NewShippingConfirmedEvent(tx *Transaction) *types.Event {
	return newTransactionEvent(EventTypeShippingConfirmed, tx)
}

// NewDeliveryUpdatedEvent returns the payload emitted when the marketplace
// records a delivery outcome.
func NewDeliveryUpdatedEvent(tx *Transaction) *types.Event {
	return newTransactionEvent(EventTypeDeliveryUpdated, tx)
}

// NewDeliveryConfirmedEvent returns the payload emitted on the phase 2 to 3
// transition.
func NewDeliveryConfirmedEvent(tx *Transaction) *types.Event {
	return newTransactionEvent(EventTypeDeliveryConfirmed, tx)
}

// NewRatingSubmittedEvent returns the payload emitted when one party records
// its ratings.
func NewRatingSubmittedEvent(tx *Transaction, rater [20]byte) *types.Event {
	evt := newTransactionEvent(EventTypeRatingSubmitted, tx)
	evt.Attributes["rater"] = hex.EncodeToString(rater[:])
	return evt
}

// NewFinalizedEvent returns the payload emitted when a transaction reaches its
// successful terminal state.
func NewFinalizedEvent(tx *Transaction) *types.Event {
	return newTransactionEvent(EventTypeFinalized, tx)
}

// NewCancelledEvent returns the payload emitted when the marketplace aborts a
// transaction.
func NewCancelledEvent(tx *Transaction) *types.Event {
	evt := newTransactionEvent(EventTypeCancelled, tx)
	if tx != nil {
		evt.Attributes["cancelledPhase"] = strconv.FormatUint(uint64(tx.CancelledPhase), 10)
	}
	return evt
}

func newTransactionEvent(eventType string, tx *Transaction) *types.Event {
	attrs := make(map[string]string)
	if tx == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["txId"] = strconv.FormatUint(tx.ID, 10)
	attrs["offerId"] = strconv.FormatUint(tx.OfferID, 10)
	attrs["buyer"] = hex.EncodeToString(tx.Buyer[:])
	attrs["seller"] = hex.EncodeToString(tx.Seller[:])
	attrs["marketplace"] = hex.EncodeToString(tx.Marketplace[:])
	attrs["status"] = tx.Status.String()
	attrs["phase"] = strconv.FormatUint(uint64(tx.Phase()), 10)
	attrs["deliveryState"] = tx.DeliveryState.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: evt})
}
