package market

import (
	"encoding/hex"
	"strconv"

	"marketstate/core/types"
)

const (
	EventTypeOfferCreated  = "market.offer.created"
	EventTypeOfferDeleted  = "market.offer.deleted"
	EventTypeOfferAccepted = "market.offer.accepted"
	EventTypeOfferClaimed  = "market.offer.claimed"
)

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// NewOfferCreatedEvent returns the canonical event payload for a new offer.
func NewOfferCreatedEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferCreated, o)
}

// NewOfferDeletedEvent returns the payload emitted when a seller withdraws an
// offer.
func NewOfferDeletedEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferDeleted, o)
}

// NewOfferAcceptedEvent returns the payload emitted when a buyer expresses
// interest.
func NewOfferAcceptedEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferAccepted, o)
}

// NewOfferClaimedEvent returns the payload emitted when a transaction
// initiation consumes the offer.
func NewOfferClaimedEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferClaimed, o)
}

func newOfferEvent(eventType string, o *Offer) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["offerId"] = strconv.FormatUint(o.ID, 10)
	attrs["seller"] = hex.EncodeToString(o.Seller[:])
	attrs["item"] = o.Item
	if o.Price != nil {
		attrs["price"] = o.Price.String()
	}
	attrs["createdAt"] = strconv.FormatInt(o.CreatedAt, 10)
	if o.BuyerAccepted {
		attrs["buyer"] = hex.EncodeToString(o.Buyer[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: evt})
}
