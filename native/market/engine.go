package market

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"marketstate/core/events"
	"marketstate/core/state"
	nativecommon "marketstate/native/common"
	"marketstate/native/identity"
)

const moduleName = "market"

var (
	// ErrNotFound marks lookups for offers absent from the book.
	ErrNotFound = errors.New("market: offer not found")
	// ErrUnauthorized marks mutations by a caller other than the offer's
	// seller.
	ErrUnauthorized = errors.New("market: caller is not the offer seller")
	// ErrAlreadyAccepted marks acceptance attempts on an offer that already
	// carries an accepting buyer. First acceptance wins.
	ErrAlreadyAccepted = errors.New("market: offer already accepted")
	// ErrSelfAccept marks a seller trying to accept their own offer.
	ErrSelfAccept = errors.New("market: seller cannot accept own offer")
	// ErrValidation marks malformed offer input.
	ErrValidation = errors.New("market: validation failed")
)

// engineState abstracts the subset of state manager functionality required by
// the offer book.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte) ([][]byte, error)
	CounterNext(key []byte) (uint64, error)
}

// identityView is the slice of the identity engine consulted for role checks.
type identityView interface {
	Get(addr [20]byte) (*identity.UserProfile, error)
}

var (
	offerPrefix     = []byte("market/offer/")
	offerIndexKey   = []byte("market/offers/index")
	offerCounterKey = []byte("market/offers/nextId")
)

func offerKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", offerPrefix, id))
}

type storedOffer struct {
	ID            uint64
	Seller        [20]byte
	Item          string
	Price         *big.Int
	Description   string
	Buyer         [20]byte
	BuyerAccepted bool
	CreatedAt     uint64
}

// Engine implements the offer book: creation, withdrawal, buyer acceptance and
// the exclusive claim used by the transaction engine.
type Engine struct {
	state    engineState
	identity identityView
	emitter  events.Emitter
	nowFn    func() int64
	pauses   nativecommon.PauseView
}

// NewEngine constructs an offer book engine with a no-op emitter.
func NewEngine(st engineState, ident identityView) *Engine {
	return &Engine{
		state:    st,
		identity: ident,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses configures the module pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Create validates the seller and offer payload, assigns the next offer
// identifier and stores the offer in the open book. Marketplaces do not sell.
func (e *Engine) Create(seller [20]byte, item string, price *big.Int, description string) (*Offer, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	profile, err := e.identity.Get(seller)
	if err != nil {
		return nil, err
	}
	if profile.Role != identity.RoleUser {
		return nil, fmt.Errorf("%w: marketplace accounts cannot sell", ErrUnauthorized)
	}
	sanitized, err := SanitizeOffer(&Offer{
		Seller:      seller,
		Item:        item,
		Price:       price,
		Description: description,
		CreatedAt:   e.now(),
	})
	if err != nil {
		return nil, err
	}
	id, err := e.state.CounterNext(offerCounterKey)
	if err != nil {
		return nil, err
	}
	sanitized.ID = id
	if err := e.putOffer(sanitized); err != nil {
		return nil, err
	}
	if err := e.state.KVAppend(offerIndexKey, state.EncodeUint64(id)); err != nil {
		return nil, err
	}
	e.emit(NewOfferCreatedEvent(sanitized))
	return sanitized.Clone(), nil
}

// Get retrieves a single open offer.
func (e *Engine) Get(id uint64) (*Offer, error) {
	var stored storedOffer
	ok, err := e.state.KVGet(offerKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return offerFromStored(&stored), nil
}

// Delete withdraws an offer. Only the offer's seller may withdraw it.
func (e *Engine) Delete(id uint64, caller [20]byte) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	offer, err := e.Get(id)
	if err != nil {
		return err
	}
	if offer.Seller != caller {
		return ErrUnauthorized
	}
	if err := e.removeOffer(id); err != nil {
		return err
	}
	e.emit(NewOfferDeletedEvent(offer))
	return nil
}

// Accept records the buyer's non-binding interest in the offer. Only one
// acceptance is held at a time; the first buyer wins.
func (e *Engine) Accept(id uint64, buyer [20]byte) (*Offer, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if _, err := e.identity.Get(buyer); err != nil {
		return nil, err
	}
	offer, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	if offer.Seller == buyer {
		return nil, ErrSelfAccept
	}
	if offer.BuyerAccepted {
		return nil, ErrAlreadyAccepted
	}
	offer.Buyer = buyer
	offer.BuyerAccepted = true
	if err := e.putOffer(offer); err != nil {
		return nil, err
	}
	e.emit(NewOfferAcceptedEvent(offer))
	return offer.Clone(), nil
}

// List returns every offer still in the open book in creation order.
func (e *Engine) List() ([]*Offer, error) {
	entries, err := e.state.KVGetList(offerIndexKey)
	if err != nil {
		return nil, err
	}
	offers := make([]*Offer, 0, len(entries))
	for _, entry := range entries {
		id, err := state.DecodeUint64(entry)
		if err != nil {
			return nil, err
		}
		offer, err := e.Get(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

// ListAccepted returns the marketplace view of the book: only buyer-accepted
// offers, since only those are eligible for transaction initiation.
func (e *Engine) ListAccepted() ([]*Offer, error) {
	offers, err := e.List()
	if err != nil {
		return nil, err
	}
	accepted := offers[:0]
	for _, offer := range offers {
		if offer.BuyerAccepted {
			accepted = append(accepted, offer)
		}
	}
	return accepted, nil
}

// Claim removes the offer from the open book on behalf of the transaction
// engine and returns the consumed definition. The removal and the transaction
// creation run inside the same serialized mutation, so no two initiations can
// consume the same offer.
func (e *Engine) Claim(id uint64) (*Offer, error) {
	offer, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	if err := e.removeOffer(id); err != nil {
		return nil, err
	}
	e.emit(NewOfferClaimedEvent(offer))
	return offer, nil
}

func (e *Engine) putOffer(offer *Offer) error {
	stored := storedOffer{
		ID:            offer.ID,
		Seller:        offer.Seller,
		Item:          offer.Item,
		Price:         offer.Price,
		Description:   offer.Description,
		Buyer:         offer.Buyer,
		BuyerAccepted: offer.BuyerAccepted,
		CreatedAt:     uint64(offer.CreatedAt),
	}
	return e.state.KVPut(offerKey(offer.ID), &stored)
}

func (e *Engine) removeOffer(id uint64) error {
	if err := e.state.KVDelete(offerKey(id)); err != nil {
		return err
	}
	return e.state.KVRemove(offerIndexKey, state.EncodeUint64(id))
}

func offerFromStored(stored *storedOffer) *Offer {
	price := stored.Price
	if price == nil {
		price = big.NewInt(0)
	}
	return &Offer{
		ID:            stored.ID,
		Seller:        stored.Seller,
		Item:          stored.Item,
		Price:         new(big.Int).Set(price),
		Description:   stored.Description,
		Buyer:         stored.Buyer,
		BuyerAccepted: stored.BuyerAccepted,
		CreatedAt:     int64(stored.CreatedAt),
	}
}
