package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"marketstate/core/events"
	"marketstate/core/state"
	nativecommon "marketstate/native/common"
	"marketstate/native/identity"
	"marketstate/native/market"
	"marketstate/native/reputation"
)

const moduleName = "escrow"

var (
	// ErrNotFound marks lookups for transactions that were never created.
	ErrNotFound = errors.New("escrow: transaction not found")
	// ErrUnauthorized marks calls from an account lacking the required role
	// or transaction membership.
	ErrUnauthorized = errors.New("escrow: caller not authorized")
	// ErrInvalidPhase marks transitions attempted outside their valid state.
	ErrInvalidPhase = errors.New("escrow: operation invalid in current phase")
	// ErrNotEligible marks initiation against an offer whose preconditions
	// are unmet (no buyer acceptance, participant mismatch).
	ErrNotEligible = errors.New("escrow: offer not eligible for initiation")
	// ErrAlreadyRated marks repeat rating submissions by the same role.
	ErrAlreadyRated = errors.New("escrow: rating already submitted")
	// ErrRatingsIncomplete marks finalization before both parties rated.
	ErrRatingsIncomplete = errors.New("escrow: both parties must rate before finalization")
	// ErrValidation marks malformed transition input.
	ErrValidation = errors.New("escrow: validation failed")
)

// engineState abstracts the subset of state manager functionality required by
// the transaction engine.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte) ([][]byte, error)
	CounterNext(key []byte) (uint64, error)
	CounterPeek(key []byte) (uint64, error)
}

// identityView is the slice of the identity engine consulted for role checks.
type identityView interface {
	Get(addr [20]byte) (*identity.UserProfile, error)
}

// offerBook is the slice of the offer book the engine consumes offers from.
// Claim removes the offer inside the same serialized mutation as the
// transaction creation, which is what prevents two initiations from spending
// the same offer.
type offerBook interface {
	Get(id uint64) (*market.Offer, error)
	Claim(id uint64) (*market.Offer, error)
}

// ratingRecorder is the reputation aggregator entry point. The engine is its
// only caller.
type ratingRecorder interface {
	Record(subject, rater [20]byte, transactionID uint64, rating uint8, review string) error
}

var (
	txPrefix        = []byte("escrow/tx/")
	txAccountPrefix = []byte("escrow/account/")
	txCounterKey    = []byte("escrow/txs/nextId")
)

func txKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", txPrefix, id))
}

func accountIndexKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", txAccountPrefix, addr))
}

// Engine is the transaction phase state machine. Every mutating entry point
// validates role, membership and phase before the first write so a rejected
// transition leaves no partial state behind.
type Engine struct {
	state      engineState
	identity   identityView
	offers     offerBook
	reputation ratingRecorder
	emitter    events.Emitter
	nowFn      func() int64
	pauses     nativecommon.PauseView
}

// NewEngine constructs a transaction engine bound to its collaborators.
func NewEngine(st engineState, ident identityView, offers offerBook, rec ratingRecorder) *Engine {
	return &Engine{
		state:      st,
		identity:   ident,
		offers:     offers,
		reputation: rec,
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
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

// Initiate consumes a buyer-accepted offer and opens the phase-1 transaction.
// Only a registered marketplace account may initiate, and the named buyer and
// seller must match the offer's acceptance record.
func (e *Engine) Initiate(marketplace, buyer, seller [20]byte, offerID uint64) (*Transaction, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	profile, err := e.identity.Get(marketplace)
	if err != nil {
		return nil, err
	}
	if profile.Role != identity.RoleMarketplace {
		return nil, ErrUnauthorized
	}
	offer, err := e.offers.Get(offerID)
	if err != nil {
		return nil, err
	}
	if !offer.BuyerAccepted {
		return nil, ErrNotEligible
	}
	if offer.Buyer != buyer || offer.Seller != seller {
		return nil, fmt.Errorf("%w: participants do not match offer acceptance", ErrNotEligible)
	}
	if marketplace == buyer || marketplace == seller {
		return nil, fmt.Errorf("%w: marketplace cannot be a trading party", ErrNotEligible)
	}
	if _, err := e.offers.Claim(offerID); err != nil {
		return nil, err
	}
	id, err := e.state.CounterNext(txCounterKey)
	if err != nil {
		return nil, err
	}
	tx := &Transaction{
		ID:            id,
		OfferID:       offer.ID,
		Buyer:         buyer,
		Seller:        seller,
		Marketplace:   marketplace,
		Item:          offer.Item,
		Price:         offer.Price,
		Status:        StatusShipmentPending,
		DeliveryState: DeliveryNotShipped,
		StartTime:     e.now(),
	}
	sanitized, err := SanitizeTransaction(tx)
	if err != nil {
		return nil, err
	}
	if err := e.putTransaction(sanitized); err != nil {
		return nil, err
	}
	for _, participant := range [][20]byte{buyer, seller, marketplace} {
		if err := e.state.KVAppend(accountIndexKey(participant), state.EncodeUint64(id)); err != nil {
			return nil, err
		}
	}
	e.emit(NewInitiatedEvent(sanitized))
	return sanitized.Clone(), nil
}

// ConfirmShipping marks the goods as shipped and advances the transaction to
// phase 2. The phase-2 deadline is computed from the supplied duration.
func (e *Engine) ConfirmShipping(id uint64, caller [20]byte, phase2Duration int64) (*Transaction, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	tx, err := e.loadTransaction(id)
	if err != nil {
		return nil, err
	}
	if tx.Marketplace != caller {
		return nil, ErrUnauthorized
	}
	if tx.Status != StatusShipmentPending {
		return nil, ErrInvalidPhase
	}
	if phase2Duration <= 0 {
		return nil, fmt.Errorf("%w: phase 2 duration must be positive", ErrValidation)
	}
	now := e.now()
	tx.DeliveryState = DeliveryShipped
	tx.Phase1EndTime = now
	tx.Phase2EndTime = now + phase2Duration
	tx.Status = StatusDeliveryPending
	if err := e.putTransaction(tx); err != nil {
		return nil, err
	}
	e.emit(NewShippingConfirmedEvent(tx))
	return tx.Clone(), nil
}

// UpdateDeliveryState records the delivery outcome while the transaction sits
// in phase 2. It never advances the phase: problem states exist for dispute
// resolution and the explicit ConfirmDelivery transition performs the advance.
func (e *Engine) UpdateDeliveryState(id uint64, caller [20]byte, ds DeliveryState) (*Transaction, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	tx, err := e.loadTransaction(id)
	if err != nil {
		return nil, err
	}
	if tx.Marketplace != caller {
		return nil, ErrUnauthorized
	}
	if tx.Status != StatusDeliveryPending {
		return nil, ErrInvalidPhase
	}
	switch ds {
	case DeliveryShipped, DeliveryMissingData, DeliveryProblem:
	default:
		return nil, fmt.Errorf("%w: delivery state %d not settable", ErrValidation, ds)
	}
	tx.DeliveryState = ds
	if err := e.putTransaction(tx); err != nil {
		return nil, err
	}
	e.emit(NewDeliveryUpdatedEvent(tx))
	return tx.Clone(), nil
}

// ConfirmDelivery advances a cleanly shipped transaction from phase 2 to the
// rating phase.
func (e *Engine) ConfirmDelivery(id uint64, caller [20]byte) (*Transaction, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	tx, err := e.loadTransaction(id)
	if err != nil {
		return nil, err
	}
	if tx.Marketplace != caller {
		return nil, ErrUnauthorized
	}
	if tx.Status != StatusDeliveryPending {
		return nil, ErrInvalidPhase
	}
	if tx.DeliveryState != DeliveryShipped {
		return nil, fmt.Errorf("%w: delivery not confirmed as shipped", ErrNotEligible)
	}
	tx.Status = StatusRatingPending
	if err := e.putTransaction(tx); err != nil {
		return nil, err
	}
	e.emit(NewDeliveryConfirmedEvent(tx))
	return tx.Clone(), nil
}

// SubmitRating records one party's ratings for the counterparty and the
// marketplace. Each role may submit exactly once, and both ratings feed the
// reputation aggregator inside the same serialized mutation.
func (e *Engine) SubmitRating(id uint64, rater [20]byte, participantRating, marketplaceRating uint8, review string) (*Transaction, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	tx, err := e.loadTransaction(id)
	if err != nil {
		return nil, err
	}
	if tx.Status != StatusRatingPending {
		return nil, ErrInvalidPhase
	}
	var subject [20]byte
	switch rater {
	case tx.Buyer:
		if tx.BuyerRated {
			return nil, ErrAlreadyRated
		}
		subject = tx.Seller
	case tx.Seller:
		if tx.SellerRated {
			return nil, ErrAlreadyRated
		}
		subject = tx.Buyer
	default:
		return nil, ErrUnauthorized
	}
	for _, rating := range []uint8{participantRating, marketplaceRating} {
		if rating < reputation.RatingMin || rating > reputation.RatingMax {
			return nil, fmt.Errorf("%w: %v", ErrValidation, reputation.ErrRatingOutOfRange)
		}
	}
	if err := e.reputation.Record(subject, rater, tx.ID, participantRating, review); err != nil {
		return nil, err
	}
	if err := e.reputation.Record(tx.Marketplace, rater, tx.ID, marketplaceRating, ""); err != nil {
		return nil, err
	}
	if rater == tx.Buyer {
		tx.BuyerRated = true
		tx.MarketplaceRatedByBuyer = true
	} else {
		tx.SellerRated = true
		tx.MarketplaceRatedBySeller = true
	}
	if err := e.putTransaction(tx); err != nil {
		return nil, err
	}
	e.emit(NewRatingSubmittedEvent(tx, rater))
	return tx.Clone(), nil
}

// Finalize closes a fully rated transaction. Irreversible.
func (e *Engine) Finalize(id uint64, caller [20]byte) (*Transaction, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	tx, err := e.loadTransaction(id)
	if err != nil {
		return nil, err
	}
	if tx.Marketplace != caller {
		return nil, ErrUnauthorized
	}
	if tx.Status != StatusRatingPending {
		return nil, ErrInvalidPhase
	}
	if !tx.BuyerRated || !tx.SellerRated {
		return nil, ErrRatingsIncomplete
	}
	tx.Status = StatusFinalized
	tx.Phase3EndTime = e.now()
	if err := e.putTransaction(tx); err != nil {
		return nil, err
	}
	e.emit(NewFinalizedEvent(tx))
	return tx.Clone(), nil
}

// Cancel aborts a non-finalized transaction. Ratings already submitted are
// retained for audit but finalization becomes unreachable.
func (e *Engine) Cancel(id uint64, caller [20]byte) (*Transaction, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	tx, err := e.loadTransaction(id)
	if err != nil {
		return nil, err
	}
	if tx.Marketplace != caller {
		return nil, ErrUnauthorized
	}
	if tx.Status.Terminal() {
		return nil, ErrInvalidPhase
	}
	tx.CancelledPhase = tx.Phase()
	tx.Status = StatusCancelled
	if err := e.putTransaction(tx); err != nil {
		return nil, err
	}
	e.emit(NewCancelledEvent(tx))
	return tx.Clone(), nil
}

// Get retrieves a transaction by identifier.
func (e *Engine) Get(id uint64) (*Transaction, error) {
	return e.loadTransaction(id)
}

// PhaseOf returns the 1/2/3 phase number for the dashboard.
func (e *Engine) PhaseOf(id uint64) (uint8, error) {
	tx, err := e.loadTransaction(id)
	if err != nil {
		return 0, err
	}
	return tx.Phase(), nil
}

// ListByAccount returns every transaction the account participates in as
// buyer, seller or marketplace, in creation order.
func (e *Engine) ListByAccount(addr [20]byte) ([]*Transaction, error) {
	entries, err := e.state.KVGetList(accountIndexKey(addr))
	if err != nil {
		return nil, err
	}
	txs := make([]*Transaction, 0, len(entries))
	for _, entry := range entries {
		id, err := state.DecodeUint64(entry)
		if err != nil {
			return nil, err
		}
		tx, err := e.loadTransaction(id)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// Count returns how many transactions have ever been created.
func (e *Engine) Count() (uint64, error) {
	return e.state.CounterPeek(txCounterKey)
}

type storedTransaction struct {
	ID                       uint64
	OfferID                  uint64
	Buyer                    [20]byte
	Seller                   [20]byte
	Marketplace              [20]byte
	Item                     string
	Price                    []byte
	Status                   uint8
	CancelledPhase           uint8
	DeliveryState            uint8
	StartTime                uint64
	Phase1EndTime            uint64
	Phase2EndTime            uint64
	Phase3EndTime            uint64
	BuyerRated               bool
	SellerRated              bool
	MarketplaceRatedByBuyer  bool
	MarketplaceRatedBySeller bool
}

func (e *Engine) putTransaction(tx *Transaction) error {
	stored := storedTransaction{
		ID:                       tx.ID,
		OfferID:                  tx.OfferID,
		Buyer:                    tx.Buyer,
		Seller:                   tx.Seller,
		Marketplace:              tx.Marketplace,
		Item:                     tx.Item,
		Price:                    tx.Price.Bytes(),
		Status:                   uint8(tx.Status),
		CancelledPhase:           tx.CancelledPhase,
		DeliveryState:            uint8(tx.DeliveryState),
		StartTime:                uint64(tx.StartTime),
		Phase1EndTime:            uint64(tx.Phase1EndTime),
		Phase2EndTime:            uint64(tx.Phase2EndTime),
		Phase3EndTime:            uint64(tx.Phase3EndTime),
		BuyerRated:               tx.BuyerRated,
		SellerRated:              tx.SellerRated,
		MarketplaceRatedByBuyer:  tx.MarketplaceRatedByBuyer,
		MarketplaceRatedBySeller: tx.MarketplaceRatedBySeller,
	}
	return e.state.KVPut(txKey(tx.ID), &stored)
}

func (e *Engine) loadTransaction(id uint64) (*Transaction, error) {
	var stored storedTransaction
	ok, err := e.state.KVGet(txKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return transactionFromStored(&stored), nil
}

func bigFromBytes(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

func transactionFromStored(stored *storedTransaction) *Transaction {
	return &Transaction{
		ID:                       stored.ID,
		OfferID:                  stored.OfferID,
		Buyer:                    stored.Buyer,
		Seller:                   stored.Seller,
		Marketplace:              stored.Marketplace,
		Item:                     stored.Item,
		Price:                    bigFromBytes(stored.Price),
		Status:                   Status(stored.Status),
		CancelledPhase:           stored.CancelledPhase,
		DeliveryState:            DeliveryState(stored.DeliveryState),
		StartTime:                int64(stored.StartTime),
		Phase1EndTime:            int64(stored.Phase1EndTime),
		Phase2EndTime:            int64(stored.Phase2EndTime),
		Phase3EndTime:            int64(stored.Phase3EndTime),
		BuyerRated:               stored.BuyerRated,
		SellerRated:              stored.SellerRated,
		MarketplaceRatedByBuyer:  stored.MarketplaceRatedByBuyer,
		MarketplaceRatedBySeller: stored.MarketplaceRatedBySeller,
	}
}
