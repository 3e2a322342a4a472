package core

import (
	"math/big"
	"sync"

	"marketstate/core/events"
	"marketstate/core/state"
	"marketstate/native/escrow"
	"marketstate/native/identity"
	"marketstate/native/market"
	"marketstate/native/reputation"
)

// pauseSet is the configuration-backed module pause view shared by every
// native engine.
type pauseSet map[string]struct{}

func (p pauseSet) IsPaused(module string) bool {
	_, ok := p[module]
	return ok
}

// Counts is the aggregate snapshot served to dashboards.
type Counts struct {
	Accounts     int
	OpenOffers   int
	Transactions uint64
}

// Node owns the state manager and every native engine, and serializes all
// mutations behind a single lock. Transition handlers therefore observe a
// stable snapshot: two concurrent initiations of the same offer resolve to one
// winner and one market.ErrNotFound.
type Node struct {
	mu sync.RWMutex

	state      *state.Manager
	identity   *identity.Engine
	market     *market.Engine
	escrow     *escrow.Engine
	reputation *reputation.Ledger
	hub        *events.Hub
}

// NewNode wires the native engines over the supplied state manager. The
// paused list names modules whose mutations are administratively rejected.
func NewNode(mgr *state.Manager, paused []string) *Node {
	hub := events.NewHub()
	pauses := make(pauseSet, len(paused))
	for _, module := range paused {
		pauses[module] = struct{}{}
	}

	ident := identity.NewEngine(mgr)
	ident.SetEmitter(hub)
	ident.SetPauses(pauses)

	book := market.NewEngine(mgr, ident)
	book.SetEmitter(hub)
	book.SetPauses(pauses)

	ledger := reputation.NewLedger(mgr)

	eng := escrow.NewEngine(mgr, ident, book, ledger)
	eng.SetEmitter(hub)
	eng.SetPauses(pauses)

	return &Node{
		state:      mgr,
		identity:   ident,
		market:     book,
		escrow:     eng,
		reputation: ledger,
		hub:        hub,
	}
}

// SetEmitter replaces the emitter on every engine, typically to layer metrics
// instrumentation over the event hub.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.identity.SetEmitter(emitter)
	n.market.SetEmitter(emitter)
	n.escrow.SetEmitter(emitter)
}

// Hub exposes the event hub for streaming subscribers.
func (n *Node) Hub() *events.Hub {
	return n.hub
}

// SubscribeEvents registers a streaming subscriber on the event hub.
func (n *Node) SubscribeEvents(buffer int) (<-chan events.Event, func()) {
	return n.hub.Subscribe(buffer)
}

// RegisterIdentity creates the on-ledger profile for an account.
func (n *Node) RegisterIdentity(addr [20]byte, role identity.Role) (*identity.UserProfile, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.identity.Register(addr, role)
}

// GetProfile returns the registered profile for an account.
func (n *Node) GetProfile(addr [20]byte) (*identity.UserProfile, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.identity.Get(addr)
}

// ListAccounts returns every registered account in registration order.
func (n *Node) ListAccounts() ([][20]byte, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.identity.List()
}

// CreateOffer publishes a new offer into the open book.
func (n *Node) CreateOffer(seller [20]byte, item string, price *big.Int, description string) (*market.Offer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.Create(seller, item, price, description)
}

// DeleteOffer withdraws an open offer on behalf of its seller.
func (n *Node) DeleteOffer(id uint64, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.Delete(id, caller)
}

// AcceptOffer records a buyer's interest in an open offer.
func (n *Node) AcceptOffer(id uint64, buyer [20]byte) (*market.Offer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.Accept(id, buyer)
}

// GetOffer returns a single open offer.
func (n *Node) GetOffer(id uint64) (*market.Offer, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.market.Get(id)
}

// ListOffers returns the open book in creation order.
func (n *Node) ListOffers() ([]*market.Offer, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.market.List()
}

// ListAcceptedOffers returns only buyer-accepted offers.
func (n *Node) ListAcceptedOffers() ([]*market.Offer, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.market.ListAccepted()
}

// InitiateTransaction consumes a buyer-accepted offer into a new escrow
// transaction. The offer claim and the transaction creation run under the
// same lock acquisition.
func (n *Node) InitiateTransaction(marketplace, buyer, seller [20]byte, offerID uint64) (*escrow.Transaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.Initiate(marketplace, buyer, seller, offerID)
}

// ConfirmShipping advances a transaction from phase 1 to phase 2.
func (n *Node) ConfirmShipping(id uint64, caller [20]byte, phase2Duration int64) (*escrow.Transaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.ConfirmShipping(id, caller, phase2Duration)
}

// UpdateDeliveryState records a delivery outcome during phase 2.
func (n *Node) UpdateDeliveryState(id uint64, caller [20]byte, ds escrow.DeliveryState) (*escrow.Transaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.UpdateDeliveryState(id, caller, ds)
}

// ConfirmDelivery advances a transaction from phase 2 to phase 3.
func (n *Node) ConfirmDelivery(id uint64, caller [20]byte) (*escrow.Transaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.ConfirmDelivery(id, caller)
}

// SubmitRating records one party's ratings during phase 3.
func (n *Node) SubmitRating(id uint64, rater [20]byte, participantRating, marketplaceRating uint8, review string) (*escrow.Transaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.SubmitRating(id, rater, participantRating, marketplaceRating, review)
}

// FinalizeTransaction closes a fully rated transaction.
func (n *Node) FinalizeTransaction(id uint64, caller [20]byte) (*escrow.Transaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.Finalize(id, caller)
}

// CancelTransaction aborts a non-finalized transaction.
func (n *Node) CancelTransaction(id uint64, caller [20]byte) (*escrow.Transaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.Cancel(id, caller)
}

// GetTransaction returns a transaction by identifier.
func (n *Node) GetTransaction(id uint64) (*escrow.Transaction, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.escrow.Get(id)
}

// GetPhase returns the 1/2/3 phase number of a transaction.
func (n *Node) GetPhase(id uint64) (uint8, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.escrow.PhaseOf(id)
}

// ListTransactions returns every transaction the account participates in.
func (n *Node) ListTransactions(addr [20]byte) ([]*escrow.Transaction, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.escrow.ListByAccount(addr)
}

// GetScore returns the reputation totals for an account.
func (n *Node) GetScore(addr [20]byte) (*reputation.Score, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.reputation.ScoreOf(addr)
}

// ListReviews returns the rating audit trail for an account.
func (n *Node) ListReviews(addr [20]byte) ([]*reputation.Review, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.reputation.Reviews(addr)
}

// CountSnapshot reports the aggregate counters for status endpoints.
func (n *Node) CountSnapshot() (*Counts, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	accounts, err := n.identity.List()
	if err != nil {
		return nil, err
	}
	offers, err := n.market.List()
	if err != nil {
		return nil, err
	}
	txs, err := n.escrow.Count()
	if err != nil {
		return nil, err
	}
	return &Counts{
		Accounts:     len(accounts),
		OpenOffers:   len(offers),
		Transactions: txs,
	}, nil
}
