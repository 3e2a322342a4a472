package core

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"marketstate/core/state"
	"marketstate/native/common"
	"marketstate/native/escrow"
	"marketstate/native/identity"
	"marketstate/native/market"
	"marketstate/storage"
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func newTestNode(t *testing.T, paused []string) *Node {
	t.Helper()
	return NewNode(state.NewManager(storage.NewMemDB()), paused)
}

func registerParties(t *testing.T, node *Node) (buyer, seller, marketplace [20]byte) {
	t.Helper()
	buyer, seller, marketplace = addr(0x01), addr(0x02), addr(0x03)
	if _, err := node.RegisterIdentity(buyer, identity.RoleUser); err != nil {
		t.Fatalf("register buyer: %v", err)
	}
	if _, err := node.RegisterIdentity(seller, identity.RoleUser); err != nil {
		t.Fatalf("register seller: %v", err)
	}
	if _, err := node.RegisterIdentity(marketplace, identity.RoleMarketplace); err != nil {
		t.Fatalf("register marketplace: %v", err)
	}
	return buyer, seller, marketplace
}

func TestNodeFullLifecycle(t *testing.T) {
	node := newTestNode(t, nil)
	buyer, seller, marketplace := registerParties(t, node)

	eventsCh, cancel := node.SubscribeEvents(32)
	defer cancel()

	offer, err := node.CreateOffer(seller, "bike", big.NewInt(100), "city bike")
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if _, err := node.AcceptOffer(offer.ID, buyer); err != nil {
		t.Fatalf("accept offer: %v", err)
	}
	tx, err := node.InitiateTransaction(marketplace, buyer, seller, offer.ID)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if _, err := node.ConfirmShipping(tx.ID, marketplace, 604800); err != nil {
		t.Fatalf("confirm shipping: %v", err)
	}
	if _, err := node.ConfirmDelivery(tx.ID, marketplace); err != nil {
		t.Fatalf("confirm delivery: %v", err)
	}
	if _, err := node.SubmitRating(tx.ID, buyer, 5, 4, "smooth"); err != nil {
		t.Fatalf("buyer rating: %v", err)
	}
	if _, err := node.SubmitRating(tx.ID, seller, 5, 5, ""); err != nil {
		t.Fatalf("seller rating: %v", err)
	}
	final, err := node.FinalizeTransaction(tx.ID, marketplace)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !final.Finalized() {
		t.Fatalf("expected finalized transaction: %+v", final)
	}

	score, err := node.GetScore(marketplace)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score.Sum != 9 || score.Count != 2 {
		t.Fatalf("unexpected marketplace score: %+v", score)
	}
	counts, err := node.CountSnapshot()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Accounts != 3 || counts.OpenOffers != 0 || counts.Transactions != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	if len(eventsCh) == 0 {
		t.Fatalf("expected lifecycle events on the hub")
	}
}

func TestNodeSerializesOfferClaim(t *testing.T) {
	node := newTestNode(t, nil)
	buyer, seller, marketplace := registerParties(t, node)
	second := addr(0x04)
	if _, err := node.RegisterIdentity(second, identity.RoleMarketplace); err != nil {
		t.Fatalf("register second marketplace: %v", err)
	}

	offer, err := node.CreateOffer(seller, "bike", big.NewInt(100), "city bike")
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if _, err := node.AcceptOffer(offer.ID, buyer); err != nil {
		t.Fatalf("accept offer: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, mp := range [][20]byte{marketplace, second} {
		wg.Add(1)
		go func(i int, mp [20]byte) {
			defer wg.Done()
			_, errs[i] = node.InitiateTransaction(mp, buyer, seller, offer.ID)
		}(i, mp)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, market.ErrNotFound):
			lost++
		default:
			t.Fatalf("unexpected claim outcome: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("expected exactly one winner, got %d winners %d losers", won, lost)
	}
}

func TestNodePausedModules(t *testing.T) {
	node := newTestNode(t, []string{"market"})
	_, seller, _ := registerParties(t, node)

	if _, err := node.CreateOffer(seller, "bike", big.NewInt(100), "city bike"); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	// Unpaused modules keep working.
	if _, err := node.RegisterIdentity(addr(0x09), identity.RoleUser); err != nil {
		t.Fatalf("identity should stay live: %v", err)
	}
}

func TestNodeQueriesMissingEntities(t *testing.T) {
	node := newTestNode(t, nil)
	if _, err := node.GetProfile(addr(0x01)); !errors.Is(err, identity.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if _, err := node.GetOffer(7); !errors.Is(err, market.ErrNotFound) {
		t.Fatalf("expected market.ErrNotFound, got %v", err)
	}
	if _, err := node.GetTransaction(7); !errors.Is(err, escrow.ErrNotFound) {
		t.Fatalf("expected escrow.ErrNotFound, got %v", err)
	}
}
