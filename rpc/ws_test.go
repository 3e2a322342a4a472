package rpc

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"marketstate/native/escrow"
	"marketstate/native/identity"
	"marketstate/native/market"
)

func dialEvents(t *testing.T, ctx context.Context, httpURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/ws/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	return conn
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) eventPayload {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var payload eventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode event %q: %v", data, err)
	}
	return payload
}

func TestEventStreamFollowsMutationOrder(t *testing.T) {
	_, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := dialEvents(t, ctx, ts.URL)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	for _, reg := range []struct{ addr, role string }{
		{buyerAddr, "user"},
		{sellerAddr, "user"},
		{marketplaceAddr, "marketplace"},
	} {
		mustCall(t, ts.URL, "identity_register", map[string]string{"address": reg.addr, "role": reg.role})
	}
	offer := mustCall(t, ts.URL, "market_createOffer", map[string]string{
		"seller": sellerAddr, "item": "bike", "price": "100", "description": "city bike",
	})
	offerID := uint64(offer["id"].(float64))
	mustCall(t, ts.URL, "market_acceptOffer", map[string]interface{}{"id": offerID, "caller": buyerAddr})
	tx := mustCall(t, ts.URL, "escrow_initiate", map[string]interface{}{
		"marketplace": marketplaceAddr, "buyer": buyerAddr, "seller": sellerAddr, "offerId": offerID,
	})
	txID := uint64(tx["id"].(float64))
	mustCall(t, ts.URL, "escrow_confirmShipping", map[string]interface{}{
		"id": txID, "caller": marketplaceAddr, "phase2Duration": 604800,
	})
	mustCall(t, ts.URL, "escrow_updateDelivery", map[string]interface{}{
		"id": txID, "caller": marketplaceAddr, "deliveryState": "missing_data",
	})
	mustCall(t, ts.URL, "escrow_updateDelivery", map[string]interface{}{
		"id": txID, "caller": marketplaceAddr, "deliveryState": "shipped",
	})
	mustCall(t, ts.URL, "escrow_confirmDelivery", map[string]interface{}{"id": txID, "caller": marketplaceAddr})
	mustCall(t, ts.URL, "escrow_submitRating", map[string]interface{}{
		"id": txID, "rater": buyerAddr, "participantRating": 5, "marketplaceRating": 4, "review": "smooth",
	})
	mustCall(t, ts.URL, "escrow_submitRating", map[string]interface{}{
		"id": txID, "rater": sellerAddr, "participantRating": 5, "marketplaceRating": 5,
	})
	mustCall(t, ts.URL, "escrow_finalize", map[string]interface{}{"id": txID, "caller": marketplaceAddr})

	want := []string{
		identity.EventTypeRegistered,
		identity.EventTypeRegistered,
		identity.EventTypeRegistered,
		market.EventTypeOfferCreated,
		market.EventTypeOfferAccepted,
		market.EventTypeOfferClaimed,
		escrow.EventTypeInitiated,
		escrow.EventTypeShippingConfirmed,
		escrow.EventTypeDeliveryUpdated,
		escrow.EventTypeDeliveryUpdated,
		escrow.EventTypeDeliveryConfirmed,
		escrow.EventTypeRatingSubmitted,
		escrow.EventTypeRatingSubmitted,
		escrow.EventTypeFinalized,
	}
	got := make([]eventPayload, 0, len(want))
	for range want {
		got = append(got, readEvent(t, ctx, conn))
	}
	for i, wantType := range want {
		if got[i].Type != wantType {
			t.Fatalf("event %d: got %q, want %q (full stream: %+v)", i, got[i].Type, wantType, got)
		}
	}
	if got[7].Attributes["deliveryState"] != "shipped" {
		t.Fatalf("shipping event should carry delivery state, got %+v", got[7].Attributes)
	}
	if got[11].Attributes["rater"] == got[12].Attributes["rater"] {
		t.Fatalf("rating events should name distinct raters: %+v vs %+v", got[11].Attributes, got[12].Attributes)
	}
}
