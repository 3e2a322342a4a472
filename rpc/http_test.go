package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketstate/core"
	"marketstate/core/state"
	"marketstate/storage"
)

const (
	buyerAddr       = "0x1111111111111111111111111111111111111111"
	sellerAddr      = "0x2222222222222222222222222222222222222222"
	marketplaceAddr = "0x3333333333333333333333333333333333333333"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	node := core.NewNode(state.NewManager(storage.NewMemDB()), nil)
	srv := NewServer(node)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func rpcCall(t *testing.T, url, method string, params interface{}, headers map[string]string) *RPCResponse {
	t.Helper()
	var rawParams []json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		rawParams = []json.RawMessage{encoded}
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: rawParams, ID: 1})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("call %s: %v", method, err)
	}
	defer resp.Body.Close()
	out := &RPCResponse{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func mustCall(t *testing.T, url, method string, params interface{}) map[string]interface{} {
	t.Helper()
	resp := rpcCall(t, url, method, params, nil)
	if resp.Error != nil {
		t.Fatalf("%s failed: %+v", method, resp.Error)
	}
	result, _ := resp.Result.(map[string]interface{})
	return result
}

func registerAll(t *testing.T, url string) {
	t.Helper()
	for addr, role := range map[string]string{
		buyerAddr:       "user",
		sellerAddr:      "user",
		marketplaceAddr: "marketplace",
	} {
		mustCall(t, url, "identity_register", map[string]string{"address": addr, "role": role})
	}
}

func TestFullLifecycleOverRPC(t *testing.T) {
	_, ts := newTestServer(t)
	registerAll(t, ts.URL)

	offer := mustCall(t, ts.URL, "market_createOffer", map[string]string{
		"seller": sellerAddr, "item": "bike", "price": "100", "description": "city bike",
	})
	offerID := uint64(offer["id"].(float64))

	mustCall(t, ts.URL, "market_acceptOffer", map[string]interface{}{"id": offerID, "caller": buyerAddr})

	tx := mustCall(t, ts.URL, "escrow_initiate", map[string]interface{}{
		"marketplace": marketplaceAddr, "buyer": buyerAddr, "seller": sellerAddr, "offerId": offerID,
	})
	if tx["status"] != "shipment_pending" || tx["phase"].(float64) != 1 {
		t.Fatalf("unexpected initiation result: %+v", tx)
	}
	txID := uint64(tx["id"].(float64))

	shipped := mustCall(t, ts.URL, "escrow_confirmShipping", map[string]interface{}{
		"id": txID, "caller": marketplaceAddr, "phase2Duration": 604800,
	})
	if shipped["status"] != "delivery_pending" || shipped["deliveryState"] != "shipped" {
		t.Fatalf("unexpected shipping result: %+v", shipped)
	}

	mustCall(t, ts.URL, "escrow_confirmDelivery", map[string]interface{}{"id": txID, "caller": marketplaceAddr})
	mustCall(t, ts.URL, "escrow_submitRating", map[string]interface{}{
		"id": txID, "rater": buyerAddr, "participantRating": 5, "marketplaceRating": 4, "review": "smooth",
	})
	mustCall(t, ts.URL, "escrow_submitRating", map[string]interface{}{
		"id": txID, "rater": sellerAddr, "participantRating": 5, "marketplaceRating": 5,
	})
	final := mustCall(t, ts.URL, "escrow_finalize", map[string]interface{}{"id": txID, "caller": marketplaceAddr})
	if final["status"] != "finalized" {
		t.Fatalf("unexpected finalize result: %+v", final)
	}

	score := mustCall(t, ts.URL, "reputation_getScore", map[string]string{"address": marketplaceAddr})
	if score["sum"].(float64) != 9 || score["count"].(float64) != 2 {
		t.Fatalf("unexpected marketplace score: %+v", score)
	}

	info := mustCall(t, ts.URL, "market_info", nil)
	if info["accounts"].(float64) != 3 || info["openOffers"].(float64) != 0 || info["transactions"].(float64) != 1 {
		t.Fatalf("unexpected market info: %+v", info)
	}
}

func TestErrorCodeMapping(t *testing.T) {
	_, ts := newTestServer(t)
	registerAll(t, ts.URL)

	resp := rpcCall(t, ts.URL, "identity_getProfile", map[string]string{"address": "0x4444444444444444444444444444444444444444"}, nil)
	if resp.Error == nil || resp.Error.Message != "not_found" {
		t.Fatalf("expected not_found, got %+v", resp.Error)
	}

	resp = rpcCall(t, ts.URL, "identity_register", map[string]string{"address": buyerAddr, "role": "user"}, nil)
	if resp.Error == nil || resp.Error.Message != "conflict" {
		t.Fatalf("expected conflict for duplicate registration, got %+v", resp.Error)
	}

	resp = rpcCall(t, ts.URL, "identity_register", map[string]string{"address": "bogus", "role": "user"}, nil)
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params for bad address, got %+v", resp.Error)
	}

	resp = rpcCall(t, ts.URL, "market_createOffer", map[string]string{
		"seller": marketplaceAddr, "item": "bike", "price": "100", "description": "city bike",
	}, nil)
	if resp.Error == nil || resp.Error.Message != "forbidden" {
		t.Fatalf("expected forbidden for marketplace seller, got %+v", resp.Error)
	}

	resp = rpcCall(t, ts.URL, "no_suchMethod", nil, nil)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}

func TestMalformedRequests(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL, "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	out := &RPCResponse{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error == nil || out.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %+v", out.Error)
	}

	empty, err := http.Post(ts.URL, "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer empty.Body.Close()
	out = &RPCResponse{}
	if err := json.NewDecoder(empty.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error == nil || out.Error.Code != codeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", out.Error)
	}
}

func TestMutationAuthToken(t *testing.T) {
	node := core.NewNode(state.NewManager(storage.NewMemDB()), nil)
	srv := NewServer(node)
	srv.authToken = "secret"
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	params := map[string]string{"address": buyerAddr, "role": "user"}
	resp := rpcCall(t, ts.URL, "identity_register", params, nil)
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized without token, got %+v", resp.Error)
	}

	resp = rpcCall(t, ts.URL, "identity_register", params, map[string]string{"Authorization": "Bearer wrong"})
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized with bad token, got %+v", resp.Error)
	}

	resp = rpcCall(t, ts.URL, "identity_register", params, map[string]string{"Authorization": "Bearer secret"})
	if resp.Error != nil {
		t.Fatalf("expected success with token, got %+v", resp.Error)
	}

	// Reads never require the token.
	resp = rpcCall(t, ts.URL, "identity_getProfile", map[string]string{"address": buyerAddr}, nil)
	if resp.Error != nil {
		t.Fatalf("read should not require auth, got %+v", resp.Error)
	}
}

func TestListTransactionsOverRPC(t *testing.T) {
	_, ts := newTestServer(t)
	registerAll(t, ts.URL)

	for i := 0; i < 2; i++ {
		offer := mustCall(t, ts.URL, "market_createOffer", map[string]string{
			"seller": sellerAddr, "item": fmt.Sprintf("item-%d", i), "price": "10", "description": "spare part",
		})
		id := uint64(offer["id"].(float64))
		mustCall(t, ts.URL, "market_acceptOffer", map[string]interface{}{"id": id, "caller": buyerAddr})
		mustCall(t, ts.URL, "escrow_initiate", map[string]interface{}{
			"marketplace": marketplaceAddr, "buyer": buyerAddr, "seller": sellerAddr, "offerId": id,
		})
	}

	resp := rpcCall(t, ts.URL, "escrow_listTransactions", map[string]string{"address": buyerAddr}, nil)
	if resp.Error != nil {
		t.Fatalf("list: %+v", resp.Error)
	}
	txs, ok := resp.Result.([]interface{})
	if !ok || len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %+v", resp.Result)
	}
}
