package routes

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"marketstate/core"
	"marketstate/core/state"
	"marketstate/gateway/middleware"
	"marketstate/native/identity"
	"marketstate/storage"
)

func newGatewayFixture(t *testing.T) (*core.Node, *httptest.Server) {
	t.Helper()
	node := core.NewNode(state.NewManager(storage.NewMemDB()), nil)
	handler := New(Config{Backend: node})
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return node, ts
}

func seedLifecycle(t *testing.T, node *core.Node) (buyer, seller, marketplace [20]byte, txID uint64) {
	t.Helper()
	buyer = ethcommon.HexToAddress("0x1111111111111111111111111111111111111111")
	seller = ethcommon.HexToAddress("0x2222222222222222222222222222222222222222")
	marketplace = ethcommon.HexToAddress("0x3333333333333333333333333333333333333333")

	_, err := node.RegisterIdentity(buyer, identity.RoleUser)
	require.NoError(t, err)
	_, err = node.RegisterIdentity(seller, identity.RoleUser)
	require.NoError(t, err)
	_, err = node.RegisterIdentity(marketplace, identity.RoleMarketplace)
	require.NoError(t, err)

	offer, err := node.CreateOffer(seller, "bike", big.NewInt(100), "city bike")
	require.NoError(t, err)
	_, err = node.AcceptOffer(offer.ID, buyer)
	require.NoError(t, err)
	tx, err := node.InitiateTransaction(marketplace, buyer, seller, offer.ID)
	require.NoError(t, err)
	return buyer, seller, marketplace, tx.ID
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthz(t *testing.T) {
	_, ts := newGatewayFixture(t)
	resp := getJSON(t, ts.URL+"/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAccountsEndpoints(t *testing.T) {
	node, ts := newGatewayFixture(t)
	buyer, _, _, _ := seedLifecycle(t, node)

	var accounts []map[string]interface{}
	resp := getJSON(t, ts.URL+"/v1/accounts", &accounts)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, accounts, 3)
	require.Equal(t, "user", accounts[0]["role"])

	var account map[string]interface{}
	resp = getJSON(t, ts.URL+"/v1/accounts/"+ethcommon.Address(buyer).Hex(), &account)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, ethcommon.Address(buyer).Hex(), account["address"])

	resp = getJSON(t, ts.URL+"/v1/accounts/0x9999999999999999999999999999999999999999", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = getJSON(t, ts.URL+"/v1/accounts/garbage", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOffersEndpoint(t *testing.T) {
	node, ts := newGatewayFixture(t)
	_, seller, _, _ := seedLifecycle(t, node)

	// The seeded offer was consumed by initiation; publish a fresh one.
	offer, err := node.CreateOffer(seller, "lamp", big.NewInt(20), "desk lamp")
	require.NoError(t, err)

	var offers []map[string]interface{}
	resp := getJSON(t, ts.URL+"/v1/offers", &offers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, offers, 1)
	require.Equal(t, float64(offer.ID), offers[0]["id"])
	require.Equal(t, "20", offers[0]["price"])

	var accepted []map[string]interface{}
	resp = getJSON(t, ts.URL+"/v1/offers?accepted=true", &accepted)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, accepted)
}

func TestTransactionsEndpoints(t *testing.T) {
	node, ts := newGatewayFixture(t)
	buyer, _, _, txID := seedLifecycle(t, node)

	var txs []map[string]interface{}
	resp := getJSON(t, ts.URL+"/v1/transactions?account="+ethcommon.Address(buyer).Hex(), &txs)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, txs, 1)
	require.Equal(t, "shipment_pending", txs[0]["status"])

	var tx map[string]interface{}
	resp = getJSON(t, ts.URL+"/v1/transactions/1", &tx)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(txID), tx["id"])
	require.Equal(t, float64(1), tx["phase"])

	resp = getJSON(t, ts.URL+"/v1/transactions/99", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = getJSON(t, ts.URL+"/v1/transactions", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReputationEndpoint(t *testing.T) {
	node, ts := newGatewayFixture(t)
	buyer, seller, marketplace, txID := seedLifecycle(t, node)

	_, err := node.ConfirmShipping(txID, marketplace, 3600)
	require.NoError(t, err)
	_, err = node.ConfirmDelivery(txID, marketplace)
	require.NoError(t, err)
	_, err = node.SubmitRating(txID, buyer, 5, 4, "smooth trade")
	require.NoError(t, err)

	var rep map[string]interface{}
	resp := getJSON(t, ts.URL+"/v1/reputation/"+ethcommon.Address(seller).Hex(), &rep)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(5), rep["sum"])
	require.Equal(t, float64(1), rep["count"])
	reviews := rep["reviews"].([]interface{})
	require.Len(t, reviews, 1)
	require.Equal(t, "smooth trade", reviews[0].(map[string]interface{})["review"])
}

func TestRateLimiterMiddleware(t *testing.T) {
	node := core.NewNode(state.NewManager(storage.NewMemDB()), nil)
	limiter := middleware.NewRateLimiter(middleware.RateLimit{RequestsPerMinute: 60, Burst: 2})
	ts := httptest.NewServer(New(Config{Backend: node, RateLimiter: limiter}))
	defer ts.Close()

	var lastStatus int
	for i := 0; i < 5; i++ {
		resp, err := http.Get(ts.URL + "/healthz")
		require.NoError(t, err)
		resp.Body.Close()
		lastStatus = resp.StatusCode
	}
	require.Equal(t, http.StatusTooManyRequests, lastStatus)
}
