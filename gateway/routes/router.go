package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"marketstate/core"
	"marketstate/gateway/middleware"
	"marketstate/native/escrow"
	"marketstate/native/identity"
	"marketstate/native/market"
	"marketstate/native/reputation"
)

// Backend is the read-only slice of the node the gateway serves. Mutations go
// through the JSON-RPC API only.
type Backend interface {
	ListAccounts() ([][20]byte, error)
	GetProfile(addr [20]byte) (*identity.UserProfile, error)
	ListOffers() ([]*market.Offer, error)
	ListAcceptedOffers() ([]*market.Offer, error)
	GetTransaction(id uint64) (*escrow.Transaction, error)
	ListTransactions(addr [20]byte) ([]*escrow.Transaction, error)
	GetScore(addr [20]byte) (*reputation.Score, error)
	ListReviews(addr [20]byte) ([]*reputation.Review, error)
	CountSnapshot() (*core.Counts, error)
}

type Config struct {
	Backend       Backend
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
}

// New builds the gateway router: health, metrics and the versioned read API.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware())
	}
	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	h := &handlers{backend: cfg.Backend}
	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/info", h.info)
		v1.Get("/accounts", h.listAccounts)
		v1.Get("/accounts/{address}", h.getAccount)
		v1.Get("/offers", h.listOffers)
		v1.Get("/transactions", h.listTransactions)
		v1.Get("/transactions/{id}", h.getTransaction)
		v1.Get("/reputation/{address}", h.getReputation)
	})
	return r
}

type handlers struct {
	backend Backend
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeBackendError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, identity.ErrNotRegistered),
		errors.Is(err, market.ErrNotFound),
		errors.Is(err, escrow.ErrNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func parseAddressParam(raw string) ([20]byte, bool) {
	trimmed := strings.TrimSpace(raw)
	if !ethcommon.IsHexAddress(trimmed) {
		return [20]byte{}, false
	}
	return ethcommon.HexToAddress(trimmed), true
}

func (h *handlers) info(w http.ResponseWriter, r *http.Request) {
	counts, err := h.backend.CountSnapshot()
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts":     counts.Accounts,
		"openOffers":   counts.OpenOffers,
		"transactions": counts.Transactions,
	})
}

type accountView struct {
	Address      string `json:"address"`
	Role         string `json:"role"`
	RegisteredAt int64  `json:"registeredAt"`
}

func accountViewFrom(p *identity.UserProfile) accountView {
	return accountView{
		Address:      ethcommon.Address(p.Address).Hex(),
		Role:         p.Role.String(),
		RegisteredAt: p.RegisteredAt,
	}
}

func (h *handlers) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.backend.ListAccounts()
	if err != nil {
		writeBackendError(w, err)
		return
	}
	out := make([]accountView, 0, len(accounts))
	for _, addr := range accounts {
		profile, err := h.backend.GetProfile(addr)
		if err != nil {
			writeBackendError(w, err)
			return
		}
		out = append(out, accountViewFrom(profile))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddressParam(chi.URLParam(r, "address"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid address"})
		return
	}
	profile, err := h.backend.GetProfile(addr)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountViewFrom(profile))
}

type offerView struct {
	ID            uint64 `json:"id"`
	Seller        string `json:"seller"`
	Item          string `json:"item"`
	Price         string `json:"price"`
	Description   string `json:"description,omitempty"`
	Buyer         string `json:"buyer,omitempty"`
	BuyerAccepted bool   `json:"buyerAccepted"`
	CreatedAt     int64  `json:"createdAt"`
}

func offerViewFrom(o *market.Offer) offerView {
	out := offerView{
		ID:            o.ID,
		Seller:        ethcommon.Address(o.Seller).Hex(),
		Item:          o.Item,
		Description:   o.Description,
		BuyerAccepted: o.BuyerAccepted,
		CreatedAt:     o.CreatedAt,
	}
	if o.Price != nil {
		out.Price = o.Price.String()
	}
	if o.BuyerAccepted {
		out.Buyer = ethcommon.Address(o.Buyer).Hex()
	}
	return out
}

func (h *handlers) listOffers(w http.ResponseWriter, r *http.Request) {
	var (
		offers []*market.Offer
		err    error
	)
	if r.URL.Query().Get("accepted") == "true" {
		offers, err = h.backend.ListAcceptedOffers()
	} else {
		offers, err = h.backend.ListOffers()
	}
	if err != nil {
		writeBackendError(w, err)
		return
	}
	out := make([]offerView, 0, len(offers))
	for _, offer := range offers {
		out = append(out, offerViewFrom(offer))
	}
	writeJSON(w, http.StatusOK, out)
}

type transactionView struct {
	ID             uint64 `json:"id"`
	OfferID        uint64 `json:"offerId"`
	Buyer          string `json:"buyer"`
	Seller         string `json:"seller"`
	Marketplace    string `json:"marketplace"`
	Item           string `json:"item"`
	Price          string `json:"price"`
	Status         string `json:"status"`
	Phase          uint8  `json:"phase"`
	CancelledPhase uint8  `json:"cancelledPhase,omitempty"`
	DeliveryState  string `json:"deliveryState"`
	StartTime      int64  `json:"startTime"`
	Phase1EndTime  int64  `json:"phase1EndTime,omitempty"`
	Phase2EndTime  int64  `json:"phase2EndTime,omitempty"`
	Phase3EndTime  int64  `json:"phase3EndTime,omitempty"`
	BuyerRated     bool   `json:"buyerRated"`
	SellerRated    bool   `json:"sellerRated"`
}

func transactionViewFrom(tx *escrow.Transaction) transactionView {
	out := transactionView{
		ID:            tx.ID,
		OfferID:       tx.OfferID,
		Buyer:         ethcommon.Address(tx.Buyer).Hex(),
		Seller:        ethcommon.Address(tx.Seller).Hex(),
		Marketplace:   ethcommon.Address(tx.Marketplace).Hex(),
		Item:          tx.Item,
		Status:        tx.Status.String(),
		Phase:         tx.Phase(),
		DeliveryState: tx.DeliveryState.String(),
		StartTime:     tx.StartTime,
		Phase1EndTime: tx.Phase1EndTime,
		Phase2EndTime: tx.Phase2EndTime,
		Phase3EndTime: tx.Phase3EndTime,
		BuyerRated:    tx.BuyerRated,
		SellerRated:   tx.SellerRated,
	}
	if tx.Price != nil {
		out.Price = tx.Price.String()
	}
	if tx.Status == escrow.StatusCancelled {
		out.CancelledPhase = tx.CancelledPhase
	}
	return out
}

func (h *handlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "account query parameter required"})
		return
	}
	addr, ok := parseAddressParam(account)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid address"})
		return
	}
	txs, err := h.backend.ListTransactions(addr)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	out := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionViewFrom(tx))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid transaction id"})
		return
	}
	tx, err := h.backend.GetTransaction(id)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionViewFrom(tx))
}

type reviewView struct {
	TransactionID uint64 `json:"transactionId"`
	Rater         string `json:"rater"`
	Rating        uint8  `json:"rating"`
	Review        string `json:"review,omitempty"`
	SubmittedAt   int64  `json:"submittedAt"`
}

func (h *handlers) getReputation(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddressParam(chi.URLParam(r, "address"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid address"})
		return
	}
	score, err := h.backend.GetScore(addr)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	reviews, err := h.backend.ListReviews(addr)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	reviewViews := make([]reviewView, 0, len(reviews))
	for _, review := range reviews {
		reviewViews = append(reviewViews, reviewView{
			TransactionID: review.TransactionID,
			Rater:         ethcommon.Address(review.Rater).Hex(),
			Rating:        review.Rating,
			Review:        review.Review,
			SubmittedAt:   review.SubmittedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": ethcommon.Address(addr).Hex(),
		"sum":     score.Sum,
		"count":   score.Count,
		"average": score.Average(),
		"reviews": reviewViews,
	})
}
