package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"marketstate/native/common"
	"marketstate/native/escrow"
	"marketstate/native/identity"
	"marketstate/native/market"
	"marketstate/native/reputation"
)

func parseAddress(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !ethcommon.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("invalid address %q", raw)
	}
	return ethcommon.HexToAddress(trimmed), nil
}

func formatAddress(addr [20]byte) string {
	return ethcommon.Address(addr).Hex()
}

type profileJSON struct {
	Address      string `json:"address"`
	Role         string `json:"role"`
	RegisteredAt int64  `json:"registeredAt"`
}

func formatProfile(p *identity.UserProfile) profileJSON {
	if p == nil {
		return profileJSON{}
	}
	return profileJSON{
		Address:      formatAddress(p.Address),
		Role:         p.Role.String(),
		RegisteredAt: p.RegisteredAt,
	}
}

type offerJSON struct {
	ID            uint64 `json:"id"`
	Seller        string `json:"seller"`
	Item          string `json:"item"`
	Price         string `json:"price"`
	Description   string `json:"description,omitempty"`
	Buyer         string `json:"buyer,omitempty"`
	BuyerAccepted bool   `json:"buyerAccepted"`
	CreatedAt     int64  `json:"createdAt"`
}

func formatOffer(o *market.Offer) offerJSON {
	if o == nil {
		return offerJSON{}
	}
	out := offerJSON{
		ID:            o.ID,
		Seller:        formatAddress(o.Seller),
		Item:          o.Item,
		Description:   o.Description,
		BuyerAccepted: o.BuyerAccepted,
		CreatedAt:     o.CreatedAt,
	}
	if o.Price != nil {
		out.Price = o.Price.String()
	}
	if o.BuyerAccepted {
		out.Buyer = formatAddress(o.Buyer)
	}
	return out
}

type transactionJSON struct {
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

func formatTransaction(tx *escrow.Transaction) transactionJSON {
	if tx == nil {
		return transactionJSON{}
	}
	out := transactionJSON{
		ID:            tx.ID,
		OfferID:       tx.OfferID,
		Buyer:         formatAddress(tx.Buyer),
		Seller:        formatAddress(tx.Seller),
		Marketplace:   formatAddress(tx.Marketplace),
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

type scoreJSON struct {
	Address string `json:"address"`
	Sum     uint64 `json:"sum"`
	Count   uint64 `json:"count"`
	Average uint64 `json:"average"`
}

func formatScore(s *reputation.Score) scoreJSON {
	if s == nil {
		return scoreJSON{}
	}
	return scoreJSON{
		Address: formatAddress(s.Account),
		Sum:     s.Sum,
		Count:   s.Count,
		Average: s.Average(),
	}
}

type reviewJSON struct {
	TransactionID uint64 `json:"transactionId"`
	Rater         string `json:"rater"`
	Subject       string `json:"subject"`
	Rating        uint8  `json:"rating"`
	Review        string `json:"review,omitempty"`
	SubmittedAt   int64  `json:"submittedAt"`
}

func formatReview(r *reputation.Review) reviewJSON {
	if r == nil {
		return reviewJSON{}
	}
	return reviewJSON{
		TransactionID: r.TransactionID,
		Rater:         formatAddress(r.Rater),
		Subject:       formatAddress(r.Subject),
		Rating:        r.Rating,
		Review:        r.Review,
		SubmittedAt:   r.SubmittedAt,
	}
}

// singleParam decodes the one-object parameter convention every method uses.
func singleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

// writeModuleError maps native module sentinels onto JSON-RPC error codes.
func writeModuleError(w http.ResponseWriter, id interface{}, err error) {
	if err == nil {
		return
	}
	status := http.StatusInternalServerError
	code := codeServerError
	message := "internal_error"
	switch {
	case errors.Is(err, identity.ErrNotRegistered),
		errors.Is(err, market.ErrNotFound),
		errors.Is(err, escrow.ErrNotFound):
		status = http.StatusNotFound
		code = codeServerError
		message = "not_found"
	case errors.Is(err, identity.ErrAlreadyRegistered),
		errors.Is(err, market.ErrAlreadyAccepted),
		errors.Is(err, escrow.ErrAlreadyRated),
		errors.Is(err, escrow.ErrInvalidPhase),
		errors.Is(err, escrow.ErrNotEligible),
		errors.Is(err, escrow.ErrRatingsIncomplete):
		status = http.StatusConflict
		code = codeInvalidRequest
		message = "conflict"
	case errors.Is(err, market.ErrUnauthorized),
		errors.Is(err, escrow.ErrUnauthorized),
		errors.Is(err, market.ErrSelfAccept):
		status = http.StatusForbidden
		code = codeUnauthorized
		message = "forbidden"
	case errors.Is(err, market.ErrValidation),
		errors.Is(err, escrow.ErrValidation),
		errors.Is(err, reputation.ErrRatingOutOfRange):
		status = http.StatusBadRequest
		code = codeInvalidParams
		message = "invalid_params"
	case errors.Is(err, common.ErrModulePaused):
		status = http.StatusServiceUnavailable
		code = codeServerError
		message = "module_paused"
	}
	writeError(w, status, id, code, message, err.Error())
}
