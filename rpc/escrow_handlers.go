package rpc

import (
	"net/http"

	"marketstate/native/escrow"
)

type escrowInitiateParams struct {
	Marketplace string `json:"marketplace"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	OfferID     uint64 `json:"offerId"`
}

func (s *Server) handleEscrowInitiate(w http.ResponseWriter, req *RPCRequest) {
	var params escrowInitiateParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	marketplace, err := parseAddress(params.Marketplace)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	tx, err := s.node.InitiateTransaction(marketplace, buyer, seller, params.OfferID)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatTransaction(tx))
}

type escrowShippingParams struct {
	ID             uint64 `json:"id"`
	Caller         string `json:"caller"`
	Phase2Duration int64  `json:"phase2Duration"`
}

func (s *Server) handleEscrowConfirmShipping(w http.ResponseWriter, req *RPCRequest) {
	var params escrowShippingParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	tx, err := s.node.ConfirmShipping(params.ID, caller, params.Phase2Duration)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatTransaction(tx))
}

type escrowDeliveryParams struct {
	ID            uint64 `json:"id"`
	Caller        string `json:"caller"`
	DeliveryState string `json:"deliveryState"`
}

func (s *Server) handleEscrowUpdateDelivery(w http.ResponseWriter, req *RPCRequest) {
	var params escrowDeliveryParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	ds, err := escrow.ParseDeliveryState(params.DeliveryState)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	tx, err := s.node.UpdateDeliveryState(params.ID, caller, ds)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatTransaction(tx))
}

type escrowActionParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

func (s *Server) handleEscrowConfirmDelivery(w http.ResponseWriter, req *RPCRequest) {
	var params escrowActionParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	tx, err := s.node.ConfirmDelivery(params.ID, caller)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatTransaction(tx))
}

type escrowRatingParams struct {
	ID                uint64 `json:"id"`
	Rater             string `json:"rater"`
	ParticipantRating uint8  `json:"participantRating"`
	MarketplaceRating uint8  `json:"marketplaceRating"`
	Review            string `json:"review,omitempty"`
}

func (s *Server) handleEscrowSubmitRating(w http.ResponseWriter, req *RPCRequest) {
	var params escrowRatingParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	rater, err := parseAddress(params.Rater)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	tx, err := s.node.SubmitRating(params.ID, rater, params.ParticipantRating, params.MarketplaceRating, params.Review)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatTransaction(tx))
}

func (s *Server) handleEscrowFinalize(w http.ResponseWriter, req *RPCRequest) {
	var params escrowActionParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	tx, err := s.node.FinalizeTransaction(params.ID, caller)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatTransaction(tx))
}

func (s *Server) handleEscrowCancel(w http.ResponseWriter, req *RPCRequest) {
	var params escrowActionParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	tx, err := s.node.CancelTransaction(params.ID, caller)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatTransaction(tx))
}

type escrowIDParams struct {
	ID uint64 `json:"id"`
}

func (s *Server) handleEscrowGetTransaction(w http.ResponseWriter, req *RPCRequest) {
	var params escrowIDParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	tx, err := s.node.GetTransaction(params.ID)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatTransaction(tx))
}

func (s *Server) handleEscrowGetPhase(w http.ResponseWriter, req *RPCRequest) {
	var params escrowIDParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	phase, err := s.node.GetPhase(params.ID)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint8{"phase": phase})
}

func (s *Server) handleEscrowListTransactions(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	txs, err := s.node.ListTransactions(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	out := make([]transactionJSON, 0, len(txs))
	for _, tx := range txs {
		out = append(out, formatTransaction(tx))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleReputationGetScore(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	score, err := s.node.GetScore(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatScore(score))
}

func (s *Server) handleReputationListReviews(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	reviews, err := s.node.ListReviews(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	out := make([]reviewJSON, 0, len(reviews))
	for _, review := range reviews {
		out = append(out, formatReview(review))
	}
	writeResult(w, req.ID, out)
}
