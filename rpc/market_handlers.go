package rpc

import (
	"math/big"
	"net/http"
	"strings"
)

type createOfferParams struct {
	Seller      string `json:"seller"`
	Item        string `json:"item"`
	Price       string `json:"price"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleMarketCreateOffer(w http.ResponseWriter, req *RPCRequest) {
	var params createOfferParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(params.Price), 10)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "price must be a base-10 integer")
		return
	}
	offer, err := s.node.CreateOffer(seller, params.Item, price, params.Description)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatOffer(offer))
}

type offerActionParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

func (s *Server) handleMarketDeleteOffer(w http.ResponseWriter, req *RPCRequest) {
	var params offerActionParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.DeleteOffer(params.ID, caller); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"deleted": true})
}

func (s *Server) handleMarketAcceptOffer(w http.ResponseWriter, req *RPCRequest) {
	var params offerActionParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	offer, err := s.node.AcceptOffer(params.ID, buyer)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatOffer(offer))
}

type offerIDParams struct {
	ID uint64 `json:"id"`
}

func (s *Server) handleMarketGetOffer(w http.ResponseWriter, req *RPCRequest) {
	var params offerIDParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	offer, err := s.node.GetOffer(params.ID)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatOffer(offer))
}

func (s *Server) handleMarketListOffers(w http.ResponseWriter, req *RPCRequest) {
	offers, err := s.node.ListOffers()
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	out := make([]offerJSON, 0, len(offers))
	for _, offer := range offers {
		out = append(out, formatOffer(offer))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleMarketListAcceptedOffers(w http.ResponseWriter, req *RPCRequest) {
	offers, err := s.node.ListAcceptedOffers()
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	out := make([]offerJSON, 0, len(offers))
	for _, offer := range offers {
		out = append(out, formatOffer(offer))
	}
	writeResult(w, req.ID, out)
}

type marketInfoResult struct {
	Accounts     int    `json:"accounts"`
	OpenOffers   int    `json:"openOffers"`
	Transactions uint64 `json:"transactions"`
}

func (s *Server) handleMarketInfo(w http.ResponseWriter, req *RPCRequest) {
	counts, err := s.node.CountSnapshot()
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, marketInfoResult{
		Accounts:     counts.Accounts,
		OpenOffers:   counts.OpenOffers,
		Transactions: counts.Transactions,
	})
}
