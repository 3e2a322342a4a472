package rpc

import (
	"net/http"

	"marketstate/native/identity"
)

type identityRegisterParams struct {
	Address string `json:"address"`
	Role    string `json:"role"`
}

func (s *Server) handleIdentityRegister(w http.ResponseWriter, req *RPCRequest) {
	var params identityRegisterParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	role, err := identity.ParseRole(params.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	profile, err := s.node.RegisterIdentity(addr, role)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatProfile(profile))
}

type addressParams struct {
	Address string `json:"address"`
}

func (s *Server) handleIdentityGetProfile(w http.ResponseWriter, req *RPCRequest) {
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
	profile, err := s.node.GetProfile(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatProfile(profile))
}

func (s *Server) handleIdentityListAccounts(w http.ResponseWriter, req *RPCRequest) {
	accounts, err := s.node.ListAccounts()
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	out := make([]string, 0, len(accounts))
	for _, addr := range accounts {
		out = append(out, formatAddress(addr))
	}
	writeResult(w, req.ID, out)
}
