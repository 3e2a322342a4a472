package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"marketstate/core"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	mutationRatePerSecond = 20
	mutationBurst         = 50
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// Server exposes the node over JSON-RPC 2.0 plus a websocket event stream.
type Server struct {
	node      *core.Node
	authToken string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer builds an RPC server bound to the node. Mutating methods require
// the bearer token from MARKET_RPC_TOKEN when it is set.
func NewServer(node *core.Node) *Server {
	return &Server{
		node:      node,
		authToken: strings.TrimSpace(os.Getenv("MARKET_RPC_TOKEN")),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Handler returns the HTTP handler serving both the JSON-RPC endpoint and the
// websocket event stream.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.HandleFunc("/ws/events", s.handleEvents)
	return mux
}

// Start serves the RPC API on the supplied address.
func (s *Server) Start(addr string) error {
	slog.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "bearer token required"}
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid token"}
	}
	return nil
}

func (s *Server) allowMutation(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	s.mu.Lock()
	limiter, ok := s.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(mutationRatePerSecond), mutationBurst)
		s.limiters[host] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	if mutatingMethods[req.Method] {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		if !s.allowMutation(r) {
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return
		}
	}

	switch req.Method {
	case "identity_register":
		s.handleIdentityRegister(w, req)
	case "identity_getProfile":
		s.handleIdentityGetProfile(w, req)
	case "identity_listAccounts":
		s.handleIdentityListAccounts(w, req)
	case "market_createOffer":
		s.handleMarketCreateOffer(w, req)
	case "market_deleteOffer":
		s.handleMarketDeleteOffer(w, req)
	case "market_acceptOffer":
		s.handleMarketAcceptOffer(w, req)
	case "market_getOffer":
		s.handleMarketGetOffer(w, req)
	case "market_listOffers":
		s.handleMarketListOffers(w, req)
	case "market_listAcceptedOffers":
		s.handleMarketListAcceptedOffers(w, req)
	case "market_info":
		s.handleMarketInfo(w, req)
	case "escrow_initiate":
		s.handleEscrowInitiate(w, req)
	case "escrow_confirmShipping":
		s.handleEscrowConfirmShipping(w, req)
	case "escrow_updateDelivery":
		s.handleEscrowUpdateDelivery(w, req)
	case "escrow_confirmDelivery":
		s.handleEscrowConfirmDelivery(w, req)
	case "escrow_submitRating":
		s.handleEscrowSubmitRating(w, req)
	case "escrow_finalize":
		s.handleEscrowFinalize(w, req)
	case "escrow_cancel":
		s.handleEscrowCancel(w, req)
	case "escrow_getTransaction":
		s.handleEscrowGetTransaction(w, req)
	case "escrow_getPhase":
		s.handleEscrowGetPhase(w, req)
	case "escrow_listTransactions":
		s.handleEscrowListTransactions(w, req)
	case "reputation_getScore":
		s.handleReputationGetScore(w, req)
	case "reputation_listReviews":
		s.handleReputationListReviews(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

var mutatingMethods = map[string]bool{
	"identity_register":      true,
	"market_createOffer":     true,
	"market_deleteOffer":     true,
	"market_acceptOffer":     true,
	"escrow_initiate":        true,
	"escrow_confirmShipping": true,
	"escrow_updateDelivery":  true,
	"escrow_confirmDelivery": true,
	"escrow_submitRating":    true,
	"escrow_finalize":        true,
	"escrow_cancel":          true,
}
