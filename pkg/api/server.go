package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/perpkit/smartmargin/pkg/account"
	smcrypto "github.com/perpkit/smartmargin/pkg/crypto"
	"github.com/perpkit/smartmargin/pkg/registry"
)

// Server exposes the smart-margin engine over REST plus a websocket event
// stream.
type Server struct {
	engine  *account.Engine
	factory *registry.Factory
	signer  *smcrypto.BatchSigner
	router  *mux.Router
	hub     *Hub
	log     *zap.Logger
}

func NewServer(engine *account.Engine, factory *registry.Factory, signer *smcrypto.BatchSigner, hub *Hub, log *zap.Logger) *Server {
	s := &Server{
		engine:  engine,
		factory: factory,
		signer:  signer,
		router:  mux.NewRouter(),
		hub:     hub,
		log:     log.Named("api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Account endpoints
	api.HandleFunc("/accounts", s.handleCreateAccount).Methods("POST")
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders/{id}/check", s.handleCheckOrder).Methods("GET")
	api.HandleFunc("/owners/{address}/accounts", s.handleGetOwnerAccounts).Methods("GET")

	// Batch submission
	api.HandleFunc("/batches", s.handleSubmitBatch).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.hub.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routed handler without the CORS wrapper.
func (s *Server) Handler() http.Handler { return s.router }

// Start runs the websocket hub and blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})
	handler := c.Handler(s.router)

	s.log.Info("server starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, handler)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Owner) {
		respondError(w, http.StatusBadRequest, "invalid owner address", "")
		return
	}

	addr, err := s.engine.CreateAccount(common.HexToAddress(req.Owner))
	if err != nil {
		respondError(w, http.StatusConflict, "account creation failed", err.Error())
		return
	}
	respondJSON(w, CreateAccountResponse{Account: addr.Hex()})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}

	acct, balance, err := s.engine.Snapshot(addr)
	if err != nil {
		respondError(w, http.StatusNotFound, "account not found", err.Error())
		return
	}
	free, _ := s.engine.FreeMargin(addr)

	delegates := make([]string, 0, len(acct.Delegates))
	for d := range acct.Delegates {
		delegates = append(delegates, d.Hex())
	}

	respondJSON(w, AccountInfo{
		Address:         acct.Address.Hex(),
		Owner:           acct.Owner.Hex(),
		Delegates:       delegates,
		Balance:         balance.String(),
		CommittedMargin: acct.CommittedMargin.String(),
		FreeMargin:      free.String(),
		Nonce:           acct.Nonce,
		OpenOrders:      len(acct.Orders),
	})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}

	orders, err := s.engine.Orders(addr)
	if err != nil {
		respondError(w, http.StatusNotFound, "account not found", err.Error())
		return
	}

	response := make([]OrderInfo, len(orders))
	for i, ord := range orders {
		response[i] = OrderInfo{
			ID:               ord.ID,
			MarketKey:        ord.MarketKey,
			MarginDelta:      ord.MarginDelta.String(),
			SizeDelta:        ord.SizeDelta.String(),
			TargetPrice:      ord.TargetPrice.String(),
			DesiredFillPrice: ord.DesiredFillPrice.String(),
			OrderType:        ord.OrderType.String(),
			ReduceOnly:       ord.ReduceOnly,
			TaskID:           ord.TaskID.Hex(),
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleCheckOrder(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	orderID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}

	valid, err := s.engine.Checker(addr, orderID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) || errors.Is(err, account.ErrOrderNotFound) {
			respondError(w, http.StatusNotFound, "order not found", err.Error())
			return
		}
		// price feed failures report as not-executable rather than 5xx;
		// the keeper polls this endpoint in a loop
		valid = false
	}
	respondJSON(w, CheckResult{OrderID: orderID, Valid: valid})
}

func (s *Server) handleGetOwnerAccounts(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}

	accounts := s.factory.AccountsOf(addr)
	response := make([]string, len(accounts))
	for i, a := range accounts {
		response[i] = a.Hex()
	}
	respondJSON(w, response)
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var sb account.SignedBatch
	if err := json.NewDecoder(r.Body).Decode(&sb); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := s.engine.ExecuteSigned(s.signer, &sb); err != nil {
		switch {
		case errors.Is(err, account.ErrBadSignature), errors.Is(err, account.ErrInvalidNonce):
			respondError(w, http.StatusUnauthorized, "batch rejected", err.Error())
		case errors.Is(err, account.ErrAccountNotFound):
			respondError(w, http.StatusNotFound, "account not found", err.Error())
		case errors.Is(err, account.ErrUnauthorized), errors.Is(err, account.ErrNotOwner):
			respondError(w, http.StatusForbidden, "batch rejected", err.Error())
		default:
			respondError(w, http.StatusUnprocessableEntity, "batch failed", err.Error())
		}
		return
	}

	s.log.Info("batch executed",
		zap.String("account", sb.Account.Hex()),
		zap.Uint64("nonce", sb.Nonce),
		zap.Int("commands", len(sb.Commands)))
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"status":   "ok",
		"accounts": s.factory.Count(),
	})
}

// ==============================
// Helpers
// ==============================

func pathAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	})
}
