package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"marginvault/config"
	"marginvault/core"
	"marginvault/native/collateral"
	nativecommon "marginvault/native/common"
	"marginvault/native/loan"
	"marginvault/native/vault"
	"marginvault/observability/metrics"
	"marginvault/wallet"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codePrecondition   = -32010
	codeRateLimited    = -32020
	codeLiquidity      = -32030
	codeSolvency       = -32031
	codeNotOverdue     = -32032
)

// Server exposes the node over JSON-RPC 2.0. Mutating methods require a
// bearer token; every client source is rate limited independently.
type Server struct {
	node    *core.Node
	metrics *metrics.LendingMetrics

	authToken string

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
	perSec   rate.Limit
	burst    int
}

func NewServer(node *core.Node, m *metrics.LendingMetrics) *Server {
	token := strings.TrimSpace(os.Getenv("MARGINVAULT_RPC_TOKEN"))
	return &Server{
		node:      node,
		metrics:   m,
		authToken: token,
		visitors:  make(map[string]*rate.Limiter),
		perSec:    rate.Limit(50),
		burst:     100,
	}
}

// SetRateLimit overrides the per-client request allowance.
func (s *Server) SetRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	s.mu.Lock()
	s.perSec = rate.Limit(perSecond)
	s.burst = burst
	s.visitors = make(map[string]*rate.Limiter)
	s.mu.Unlock()
}

// Router returns the HTTP handler tree: the RPC endpoint plus health and
// metrics surfaces.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc", s.handle)
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
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
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	source := clientSource(r)
	if !s.allowSource(source) {
		s.metrics.ObserveRPCRequest("", "rate_limited")
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "request rate limit exceeded", source)
		return
	}

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
	s.dispatch(w, r, req)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	handler, ok := s.methods()[req.Method]
	if !ok {
		s.metrics.ObserveRPCRequest(req.Method, "not_found")
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
		return
	}
	if handler.mutating {
		if authErr := s.requireAuth(r); authErr != nil {
			s.metrics.ObserveRPCRequest(req.Method, "unauthorized")
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	handler.fn(w, req)
}

type methodHandler struct {
	fn       func(http.ResponseWriter, *RPCRequest)
	mutating bool
}

func (s *Server) methods() map[string]methodHandler {
	return map[string]methodHandler{
		"vault_deposit":         {s.handleVaultDeposit, true},
		"vault_withdraw":        {s.handleVaultWithdraw, true},
		"vault_redeem":          {s.handleVaultRedeem, true},
		"vault_approve":         {s.handleVaultApprove, true},
		"vault_accrue":          {s.handleVaultAccrue, true},
		"vault_getPool":         {s.handleVaultGetPool, false},
		"vault_balanceOf":       {s.handleVaultBalanceOf, false},
		"vault_previewDeposit":  {s.handleVaultPreviewDeposit, false},
		"vault_previewWithdraw": {s.handleVaultPreviewWithdraw, false},
		"vault_previewRedeem":   {s.handleVaultPreviewRedeem, false},
		"loan_create":           {s.handleLoanCreate, true},
		"loan_repay":            {s.handleLoanRepay, true},
		"loan_liquidate":        {s.handleLoanLiquidate, true},
		"loan_withdrawFees":     {s.handleLoanWithdrawFees, true},
		"loan_getPosition":      {s.handleLoanGetPosition, false},
		"loan_minimumRequired":  {s.handleLoanMinimumRequired, false},
		"loan_isLiquidatable":   {s.handleLoanIsLiquidatable, false},
		"loan_stats":            {s.handleLoanStats, false},
		"collateral_getRecord":  {s.handleCollateralGetRecord, false},
		"wallet_get":            {s.handleWalletGet, false},
		"wallet_withdraw":       {s.handleWalletWithdraw, true},
		"wallet_execute":        {s.handleWalletExecute, true},
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.visitors[source]
	if !ok {
		limiter = rate.NewLimiter(s.perSec, s.burst)
		s.visitors[source] = limiter
	}
	return limiter.Allow()
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeFailure translates engine sentinels into JSON-RPC error codes so
// clients can distinguish bad input, authorization, and protocol state.
func (s *Server) writeFailure(w http.ResponseWriter, req *RPCRequest, err error) {
	status, code := classify(err)
	outcome := "error"
	if code == codeInvalidParams {
		outcome = "invalid"
	}
	s.metrics.ObserveRPCRequest(req.Method, outcome)
	writeError(w, status, req.ID, code, err.Error(), nil)
}

func classify(err error) (int, int) {
	switch {
	case errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrZeroAddress),
		errors.Is(err, loan.ErrInvalidAmount),
		errors.Is(err, loan.ErrZeroAddress),
		errors.Is(err, collateral.ErrInvalidAmount),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrZeroAddress):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, vault.ErrNotOrchestrator),
		errors.Is(err, collateral.ErrNotOrchestrator),
		errors.Is(err, loan.ErrNotCollector),
		errors.Is(err, wallet.ErrNotOwner):
		return http.StatusForbidden, codeUnauthorized
	case errors.Is(err, vault.ErrInsufficientLiquidity):
		return http.StatusConflict, codeLiquidity
	case errors.Is(err, wallet.ErrSolvencyFloor):
		return http.StatusConflict, codeSolvency
	case errors.Is(err, loan.ErrNotOverdue):
		return http.StatusConflict, codeNotOverdue
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, codePrecondition
	case errors.Is(err, vault.ErrInsufficientBalance),
		errors.Is(err, vault.ErrAllowanceExceeded),
		errors.Is(err, loan.ErrActivePosition),
		errors.Is(err, loan.ErrNoActivePosition),
		errors.Is(err, loan.ErrInsufficientBalance),
		errors.Is(err, collateral.ErrInsufficientMargin),
		errors.Is(err, collateral.ErrRecordActive),
		errors.Is(err, collateral.ErrRecordNotFound),
		errors.Is(err, wallet.ErrNoWallet),
		errors.Is(err, wallet.ErrInsufficientBalance),
		errors.Is(err, wallet.ErrVenueNotAllowed),
		errors.Is(err, wallet.ErrTokenNotAllowed):
		return http.StatusConflict, codePrecondition
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func (s *Server) observeOK(method string) {
	s.metrics.ObserveRPCRequest(method, "ok")
}

func decodeParams(req *RPCRequest, target interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single parameter object")
	}
	return json.Unmarshal(req.Params[0], target)
}

func parseAddress(value string) ([20]byte, error) {
	return config.ParseAddress(value)
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
