package rpc

import (
	"net/http"
)

type vaultDepositParams struct {
	Caller   string `json:"caller"`
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
}

type vaultWithdrawParams struct {
	Caller   string `json:"caller"`
	Receiver string `json:"receiver"`
	Owner    string `json:"owner"`
	Amount   string `json:"amount"`
}

type vaultRedeemParams struct {
	Caller   string `json:"caller"`
	Receiver string `json:"receiver"`
	Owner    string `json:"owner"`
	Shares   string `json:"shares"`
}

type vaultApproveParams struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type addressParams struct {
	Address string `json:"address"`
}

type amountParams struct {
	Amount string `json:"amount"`
}

type sharesParams struct {
	Shares string `json:"shares"`
}

type vaultMintResult struct {
	Shares string `json:"shares"`
}

type vaultBurnResult struct {
	Shares string `json:"shares,omitempty"`
	Assets string `json:"assets,omitempty"`
}

type vaultQuoteResult struct {
	Value string `json:"value"`
}

func (s *Server) handleVaultDeposit(w http.ResponseWriter, req *RPCRequest) {
	var params vaultDepositParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid deposit parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	receiver, err := parseAddress(params.Receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid receiver address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	shares, err := s.node.VaultDeposit(caller, receiver, amount)
	if err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, vaultMintResult{Shares: formatAmount(shares)})
}

func (s *Server) handleVaultWithdraw(w http.ResponseWriter, req *RPCRequest) {
	var params vaultWithdrawParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid withdraw parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	receiver, err := parseAddress(params.Receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid receiver address", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	shares, err := s.node.VaultWithdraw(caller, receiver, owner, amount)
	if err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, vaultBurnResult{Shares: formatAmount(shares)})
}

func (s *Server) handleVaultRedeem(w http.ResponseWriter, req *RPCRequest) {
	var params vaultRedeemParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid redeem parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	receiver, err := parseAddress(params.Receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid receiver address", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return
	}
	shares, err := parseAmount(params.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid shares", err.Error())
		return
	}
	assets, err := s.node.VaultRedeem(caller, receiver, owner, shares)
	if err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, vaultBurnResult{Assets: formatAmount(assets)})
}

func (s *Server) handleVaultApprove(w http.ResponseWriter, req *RPCRequest) {
	var params vaultApproveParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid approve parameters", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return
	}
	spender, err := parseAddress(params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid spender address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.VaultApprove(owner, spender, amount); err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, true)
}

func (s *Server) handleVaultAccrue(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	if err := s.node.VaultAccrue(); err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, true)
}

func (s *Server) handleVaultGetPool(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	stats, err := s.node.VaultStats()
	if err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, stats)
}

func (s *Server) handleVaultBalanceOf(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	shares, err := s.node.VaultBalanceOf(addr)
	if err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, vaultMintResult{Shares: formatAmount(shares)})
}

func (s *Server) handleVaultPreviewDeposit(w http.ResponseWriter, req *RPCRequest) {
	var params amountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	quote, err := s.node.VaultPreviewDeposit(amount)
	if err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, vaultQuoteResult{Value: formatAmount(quote)})
}

func (s *Server) handleVaultPreviewWithdraw(w http.ResponseWriter, req *RPCRequest) {
	var params amountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	quote, err := s.node.VaultPreviewWithdraw(amount)
	if err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, vaultQuoteResult{Value: formatAmount(quote)})
}

func (s *Server) handleVaultPreviewRedeem(w http.ResponseWriter, req *RPCRequest) {
	var params sharesParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	shares, err := parseAmount(params.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid shares", err.Error())
		return
	}
	quote, err := s.node.VaultPreviewRedeem(shares)
	if err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, vaultQuoteResult{Value: formatAmount(quote)})
}
