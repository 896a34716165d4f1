package rpc

import (
	"net/http"

	"marginvault/wallet"
)

type walletOwnerParams struct {
	Owner string `json:"owner"`
}

type walletWithdrawParams struct {
	Caller    string `json:"caller"`
	Owner     string `json:"owner"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type walletExecuteParams struct {
	Caller   string `json:"caller"`
	Owner    string `json:"owner"`
	Venue    string `json:"venue"`
	TokenIn  string `json:"tokenIn"`
	TokenOut string `json:"tokenOut"`
	AmountIn string `json:"amountIn"`
}

type walletBalanceResult struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type walletResult struct {
	Owner     string                `json:"owner"`
	Address   string                `json:"address"`
	Balances  []walletBalanceResult `json:"balances"`
	CreatedAt uint64                `json:"createdAt"`
}

type walletSwapResult struct {
	AmountOut string `json:"amountOut"`
}

func walletRecordResult(r *wallet.WalletRecord) *walletResult {
	if r == nil {
		return nil
	}
	out := &walletResult{
		Owner:     formatAddress(r.Owner),
		Address:   formatAddress(r.Address),
		Balances:  make([]walletBalanceResult, 0, len(r.Balances)),
		CreatedAt: r.CreatedAt,
	}
	for _, balance := range r.Balances {
		out.Balances = append(out.Balances, walletBalanceResult{
			Token:  balance.Token,
			Amount: formatAmount(balance.Amount),
		})
	}
	return out
}

func (s *Server) handleWalletGet(w http.ResponseWriter, req *RPCRequest) {
	var params walletOwnerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return
	}
	record, err := s.node.WalletGet(owner)
	if err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, walletRecordResult(record))
}

func (s *Server) handleWalletWithdraw(w http.ResponseWriter, req *RPCRequest) {
	var params walletWithdrawParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid withdraw parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return
	}
	recipient, err := parseAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid recipient address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.WalletWithdraw(caller, owner, recipient, amount); err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, true)
}

func (s *Server) handleWalletExecute(w http.ResponseWriter, req *RPCRequest) {
	var params walletExecuteParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid execute parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return
	}
	amountIn, err := parseAmount(params.AmountIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	amountOut, err := s.node.WalletExecute(caller, owner, params.Venue, params.TokenIn, params.TokenOut, amountIn)
	if err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, walletSwapResult{AmountOut: formatAmount(amountOut)})
}
