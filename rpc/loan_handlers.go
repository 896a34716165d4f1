package rpc

import (
	"net/http"

	"marginvault/native/collateral"
	"marginvault/native/loan"
)

type loanCreateParams struct {
	Borrower string `json:"borrower"`
	Amount   string `json:"amount"`
}

type loanBorrowerParams struct {
	Borrower string `json:"borrower"`
}

type loanLiquidateParams struct {
	Liquidator string `json:"liquidator"`
	Borrower   string `json:"borrower"`
}

type loanWithdrawFeesParams struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type loanPositionResult struct {
	Borrower     string `json:"borrower"`
	Wallet       string `json:"wallet"`
	LoanAmount   string `json:"loanAmount"`
	MarginAmount string `json:"marginAmount"`
	PoolFunding  string `json:"poolFunding"`
	StartTime    uint64 `json:"startTime"`
	Active       bool   `json:"active"`
}

type loanStatsResult struct {
	LoansCreated    uint64 `json:"loansCreated"`
	LoansRepaid     uint64 `json:"loansRepaid"`
	LoansLiquidated uint64 `json:"loansLiquidated"`
	ProtocolFees    string `json:"protocolFees"`
}

type marginRecordResult struct {
	Borrower     string `json:"borrower"`
	MarginAmount string `json:"marginAmount"`
	LoanAmount   string `json:"loanAmount"`
	StartTime    uint64 `json:"startTime"`
	Active       bool   `json:"active"`
	Outcome      string `json:"outcome,omitempty"`
}

func positionResult(p *loan.LoanPosition) *loanPositionResult {
	if p == nil {
		return nil
	}
	return &loanPositionResult{
		Borrower:     formatAddress(p.Borrower),
		Wallet:       formatAddress(p.Wallet),
		LoanAmount:   formatAmount(p.LoanAmount),
		MarginAmount: formatAmount(p.MarginAmount),
		PoolFunding:  formatAmount(p.PoolFunding),
		StartTime:    p.StartTime,
		Active:       p.Active,
	}
}

func recordResult(r *collateral.MarginRecord) *marginRecordResult {
	if r == nil {
		return nil
	}
	return &marginRecordResult{
		Borrower:     formatAddress(r.Borrower),
		MarginAmount: formatAmount(r.MarginAmount),
		LoanAmount:   formatAmount(r.LoanAmount),
		StartTime:    r.StartTime,
		Active:       r.Active,
		Outcome:      r.Outcome,
	}
}

func (s *Server) handleLoanCreate(w http.ResponseWriter, req *RPCRequest) {
	var params loanCreateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid loan parameters", err.Error())
		return
	}
	borrower, err := parseAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.LoanCreate(borrower, amount); err != nil {
		s.writeFailure(w, req, err)
		return
	}
	position, err := s.node.LoanInfo(borrower)
	if err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, positionResult(position))
}

func (s *Server) handleLoanRepay(w http.ResponseWriter, req *RPCRequest) {
	var params loanBorrowerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid repay parameters", err.Error())
		return
	}
	borrower, err := parseAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower address", err.Error())
		return
	}
	if err := s.node.LoanRepay(borrower); err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, true)
}

func (s *Server) handleLoanLiquidate(w http.ResponseWriter, req *RPCRequest) {
	var params loanLiquidateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid liquidate parameters", err.Error())
		return
	}
	liquidator, err := parseAddress(params.Liquidator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid liquidator address", err.Error())
		return
	}
	borrower, err := parseAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower address", err.Error())
		return
	}
	if err := s.node.LoanLiquidate(liquidator, borrower); err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, true)
}

func (s *Server) handleLoanWithdrawFees(w http.ResponseWriter, req *RPCRequest) {
	var params loanWithdrawFeesParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
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
	if err := s.node.LoanWithdrawFees(caller, recipient, amount); err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, true)
}

func (s *Server) handleLoanGetPosition(w http.ResponseWriter, req *RPCRequest) {
	var params loanBorrowerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	borrower, err := parseAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower address", err.Error())
		return
	}
	position, err := s.node.LoanInfo(borrower)
	if err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, positionResult(position))
}

func (s *Server) handleLoanMinimumRequired(w http.ResponseWriter, req *RPCRequest) {
	var params loanBorrowerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	borrower, err := parseAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower address", err.Error())
		return
	}
	minimum, err := s.node.LoanMinimumRequired(borrower)
	if err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, vaultQuoteResult{Value: formatAmount(minimum)})
}

func (s *Server) handleLoanIsLiquidatable(w http.ResponseWriter, req *RPCRequest) {
	var params loanBorrowerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	borrower, err := parseAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower address", err.Error())
		return
	}
	liquidatable, err := s.node.LoanIsLiquidatable(borrower)
	if err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, liquidatable)
}

func (s *Server) handleLoanStats(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	stats, err := s.node.LoanStats()
	if err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, loanStatsResult{
		LoansCreated:    stats.LoansCreated,
		LoansRepaid:     stats.LoansRepaid,
		LoansLiquidated: stats.LoansLiquidated,
		ProtocolFees:    formatAmount(stats.ProtocolFees),
	})
}

func (s *Server) handleCollateralGetRecord(w http.ResponseWriter, req *RPCRequest) {
	var params loanBorrowerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	borrower, err := parseAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower address", err.Error())
		return
	}
	record, err := s.node.CollateralRecord(borrower)
	if err != nil {
		s.writeFailure(w, req, err)
		return
	}
	s.observeOK(req.Method)
	writeResult(w, req.ID, recordResult(record))
}
