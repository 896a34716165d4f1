package loan

import "math/big"

// LoanPosition is the orchestrator-side record of a leveraged position. The
// margin record held by the collateral ledger mirrors the amounts; the
// position additionally pins the funding split and the trading wallet.
type LoanPosition struct {
	Borrower [20]byte
	Wallet   [20]byte
	// LoanAmount is the full notional; MarginAmount the borrower-funded
	// fraction; PoolFunding the vault-funded remainder. The three always
	// satisfy MarginAmount + PoolFunding == LoanAmount exactly.
	LoanAmount   *big.Int
	MarginAmount *big.Int
	PoolFunding  *big.Int
	StartTime    uint64
	Active       bool
}

// LoanStats aggregates lifetime counters plus the protocol fee balance
// retained by the orchestrator from interest residues.
type LoanStats struct {
	LoansCreated    uint64
	LoansRepaid     uint64
	LoansLiquidated uint64
	ProtocolFees    *big.Int
}

// Clone returns a deep copy of the position.
func (p *LoanPosition) Clone() *LoanPosition {
	if p == nil {
		return nil
	}
	clone := *p
	if p.LoanAmount != nil {
		clone.LoanAmount = new(big.Int).Set(p.LoanAmount)
	}
	if p.MarginAmount != nil {
		clone.MarginAmount = new(big.Int).Set(p.MarginAmount)
	}
	if p.PoolFunding != nil {
		clone.PoolFunding = new(big.Int).Set(p.PoolFunding)
	}
	return &clone
}

// EnsureDefaults populates nil big.Int fields so RLP handling is safe.
func (p *LoanPosition) EnsureDefaults() {
	if p == nil {
		return
	}
	if p.LoanAmount == nil {
		p.LoanAmount = big.NewInt(0)
	}
	if p.MarginAmount == nil {
		p.MarginAmount = big.NewInt(0)
	}
	if p.PoolFunding == nil {
		p.PoolFunding = big.NewInt(0)
	}
}

// Clone returns a deep copy of the stats.
func (s *LoanStats) Clone() *LoanStats {
	if s == nil {
		return nil
	}
	clone := *s
	if s.ProtocolFees != nil {
		clone.ProtocolFees = new(big.Int).Set(s.ProtocolFees)
	}
	return &clone
}

// EnsureDefaults populates nil big.Int fields so RLP handling is safe.
func (s *LoanStats) EnsureDefaults() {
	if s == nil {
		return
	}
	if s.ProtocolFees == nil {
		s.ProtocolFees = big.NewInt(0)
	}
}
