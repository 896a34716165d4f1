package events

import (
	"math/big"

	"marginvault/core/types"
)

const (
	TypeLoanCreated    = "loan.created"
	TypeLoanRepaid     = "loan.repaid"
	TypeLoanLiquidated = "loan.liquidated"
	TypeFeesWithdrawn  = "loan.fees_withdrawn"
)

// LoanCreated is emitted when a leveraged position opens.
type LoanCreated struct {
	Borrower    [20]byte
	Wallet      [20]byte
	LoanAmount  *big.Int
	Margin      *big.Int
	PoolFunding *big.Int
	StartTime   uint64
}

func (LoanCreated) EventType() string { return TypeLoanCreated }

func (e LoanCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanCreated,
		Attributes: map[string]string{
			"borrower":    formatAddress(e.Borrower),
			"wallet":      formatAddress(e.Wallet),
			"loanAmount":  formatAmount(e.LoanAmount),
			"margin":      formatAmount(e.Margin),
			"poolFunding": formatAmount(e.PoolFunding),
			"startTime":   formatUint(e.StartTime),
		},
	}
}

// LoanRepaid is emitted on voluntary repayment, carrying the settlement
// waterfall outcome.
type LoanRepaid struct {
	Borrower      [20]byte
	Returned      *big.Int
	Interest      *big.Int
	PoolShare     *big.Int
	BorrowerShare *big.Int
	ProtocolFee   *big.Int
}

func (LoanRepaid) EventType() string { return TypeLoanRepaid }

func (e LoanRepaid) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanRepaid,
		Attributes: map[string]string{
			"borrower":      formatAddress(e.Borrower),
			"returned":      formatAmount(e.Returned),
			"interest":      formatAmount(e.Interest),
			"poolShare":     formatAmount(e.PoolShare),
			"borrowerShare": formatAmount(e.BorrowerShare),
			"protocolFee":   formatAmount(e.ProtocolFee),
		},
	}
}

// LoanLiquidated is emitted when an overdue position is closed by a third
// party.
type LoanLiquidated struct {
	Borrower   [20]byte
	Liquidator [20]byte
	Recovered  *big.Int
	PoolShare  *big.Int
	Reward     *big.Int
}

func (LoanLiquidated) EventType() string { return TypeLoanLiquidated }

func (e LoanLiquidated) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanLiquidated,
		Attributes: map[string]string{
			"borrower":   formatAddress(e.Borrower),
			"liquidator": formatAddress(e.Liquidator),
			"recovered":  formatAmount(e.Recovered),
			"poolShare":  formatAmount(e.PoolShare),
			"reward":     formatAmount(e.Reward),
		},
	}
}

// FeesWithdrawn is emitted when accrued protocol fees leave the orchestrator
// treasury.
type FeesWithdrawn struct {
	Recipient [20]byte
	Amount    *big.Int
}

func (FeesWithdrawn) EventType() string { return TypeFeesWithdrawn }

func (e FeesWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeFeesWithdrawn,
		Attributes: map[string]string{
			"recipient": formatAddress(e.Recipient),
			"amount":    formatAmount(e.Amount),
		},
	}
}
