package events

import (
	"math/big"

	"marginvault/core/types"
)

const (
	TypeCollateralRecorded = "collateral.recorded"
	TypeCollateralCleared  = "collateral.cleared"
)

// CollateralRecorded is emitted when a margin record becomes active.
type CollateralRecorded struct {
	Borrower  [20]byte
	Margin    *big.Int
	Loan      *big.Int
	StartTime uint64
}

func (CollateralRecorded) EventType() string { return TypeCollateralRecorded }

func (e CollateralRecorded) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralRecorded,
		Attributes: map[string]string{
			"borrower":  formatAddress(e.Borrower),
			"margin":    formatAmount(e.Margin),
			"loan":      formatAmount(e.Loan),
			"startTime": formatUint(e.StartTime),
		},
	}
}

// CollateralCleared is emitted when a margin record is deactivated with its
// terminal outcome.
type CollateralCleared struct {
	Borrower [20]byte
	Outcome  string
}

func (CollateralCleared) EventType() string { return TypeCollateralCleared }

func (e CollateralCleared) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralCleared,
		Attributes: map[string]string{
			"borrower": formatAddress(e.Borrower),
			"outcome":  e.Outcome,
		},
	}
}
