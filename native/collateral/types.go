package collateral

import "math/big"

// Terminal outcomes stamped on a record when it is cleared.
const (
	OutcomeRepaid     = "repaid"
	OutcomeLiquidated = "liquidated"
)

// MarginRecord tracks the margin locked against a single active loan. One
// record per borrower; a cleared record stays on disk with its outcome for
// audit but no longer blocks a new loan.
type MarginRecord struct {
	Borrower     [20]byte
	MarginAmount *big.Int
	LoanAmount   *big.Int
	// StartTime is the loan open time in Unix seconds; the due date derives
	// from it plus the configured duration.
	StartTime uint64
	Active    bool
	Outcome   string
}

// Clone returns a deep copy of the record.
func (r *MarginRecord) Clone() *MarginRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.MarginAmount != nil {
		clone.MarginAmount = new(big.Int).Set(r.MarginAmount)
	}
	if r.LoanAmount != nil {
		clone.LoanAmount = new(big.Int).Set(r.LoanAmount)
	}
	return &clone
}

// EnsureDefaults populates nil big.Int fields so RLP handling is safe.
func (r *MarginRecord) EnsureDefaults() {
	if r == nil {
		return
	}
	if r.MarginAmount == nil {
		r.MarginAmount = big.NewInt(0)
	}
	if r.LoanAmount == nil {
		r.LoanAmount = big.NewInt(0)
	}
}
