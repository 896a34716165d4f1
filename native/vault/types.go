package vault

import "math/big"

// Pool captures the aggregate accounting state of the yield vault. Amounts are
// settlement-asset base units expressed as big integers.
type Pool struct {
	// TotalShares is the aggregate share supply across all depositors.
	TotalShares *big.Int
	// AssetsOnHand is the raw settlement-asset balance physically held by
	// the pool treasury.
	AssetsOnHand *big.Int
	// TotalAllocated tracks funds out on loan via orchestrator allocations.
	TotalAllocated *big.Int
	// YieldBaseBalance is the principal currently eligible for APY accrual.
	YieldBaseBalance *big.Int
	// TotalAccruedYield is yield already folded into the pool accounting.
	// Yield is only ever added, never reversed, so share price is
	// monotonically non-decreasing between accruals.
	TotalAccruedYield *big.Int
	// LastAccrualTime records when pending yield was last materialized,
	// in Unix seconds.
	LastAccrualTime uint64
}

// ShareAccount maintains the pool share balance for a single depositor.
type ShareAccount struct {
	Address [20]byte
	Shares  *big.Int
}

// Stats is the read-only snapshot returned by the pool stats query.
type Stats struct {
	TotalShares       *big.Int `json:"totalShares"`
	AssetsOnHand      *big.Int `json:"assetsOnHand"`
	TotalAllocated    *big.Int `json:"totalAllocated"`
	YieldBaseBalance  *big.Int `json:"yieldBaseBalance"`
	TotalAccruedYield *big.Int `json:"totalAccruedYield"`
	PendingYield      *big.Int `json:"pendingYield"`
	TotalAssets       *big.Int `json:"totalAssets"`
	LastAccrualTime   uint64   `json:"lastAccrualTime"`
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := &Pool{LastAccrualTime: p.LastAccrualTime}
	clone.TotalShares = cloneInt(p.TotalShares)
	clone.AssetsOnHand = cloneInt(p.AssetsOnHand)
	clone.TotalAllocated = cloneInt(p.TotalAllocated)
	clone.YieldBaseBalance = cloneInt(p.YieldBaseBalance)
	clone.TotalAccruedYield = cloneInt(p.TotalAccruedYield)
	return clone
}

// EnsureDefaults populates nil big.Int fields so RLP handling is safe.
func (p *Pool) EnsureDefaults() {
	if p == nil {
		return
	}
	if p.TotalShares == nil {
		p.TotalShares = big.NewInt(0)
	}
	if p.AssetsOnHand == nil {
		p.AssetsOnHand = big.NewInt(0)
	}
	if p.TotalAllocated == nil {
		p.TotalAllocated = big.NewInt(0)
	}
	if p.YieldBaseBalance == nil {
		p.YieldBaseBalance = big.NewInt(0)
	}
	if p.TotalAccruedYield == nil {
		p.TotalAccruedYield = big.NewInt(0)
	}
}

// EnsureDefaults populates nil big.Int fields so RLP handling is safe.
func (s *ShareAccount) EnsureDefaults() {
	if s == nil {
		return
	}
	if s.Shares == nil {
		s.Shares = big.NewInt(0)
	}
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
