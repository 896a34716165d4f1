package state

import (
	"fmt"

	"marginvault/native/loan"
)

// LoanGetPosition loads a borrower's loan position, nil when never written.
func (m *Manager) LoanGetPosition(borrower [20]byte) (*loan.LoanPosition, error) {
	position := new(loan.LoanPosition)
	ok, err := m.KVGet(loanPositionKey(borrower), position)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	position.EnsureDefaults()
	return position, nil
}

// LoanPutPosition persists a borrower's loan position.
func (m *Manager) LoanPutPosition(position *loan.LoanPosition) error {
	if position == nil {
		return fmt.Errorf("state: nil loan position")
	}
	position.EnsureDefaults()
	return m.KVPut(loanPositionKey(position.Borrower), position)
}

// LoanGetStats loads the lifetime loan counters, nil when never written.
func (m *Manager) LoanGetStats() (*loan.LoanStats, error) {
	stats := new(loan.LoanStats)
	ok, err := m.KVGet(loanStatsKey(), stats)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	stats.EnsureDefaults()
	return stats, nil
}

// LoanPutStats persists the lifetime loan counters.
func (m *Manager) LoanPutStats(stats *loan.LoanStats) error {
	if stats == nil {
		return fmt.Errorf("state: nil loan stats")
	}
	stats.EnsureDefaults()
	return m.KVPut(loanStatsKey(), stats)
}
