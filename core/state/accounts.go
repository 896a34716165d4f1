package state

import (
	"fmt"
	"math/big"

	"marginvault/core/types"
)

// GetAccount loads the account stored for addr. Missing accounts resolve to a
// zero-balance account rather than an error so view paths never fail on
// absence.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	account := new(types.Account)
	ok, err := m.KVGet(accountKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		account = &types.Account{}
	}
	account.EnsureDefaults()
	return account, nil
}

// PutAccount persists the account for addr.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account for %x", addr)
	}
	account.EnsureDefaults()
	return m.KVPut(accountKey(addr), account)
}

// Credit adds amount to the account balance for addr. Used for genesis
// allocations; runtime balance movements go through the engines.
func (m *Manager) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: credit amount must be positive")
	}
	account, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return m.PutAccount(addr, account)
}
