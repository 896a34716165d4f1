package state

import (
	"fmt"
	"math/big"

	"marginvault/native/vault"
)

// VaultGetPool loads the pool aggregate, nil when never written.
func (m *Manager) VaultGetPool() (*vault.Pool, error) {
	pool := new(vault.Pool)
	ok, err := m.KVGet(vaultPoolKey(), pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	pool.EnsureDefaults()
	return pool, nil
}

// VaultPutPool persists the pool aggregate.
func (m *Manager) VaultPutPool(pool *vault.Pool) error {
	if pool == nil {
		return fmt.Errorf("state: nil pool")
	}
	pool.EnsureDefaults()
	return m.KVPut(vaultPoolKey(), pool)
}

// VaultGetShares loads a depositor's share account, nil when never written.
func (m *Manager) VaultGetShares(addr [20]byte) (*vault.ShareAccount, error) {
	account := new(vault.ShareAccount)
	ok, err := m.KVGet(vaultSharesKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	account.EnsureDefaults()
	return account, nil
}

// VaultPutShares persists a depositor's share account.
func (m *Manager) VaultPutShares(account *vault.ShareAccount) error {
	if account == nil {
		return fmt.Errorf("state: nil share account")
	}
	account.EnsureDefaults()
	return m.KVPut(vaultSharesKey(account.Address), account)
}

// VaultGetAllowance loads a share spending allowance, nil when never granted.
func (m *Manager) VaultGetAllowance(owner, spender [20]byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(vaultAllowanceKey(owner, spender), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return amount, nil
}

// VaultPutAllowance persists a share spending allowance.
func (m *Manager) VaultPutAllowance(owner, spender [20]byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return m.KVPut(vaultAllowanceKey(owner, spender), amount)
}
