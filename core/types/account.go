package types

import "math/big"

// Account holds the settlement-asset balance tracked for an address. Module
// treasuries (the vault pool, the loan orchestrator) and trading wallets use
// the same account representation as end users.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// Clone returns a deep copy of the account so callers can mutate the copy
// without touching the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{Nonce: a.Nonce, Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}

// EnsureDefaults populates nil big.Int fields so RLP/JSON handling is safe.
func (a *Account) EnsureDefaults() {
	if a == nil {
		return
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
}
