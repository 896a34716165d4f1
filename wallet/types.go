package wallet

import (
	"math/big"
	"sort"
)

// SettlementSymbol is the symbol the settlement asset trades under on the
// venue side. Settlement value lives in the account table, venue tokens in
// the wallet record.
const SettlementSymbol = "USDX"

// TokenBalance is one venue-token holding. Balances are kept as a sorted
// slice rather than a map so the record encodes deterministically.
type TokenBalance struct {
	Token  string
	Amount *big.Int
}

// WalletRecord is the persisted registry entry for a borrower's trading
// wallet.
type WalletRecord struct {
	Owner     [20]byte
	Address   [20]byte
	Balances  []TokenBalance
	CreatedAt uint64
}

// Clone returns a deep copy of the record.
func (r *WalletRecord) Clone() *WalletRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Balances != nil {
		clone.Balances = make([]TokenBalance, len(r.Balances))
		for i, balance := range r.Balances {
			clone.Balances[i] = TokenBalance{Token: balance.Token, Amount: new(big.Int).Set(balance.Amount)}
		}
	}
	return &clone
}

// TokenAmount returns the held amount of token, zero when absent.
func (r *WalletRecord) TokenAmount(token string) *big.Int {
	if r == nil {
		return big.NewInt(0)
	}
	for _, balance := range r.Balances {
		if balance.Token == token {
			return new(big.Int).Set(balance.Amount)
		}
	}
	return big.NewInt(0)
}

// setTokenAmount replaces the held amount of token, keeping the slice sorted.
func (r *WalletRecord) setTokenAmount(token string, amount *big.Int) {
	for i, balance := range r.Balances {
		if balance.Token == token {
			r.Balances[i].Amount = new(big.Int).Set(amount)
			return
		}
	}
	r.Balances = append(r.Balances, TokenBalance{Token: token, Amount: new(big.Int).Set(amount)})
	sort.Slice(r.Balances, func(i, j int) bool { return r.Balances[i].Token < r.Balances[j].Token })
}
