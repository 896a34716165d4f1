package events

import (
	"math/big"

	"marginvault/core/types"
)

const (
	TypeWalletProvisioned = "wallet.provisioned"
	TypeWalletWithdrawn   = "wallet.withdrawn"
	TypeWalletSwapped     = "wallet.swapped"
)

// WalletProvisioned is emitted the first time a borrower's trading wallet is
// created by the registry.
type WalletProvisioned struct {
	Owner  [20]byte
	Wallet [20]byte
}

func (WalletProvisioned) EventType() string { return TypeWalletProvisioned }

func (e WalletProvisioned) Event() *types.Event {
	return &types.Event{
		Type: TypeWalletProvisioned,
		Attributes: map[string]string{
			"owner":  formatAddress(e.Owner),
			"wallet": formatAddress(e.Wallet),
		},
	}
}

// WalletWithdrawn is emitted when settlement assets leave a trading wallet
// through the authorized gate.
type WalletWithdrawn struct {
	Wallet    [20]byte
	Caller    [20]byte
	Recipient [20]byte
	Amount    *big.Int
}

func (WalletWithdrawn) EventType() string { return TypeWalletWithdrawn }

func (e WalletWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeWalletWithdrawn,
		Attributes: map[string]string{
			"wallet":    formatAddress(e.Wallet),
			"caller":    formatAddress(e.Caller),
			"recipient": formatAddress(e.Recipient),
			"amount":    formatAmount(e.Amount),
		},
	}
}

// WalletSwapped records a trade executed through an allowlisted venue.
type WalletSwapped struct {
	Wallet    [20]byte
	Venue     string
	TokenIn   string
	TokenOut  string
	AmountIn  *big.Int
	AmountOut *big.Int
}

func (WalletSwapped) EventType() string { return TypeWalletSwapped }

func (e WalletSwapped) Event() *types.Event {
	return &types.Event{
		Type: TypeWalletSwapped,
		Attributes: map[string]string{
			"wallet":    formatAddress(e.Wallet),
			"venue":     e.Venue,
			"tokenIn":   e.TokenIn,
			"tokenOut":  e.TokenOut,
			"amountIn":  formatAmount(e.AmountIn),
			"amountOut": formatAmount(e.AmountOut),
		},
	}
}
