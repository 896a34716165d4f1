package events

import (
	"math/big"

	"marginvault/core/types"
)

const (
	TypeVaultDeposited = "vault.deposited"
	TypeVaultWithdrawn = "vault.withdrawn"
	TypeVaultRedeemed  = "vault.redeemed"
	TypeVaultAccrued   = "vault.accrued"
	TypeVaultAllocated = "vault.allocated"
	TypeVaultAbsorbed  = "vault.absorbed"
	TypeVaultApproved  = "vault.approved"
)

// VaultDeposited is emitted when a depositor adds settlement assets to the
// pool in exchange for freshly minted shares.
type VaultDeposited struct {
	Depositor [20]byte
	Receiver  [20]byte
	Assets    *big.Int
	Shares    *big.Int
}

func (VaultDeposited) EventType() string { return TypeVaultDeposited }

func (e VaultDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultDeposited,
		Attributes: map[string]string{
			"depositor": formatAddress(e.Depositor),
			"receiver":  formatAddress(e.Receiver),
			"assets":    formatAmount(e.Assets),
			"shares":    formatAmount(e.Shares),
		},
	}
}

// VaultWithdrawn is emitted when pool assets leave through withdraw or redeem.
type VaultWithdrawn struct {
	Owner    [20]byte
	Receiver [20]byte
	Assets   *big.Int
	Shares   *big.Int
	Redeem   bool
}

func (e VaultWithdrawn) EventType() string {
	if e.Redeem {
		return TypeVaultRedeemed
	}
	return TypeVaultWithdrawn
}

func (e VaultWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"owner":    formatAddress(e.Owner),
			"receiver": formatAddress(e.Receiver),
			"assets":   formatAmount(e.Assets),
			"shares":   formatAmount(e.Shares),
		},
	}
}

// VaultAccrued reports yield folded into the pool accounting.
type VaultAccrued struct {
	Pending   *big.Int
	YieldBase *big.Int
	Accrued   *big.Int
	At        uint64
}

func (VaultAccrued) EventType() string { return TypeVaultAccrued }

func (e VaultAccrued) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultAccrued,
		Attributes: map[string]string{
			"pending":   formatAmount(e.Pending),
			"yieldBase": formatAmount(e.YieldBase),
			"accrued":   formatAmount(e.Accrued),
			"at":        formatUint(e.At),
		},
	}
}

// VaultAllocated is emitted when the orchestrator routes pool liquidity into a
// trading wallet.
type VaultAllocated struct {
	Recipient [20]byte
	Amount    *big.Int
}

func (VaultAllocated) EventType() string { return TypeVaultAllocated }

func (e VaultAllocated) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultAllocated,
		Attributes: map[string]string{
			"recipient": formatAddress(e.Recipient),
			"amount":    formatAmount(e.Amount),
		},
	}
}

// VaultAbsorbed is emitted when repayment or liquidation proceeds flow back
// into the pool.
type VaultAbsorbed struct {
	Borrower [20]byte
	Amount   *big.Int
}

func (VaultAbsorbed) EventType() string { return TypeVaultAbsorbed }

func (e VaultAbsorbed) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultAbsorbed,
		Attributes: map[string]string{
			"borrower": formatAddress(e.Borrower),
			"amount":   formatAmount(e.Amount),
		},
	}
}

// VaultApproved records a spending allowance granted on pool shares.
type VaultApproved struct {
	Owner   [20]byte
	Spender [20]byte
	Amount  *big.Int
}

func (VaultApproved) EventType() string { return TypeVaultApproved }

func (e VaultApproved) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultApproved,
		Attributes: map[string]string{
			"owner":   formatAddress(e.Owner),
			"spender": formatAddress(e.Spender),
			"amount":  formatAmount(e.Amount),
		},
	}
}
