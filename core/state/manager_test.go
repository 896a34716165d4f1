package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"marginvault/core/types"
	"marginvault/native/collateral"
	"marginvault/native/loan"
	"marginvault/native/vault"
	"marginvault/storage"
	"marginvault/wallet"
)

func TestOverlayShadowsAndCommits(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)

	addr := [20]byte{0x01}
	require.NoError(t, manager.PutAccount(addr, &types.Account{Balance: big.NewInt(42)}))
	require.True(t, manager.Dirty())

	// Visible through the overlay before commit.
	account, err := manager.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, int64(42), account.Balance.Int64())

	// A fresh manager on the same database sees nothing yet.
	other := NewManager(db)
	account, err = other.GetAccount(addr)
	require.NoError(t, err)
	require.Zero(t, account.Balance.Sign())

	require.NoError(t, manager.Commit())
	require.False(t, manager.Dirty())

	account, err = other.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, int64(42), account.Balance.Int64())
}

func TestResetDiscardsUncommittedWrites(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)

	addr := [20]byte{0x02}
	require.NoError(t, manager.PutAccount(addr, &types.Account{Balance: big.NewInt(7)}))
	manager.Reset()
	require.False(t, manager.Dirty())

	account, err := manager.GetAccount(addr)
	require.NoError(t, err)
	require.Zero(t, account.Balance.Sign())
}

func TestTypedTablesRoundTrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	borrower := [20]byte{0x03}

	missing, err := manager.VaultGetPool()
	require.NoError(t, err)
	require.Nil(t, missing)

	pool := &vault.Pool{
		TotalShares:     big.NewInt(1_000),
		AssetsOnHand:    big.NewInt(2_000),
		LastAccrualTime: 1_700_000_000,
	}
	require.NoError(t, manager.VaultPutPool(pool))
	loaded, err := manager.VaultGetPool()
	require.NoError(t, err)
	require.Equal(t, int64(1_000), loaded.TotalShares.Int64())
	require.Zero(t, loaded.TotalAllocated.Sign())
	require.Equal(t, uint64(1_700_000_000), loaded.LastAccrualTime)

	require.NoError(t, manager.VaultPutShares(&vault.ShareAccount{Address: borrower, Shares: big.NewInt(9)}))
	shares, err := manager.VaultGetShares(borrower)
	require.NoError(t, err)
	require.Equal(t, int64(9), shares.Shares.Int64())

	spender := [20]byte{0x04}
	noGrant, err := manager.VaultGetAllowance(borrower, spender)
	require.NoError(t, err)
	require.Nil(t, noGrant)
	require.NoError(t, manager.VaultPutAllowance(borrower, spender, big.NewInt(5)))
	allowance, err := manager.VaultGetAllowance(borrower, spender)
	require.NoError(t, err)
	require.Equal(t, int64(5), allowance.Int64())

	record := &collateral.MarginRecord{
		Borrower:     borrower,
		MarginAmount: big.NewInt(2_000),
		LoanAmount:   big.NewInt(10_000),
		StartTime:    1_700_000_000,
		Active:       true,
	}
	require.NoError(t, manager.CollateralPutRecord(record))
	gotRecord, err := manager.CollateralGetRecord(borrower)
	require.NoError(t, err)
	require.True(t, gotRecord.Active)
	require.Equal(t, int64(10_000), gotRecord.LoanAmount.Int64())

	position := &loan.LoanPosition{
		Borrower:     borrower,
		Wallet:       [20]byte{0x05},
		LoanAmount:   big.NewInt(10_000),
		MarginAmount: big.NewInt(2_000),
		PoolFunding:  big.NewInt(8_000),
		StartTime:    1_700_000_000,
		Active:       true,
	}
	require.NoError(t, manager.LoanPutPosition(position))
	gotPosition, err := manager.LoanGetPosition(borrower)
	require.NoError(t, err)
	require.Equal(t, position.Wallet, gotPosition.Wallet)
	require.Equal(t, int64(8_000), gotPosition.PoolFunding.Int64())

	require.NoError(t, manager.LoanPutStats(&loan.LoanStats{LoansCreated: 3, ProtocolFees: big.NewInt(12)}))
	stats, err := manager.LoanGetStats()
	require.NoError(t, err)
	require.Equal(t, uint64(3), stats.LoansCreated)
	require.Equal(t, int64(12), stats.ProtocolFees.Int64())

	walletRecord := &wallet.WalletRecord{
		Owner:     borrower,
		Address:   wallet.DeriveAddress(borrower),
		Balances:  []wallet.TokenBalance{{Token: "WETH", Amount: big.NewInt(2)}},
		CreatedAt: 1_700_000_000,
	}
	require.NoError(t, manager.WalletPutRecord(walletRecord))
	gotWallet, err := manager.WalletGetRecord(borrower)
	require.NoError(t, err)
	require.Equal(t, walletRecord.Address, gotWallet.Address)
	require.Equal(t, int64(2), gotWallet.TokenAmount("WETH").Int64())
}
