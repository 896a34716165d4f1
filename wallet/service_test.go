package wallet

import (
	"math/big"
	"testing"

	"marginvault/core/types"
)

type mockWalletState struct {
	records  map[[20]byte]*WalletRecord
	accounts map[[20]byte]*big.Int
}

func newMockWalletState() *mockWalletState {
	return &mockWalletState{
		records:  make(map[[20]byte]*WalletRecord),
		accounts: make(map[[20]byte]*big.Int),
	}
}

func (m *mockWalletState) WalletGetRecord(owner [20]byte) (*WalletRecord, error) {
	return m.records[owner].Clone(), nil
}

func (m *mockWalletState) WalletPutRecord(record *WalletRecord) error {
	m.records[record.Owner] = record.Clone()
	return nil
}

func (m *mockWalletState) GetAccount(addr [20]byte) (*types.Account, error) {
	balance, ok := m.accounts[addr]
	if !ok {
		balance = big.NewInt(0)
	}
	return &types.Account{Balance: new(big.Int).Set(balance)}, nil
}

func (m *mockWalletState) PutAccount(addr [20]byte, account *types.Account) error {
	m.accounts[addr] = new(big.Int).Set(account.Balance)
	return nil
}

func (m *mockWalletState) balance(addr [20]byte) *big.Int {
	balance, ok := m.accounts[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

type fixedFloor struct {
	floor *big.Int
}

func (f fixedFloor) MinimumRequired(borrower [20]byte) (*big.Int, error) {
	return new(big.Int).Set(f.floor), nil
}

var (
	orchestratorAddr = [20]byte{0xA0}
	owner            = [20]byte{0x02}
	stranger         = [20]byte{0x03}
	recipient        = [20]byte{0x04}
)

func newTestService(state *mockWalletState, floor int64) *Service {
	service := NewService([]string{"venue-a"}, []string{"WETH"})
	service.SetState(state)
	service.SetOrchestrator(orchestratorAddr)
	service.SetSolvencyView(fixedFloor{floor: big.NewInt(floor)})
	return service
}

func TestEnsureIsIdempotent(t *testing.T) {
	state := newMockWalletState()
	service := newTestService(state, 0)

	first, err := service.Ensure(owner)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, err := service.Ensure(owner)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if first != second {
		t.Fatalf("registry returned different wallets: %x vs %x", first, second)
	}
	if first != DeriveAddress(owner) {
		t.Fatalf("wallet address not deterministic: %x", first)
	}
	if _, err := service.Ensure([20]byte{}); err != ErrZeroAddress {
		t.Fatalf("zero owner: expected ErrZeroAddress, got %v", err)
	}
}

func TestWithdrawAuthorization(t *testing.T) {
	state := newMockWalletState()
	service := newTestService(state, 0)
	addr, err := service.Ensure(owner)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	state.accounts[addr] = big.NewInt(1_000)

	if err := service.Withdraw(stranger, owner, recipient, big.NewInt(100)); err != ErrNotOwner {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := service.Withdraw(owner, owner, recipient, big.NewInt(100)); err != nil {
		t.Fatalf("owner withdraw: %v", err)
	}
	if err := service.Withdraw(orchestratorAddr, owner, recipient, big.NewInt(100)); err != nil {
		t.Fatalf("orchestrator withdraw: %v", err)
	}
	if got := state.balance(recipient); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("recipient balance mismatch: %s", got)
	}
	if err := service.Withdraw(owner, owner, recipient, big.NewInt(10_000)); err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := service.Withdraw(owner, stranger, recipient, big.NewInt(1)); err != ErrNoWallet {
		t.Fatalf("expected ErrNoWallet, got %v", err)
	}
}

func TestSolvencyFloorGatesOwnerOnly(t *testing.T) {
	state := newMockWalletState()
	service := newTestService(state, 10_000)
	addr, err := service.Ensure(owner)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	state.accounts[addr] = big.NewInt(10_500)

	if err := service.Withdraw(owner, owner, recipient, big.NewInt(501)); err != ErrSolvencyFloor {
		t.Fatalf("expected ErrSolvencyFloor, got %v", err)
	}
	if err := service.Withdraw(owner, owner, recipient, big.NewInt(500)); err != nil {
		t.Fatalf("withdraw to exactly the floor: %v", err)
	}
	// The orchestrator is exempt: repay and liquidation need everything.
	if err := service.Withdraw(orchestratorAddr, owner, recipient, big.NewInt(10_000)); err != nil {
		t.Fatalf("orchestrator withdraw below floor: %v", err)
	}
}

func TestDrainMovesEverything(t *testing.T) {
	state := newMockWalletState()
	service := newTestService(state, 10_000)
	addr, err := service.Ensure(owner)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	state.accounts[addr] = big.NewInt(7_500)

	if _, err := service.Drain(owner, owner, recipient); err != ErrNotOwner {
		t.Fatalf("owner drain: expected ErrNotOwner, got %v", err)
	}
	drained, err := service.Drain(orchestratorAddr, owner, orchestratorAddr)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if drained.Cmp(big.NewInt(7_500)) != 0 {
		t.Fatalf("drained amount mismatch: %s", drained)
	}
	if got := state.balance(addr); got.Sign() != 0 {
		t.Fatalf("wallet not emptied: %s", got)
	}

	drained, err = service.Drain(orchestratorAddr, owner, orchestratorAddr)
	if err != nil {
		t.Fatalf("drain of empty wallet: %v", err)
	}
	if drained.Sign() != 0 {
		t.Fatalf("expected zero drain, got %s", drained)
	}
}

func TestExecuteEnforcesAllowlists(t *testing.T) {
	state := newMockWalletState()
	service := newTestService(state, 0)
	router := NewV4Router()
	router.AddPool(SettlementSymbol, "WETH", 0, big.NewInt(1), big.NewInt(2_000))
	service.SetRouter(router)

	addr, err := service.Ensure(owner)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	state.accounts[addr] = big.NewInt(10_000)

	if _, err := service.Execute(stranger, owner, "venue-a", SettlementSymbol, "WETH", big.NewInt(2_000)); err != ErrNotOwner {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := service.Execute(owner, owner, "venue-x", SettlementSymbol, "WETH", big.NewInt(2_000)); err != ErrVenueNotAllowed {
		t.Fatalf("expected ErrVenueNotAllowed, got %v", err)
	}
	if _, err := service.Execute(owner, owner, "venue-a", SettlementSymbol, "DOGE", big.NewInt(2_000)); err != ErrTokenNotAllowed {
		t.Fatalf("expected ErrTokenNotAllowed, got %v", err)
	}
	if _, err := service.Execute(owner, owner, "venue-a", SettlementSymbol, "WETH", big.NewInt(20_000)); err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestExecuteRoundTripThroughVenueToken(t *testing.T) {
	state := newMockWalletState()
	service := newTestService(state, 0)
	router := NewV4Router()
	// 2000 USDX per WETH, no fee, so the round trip conserves value.
	router.AddPool(SettlementSymbol, "WETH", 0, big.NewInt(1), big.NewInt(2_000))
	service.SetRouter(router)

	addr, err := service.Ensure(owner)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	state.accounts[addr] = big.NewInt(10_000)

	out, err := service.Execute(owner, owner, "venue-a", SettlementSymbol, "WETH", big.NewInt(4_000))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if out.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected 2 WETH, got %s", out)
	}
	if got := state.balance(addr); got.Cmp(big.NewInt(6_000)) != 0 {
		t.Fatalf("settlement balance mismatch: %s", got)
	}
	if got := state.records[owner].TokenAmount("WETH"); got.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("token balance mismatch: %s", got)
	}

	out, err = service.Execute(owner, owner, "venue-a", "WETH", SettlementSymbol, big.NewInt(2))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if out.Cmp(big.NewInt(4_000)) != 0 {
		t.Fatalf("expected 4000 back, got %s", out)
	}
	if got := state.balance(addr); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("settlement balance after round trip: %s", got)
	}
	if got := state.records[owner].TokenAmount("WETH"); got.Sign() != 0 {
		t.Fatalf("token balance after round trip: %s", got)
	}
}
