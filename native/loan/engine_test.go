package loan

import (
	"math/big"
	"testing"

	"marginvault/core/types"
	"marginvault/native/collateral"
)

type mockLoanState struct {
	positions map[[20]byte]*LoanPosition
	stats     *LoanStats
	records   map[[20]byte]*collateral.MarginRecord
	accounts  map[[20]byte]*big.Int
}

func newMockLoanState() *mockLoanState {
	return &mockLoanState{
		positions: make(map[[20]byte]*LoanPosition),
		records:   make(map[[20]byte]*collateral.MarginRecord),
		accounts:  make(map[[20]byte]*big.Int),
	}
}

func (m *mockLoanState) LoanGetPosition(borrower [20]byte) (*LoanPosition, error) {
	return m.positions[borrower].Clone(), nil
}

func (m *mockLoanState) LoanPutPosition(position *LoanPosition) error {
	m.positions[position.Borrower] = position.Clone()
	return nil
}

func (m *mockLoanState) LoanGetStats() (*LoanStats, error) { return m.stats.Clone(), nil }

func (m *mockLoanState) LoanPutStats(stats *LoanStats) error {
	m.stats = stats.Clone()
	return nil
}

func (m *mockLoanState) CollateralGetRecord(borrower [20]byte) (*collateral.MarginRecord, error) {
	return m.records[borrower].Clone(), nil
}

func (m *mockLoanState) CollateralPutRecord(record *collateral.MarginRecord) error {
	m.records[record.Borrower] = record.Clone()
	return nil
}

func (m *mockLoanState) GetAccount(addr [20]byte) (*types.Account, error) {
	balance, ok := m.accounts[addr]
	if !ok {
		balance = big.NewInt(0)
	}
	return &types.Account{Balance: new(big.Int).Set(balance)}, nil
}

func (m *mockLoanState) PutAccount(addr [20]byte, account *types.Account) error {
	m.accounts[addr] = new(big.Int).Set(account.Balance)
	return nil
}

func (m *mockLoanState) balance(addr [20]byte) *big.Int {
	balance, ok := m.accounts[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

func (m *mockLoanState) credit(addr [20]byte, amount int64) {
	m.accounts[addr] = new(big.Int).Add(m.balance(addr), big.NewInt(amount))
}

// fakeVault mimics the funding side of the yield vault against the shared
// account table.
type fakeVault struct {
	state         *mockLoanState
	vaultAddr     [20]byte
	liquidity     *big.Int
	lastAbsorbed  *big.Int
	lastPrincipal *big.Int
}

func (v *fakeVault) CanFund(amount *big.Int) (bool, error) {
	return amount != nil && amount.Sign() > 0 && v.liquidity.Cmp(amount) >= 0, nil
}

func (v *fakeVault) Allocate(caller, recipient [20]byte, amount *big.Int) error {
	v.liquidity = new(big.Int).Sub(v.liquidity, amount)
	v.state.accounts[recipient] = new(big.Int).Add(v.state.balance(recipient), amount)
	return nil
}

func (v *fakeVault) Absorb(caller, borrower [20]byte, amount, principal *big.Int) error {
	from := v.state.balance(caller)
	v.state.accounts[caller] = new(big.Int).Sub(from, amount)
	v.state.accounts[v.vaultAddr] = new(big.Int).Add(v.state.balance(v.vaultAddr), amount)
	v.lastAbsorbed = new(big.Int).Set(amount)
	v.lastPrincipal = new(big.Int).Set(principal)
	return nil
}

// fakeWallets provisions one deterministic wallet per owner, with balances on
// the shared account table.
type fakeWallets struct {
	state *mockLoanState
}

func walletAddrFor(owner [20]byte) [20]byte {
	addr := owner
	addr[19] = 0xFF
	return addr
}

func (w *fakeWallets) Ensure(owner [20]byte) ([20]byte, error) {
	return walletAddrFor(owner), nil
}

func (w *fakeWallets) Drain(caller, owner, recipient [20]byte) (*big.Int, error) {
	addr := walletAddrFor(owner)
	balance := w.state.balance(addr)
	w.state.accounts[addr] = big.NewInt(0)
	w.state.accounts[recipient] = new(big.Int).Add(w.state.balance(recipient), balance)
	return balance, nil
}

var (
	orchestratorAddr = [20]byte{0xA0}
	vaultAddr        = [20]byte{0xA1}
	collectorAddr    = [20]byte{0xA2}
	borrower         = [20]byte{0x02}
	liquidator       = [20]byte{0x03}
)

const testDuration = 2_592_000

type loanFixture struct {
	state  *mockLoanState
	engine *Engine
	vault  *fakeVault
	now    uint64
}

func newLoanFixture(t *testing.T) *loanFixture {
	t.Helper()
	state := newMockLoanState()
	fixture := &loanFixture{state: state, now: 1_700_000_000}

	ledger := collateral.NewLedger(2_000, testDuration)
	ledger.SetState(state)
	ledger.SetOrchestrator(orchestratorAddr)
	ledger.SetNowFunc(func() uint64 { return fixture.now })

	fixture.vault = &fakeVault{state: state, vaultAddr: vaultAddr, liquidity: big.NewInt(100_000)}

	engine := NewEngine(orchestratorAddr, 800, 8_000)
	engine.SetState(state)
	engine.SetCollaborators(fixture.vault, ledger, &fakeWallets{state: state})
	engine.SetFeeCollector(collectorAddr)
	engine.SetNowFunc(func() uint64 { return fixture.now })
	fixture.engine = engine
	return fixture
}

func (f *loanFixture) openLoan(t *testing.T, amount int64) [20]byte {
	t.Helper()
	f.state.credit(borrower, amount/5)
	if err := f.engine.CreateLoan(borrower, big.NewInt(amount)); err != nil {
		t.Fatalf("create loan: %v", err)
	}
	return walletAddrFor(borrower)
}

func TestCreateLoanSplitsFunding(t *testing.T) {
	f := newLoanFixture(t)
	wallet := f.openLoan(t, 10_000)

	position, err := f.engine.GetLoanInfo(borrower)
	if err != nil || position == nil {
		t.Fatalf("get position: %v", err)
	}
	if position.MarginAmount.Cmp(big.NewInt(2_000)) != 0 || position.PoolFunding.Cmp(big.NewInt(8_000)) != 0 {
		t.Fatalf("funding split mismatch: margin=%s pool=%s", position.MarginAmount, position.PoolFunding)
	}
	sum := new(big.Int).Add(position.MarginAmount, position.PoolFunding)
	if sum.Cmp(position.LoanAmount) != 0 {
		t.Fatalf("margin + poolFunding != loanAmount: %s", sum)
	}
	if got := f.state.balance(wallet); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("wallet should hold the full notional, got %s", got)
	}
	if got := f.state.balance(borrower); got.Sign() != 0 {
		t.Fatalf("margin not pulled from borrower: %s", got)
	}

	stats, err := f.engine.Stats()
	if err != nil || stats.LoansCreated != 1 {
		t.Fatalf("stats mismatch: %+v err=%v", stats, err)
	}
	active, err := f.engine.HasActiveLoan(borrower)
	if err != nil || !active {
		t.Fatalf("expected active loan, got %v err=%v", active, err)
	}
}

func TestCreateLoanPreconditions(t *testing.T) {
	f := newLoanFixture(t)

	if err := f.engine.CreateLoan(borrower, big.NewInt(0)); err != ErrInvalidAmount {
		t.Fatalf("zero amount: expected ErrInvalidAmount, got %v", err)
	}
	if err := f.engine.CreateLoan([20]byte{}, big.NewInt(10_000)); err != ErrZeroAddress {
		t.Fatalf("zero borrower: expected ErrZeroAddress, got %v", err)
	}
	// A notional below 5 truncates to zero margin.
	if err := f.engine.CreateLoan(borrower, big.NewInt(4)); err != ErrInvalidAmount {
		t.Fatalf("tiny notional: expected ErrInvalidAmount, got %v", err)
	}
	if err := f.engine.CreateLoan(borrower, big.NewInt(10_000)); err != ErrInsufficientBalance {
		t.Fatalf("no margin funds: expected ErrInsufficientBalance, got %v", err)
	}

	f.state.credit(borrower, 2_000)
	f.vault.liquidity = big.NewInt(7_999)
	if err := f.engine.CreateLoan(borrower, big.NewInt(10_000)); err != ErrInsufficientLiquidity {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	f.vault.liquidity = big.NewInt(8_000)
	if err := f.engine.CreateLoan(borrower, big.NewInt(10_000)); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.state.credit(borrower, 2_000)
	if err := f.engine.CreateLoan(borrower, big.NewInt(10_000)); err != ErrActivePosition {
		t.Fatalf("expected ErrActivePosition, got %v", err)
	}
}

func TestRepaySameDayReturnsMargin(t *testing.T) {
	f := newLoanFixture(t)
	f.openLoan(t, 10_000)

	if err := f.engine.RepayLoan(borrower); err != nil {
		t.Fatalf("repay: %v", err)
	}
	// Zero elapsed days means zero interest: pool recovers its 8000, the
	// borrower gets the 2000 margin back.
	if f.vault.lastAbsorbed.Cmp(big.NewInt(8_000)) != 0 {
		t.Fatalf("pool recovery mismatch: %s", f.vault.lastAbsorbed)
	}
	if f.vault.lastPrincipal.Cmp(big.NewInt(8_000)) != 0 {
		t.Fatalf("retired principal mismatch: %s", f.vault.lastPrincipal)
	}
	if got := f.state.balance(borrower); got.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("borrower refund mismatch: %s", got)
	}

	stats, err := f.engine.Stats()
	if err != nil || stats.LoansRepaid != 1 || stats.ProtocolFees.Sign() != 0 {
		t.Fatalf("stats mismatch: %+v err=%v", stats, err)
	}
	active, err := f.engine.HasActiveLoan(borrower)
	if err != nil || active {
		t.Fatalf("position should be closed, active=%v err=%v", active, err)
	}
	record := f.state.records[borrower]
	if record.Active || record.Outcome != collateral.OutcomeRepaid {
		t.Fatalf("ledger record not cleared as repaid: %+v", record)
	}
}

func TestRepayWithProfitPaysBorrower(t *testing.T) {
	f := newLoanFixture(t)
	wallet := f.openLoan(t, 10_000)
	f.state.credit(wallet, 5_000)

	if err := f.engine.RepayLoan(borrower); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if f.vault.lastAbsorbed.Cmp(big.NewInt(8_000)) != 0 {
		t.Fatalf("pool recovery mismatch: %s", f.vault.lastAbsorbed)
	}
	if got := f.state.balance(borrower); got.Cmp(big.NewInt(7_000)) != 0 {
		t.Fatalf("expected margin plus profit 7000, got %s", got)
	}
}

func TestRepayChargesDailyInterest(t *testing.T) {
	f := newLoanFixture(t)
	wallet := f.openLoan(t, 10_000)
	f.state.credit(wallet, 1_000)
	f.now += 30 * secondsPerDay

	if err := f.engine.RepayLoan(borrower); err != nil {
		t.Fatalf("repay: %v", err)
	}
	// interest = 10000 * 800 * 30 / (10000 * 365) = 65; pool keeps 80%
	// of it (52), the 13 residue accrues as protocol fees.
	if f.vault.lastAbsorbed.Cmp(big.NewInt(8_052)) != 0 {
		t.Fatalf("pool recovery mismatch: %s", f.vault.lastAbsorbed)
	}
	if got := f.state.balance(borrower); got.Cmp(big.NewInt(2_935)) != 0 {
		t.Fatalf("borrower payout mismatch: %s", got)
	}
	stats, err := f.engine.Stats()
	if err != nil || stats.ProtocolFees.Cmp(big.NewInt(13)) != 0 {
		t.Fatalf("protocol fees mismatch: %+v err=%v", stats, err)
	}
	// The fee stays in the orchestrator treasury.
	if got := f.state.balance(orchestratorAddr); got.Cmp(big.NewInt(13)) != 0 {
		t.Fatalf("treasury balance mismatch: %s", got)
	}
}

func TestRepayShortfallConsumesMargin(t *testing.T) {
	f := newLoanFixture(t)
	wallet := f.openLoan(t, 10_000)
	// Trading losses: wallet shrinks from 10000 to 9000.
	f.state.accounts[wallet] = big.NewInt(9_000)

	if err := f.engine.RepayLoan(borrower); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if f.vault.lastAbsorbed.Cmp(big.NewInt(7_200)) != 0 {
		t.Fatalf("pool recovery mismatch: %s", f.vault.lastAbsorbed)
	}
	// Margin absorbs the 1000 loss before the borrower sees anything.
	if got := f.state.balance(borrower); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("borrower payout mismatch: %s", got)
	}
	stats, err := f.engine.Stats()
	if err != nil || stats.ProtocolFees.Cmp(big.NewInt(800)) != 0 {
		t.Fatalf("unassigned residue should accrue as fees: %+v err=%v", stats, err)
	}
}

func TestRepayDeepShortfallNeverChargesBorrower(t *testing.T) {
	f := newLoanFixture(t)
	wallet := f.openLoan(t, 10_000)
	f.state.accounts[wallet] = big.NewInt(1_000)

	if err := f.engine.RepayLoan(borrower); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if f.vault.lastAbsorbed.Cmp(big.NewInt(800)) != 0 {
		t.Fatalf("pool recovery mismatch: %s", f.vault.lastAbsorbed)
	}
	if got := f.state.balance(borrower); got.Sign() != 0 {
		t.Fatalf("borrower must not go below zero, got %s", got)
	}
}

func TestLiquidationBoundaryAndWaterfall(t *testing.T) {
	f := newLoanFixture(t)
	wallet := f.openLoan(t, 10_000)
	start := f.now
	f.state.accounts[wallet] = big.NewInt(5_000)

	f.now = start + testDuration - 1
	if err := f.engine.LiquidateLoan(liquidator, borrower); err != ErrNotOverdue {
		t.Fatalf("expected ErrNotOverdue, got %v", err)
	}
	liquidatable, err := f.engine.IsLiquidatable(borrower)
	if err != nil || liquidatable {
		t.Fatalf("should not be liquidatable yet, got %v err=%v", liquidatable, err)
	}

	f.now = start + testDuration
	liquidatable, err = f.engine.IsLiquidatable(borrower)
	if err != nil || !liquidatable {
		t.Fatalf("should be liquidatable, got %v err=%v", liquidatable, err)
	}
	if err := f.engine.LiquidateLoan([20]byte{}, borrower); err != ErrZeroAddress {
		t.Fatalf("zero liquidator: expected ErrZeroAddress, got %v", err)
	}
	if err := f.engine.LiquidateLoan(liquidator, borrower); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	// Pool claim is capped at its 8000 exposure: all 5000 recovered goes
	// to the pool, nothing is left for the liquidator.
	if f.vault.lastAbsorbed.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("pool recovery mismatch: %s", f.vault.lastAbsorbed)
	}
	if f.vault.lastPrincipal.Cmp(big.NewInt(8_000)) != 0 {
		t.Fatalf("retired principal mismatch: %s", f.vault.lastPrincipal)
	}
	if got := f.state.balance(liquidator); got.Sign() != 0 {
		t.Fatalf("liquidator reward should floor at zero, got %s", got)
	}

	stats, err := f.engine.Stats()
	if err != nil || stats.LoansLiquidated != 1 || stats.LoansRepaid != 0 {
		t.Fatalf("stats mismatch: %+v err=%v", stats, err)
	}
	record := f.state.records[borrower]
	if record.Active || record.Outcome != collateral.OutcomeLiquidated {
		t.Fatalf("ledger record not cleared as liquidated: %+v", record)
	}
}

func TestLiquidationRewardsRemainder(t *testing.T) {
	f := newLoanFixture(t)
	wallet := f.openLoan(t, 10_000)
	f.state.accounts[wallet] = big.NewInt(9_000)
	f.now += testDuration

	if err := f.engine.LiquidateLoan(liquidator, borrower); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if f.vault.lastAbsorbed.Cmp(big.NewInt(8_000)) != 0 {
		t.Fatalf("pool recovery mismatch: %s", f.vault.lastAbsorbed)
	}
	if got := f.state.balance(liquidator); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("liquidator reward mismatch: %s", got)
	}

	// The closed position frees the borrower for a fresh loan.
	f.state.credit(borrower, 2_000)
	if err := f.engine.CreateLoan(borrower, big.NewInt(10_000)); err != nil {
		t.Fatalf("create after liquidation: %v", err)
	}
}

func TestMinimumRequiredTracksInterest(t *testing.T) {
	f := newLoanFixture(t)

	floor, err := f.engine.MinimumRequired(borrower)
	if err != nil || floor.Sign() != 0 {
		t.Fatalf("no loan should mean zero floor, got %s err=%v", floor, err)
	}

	f.openLoan(t, 10_000)
	floor, err = f.engine.MinimumRequired(borrower)
	if err != nil || floor.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("same-day floor mismatch: %s err=%v", floor, err)
	}

	f.now += 30 * secondsPerDay
	floor, err = f.engine.MinimumRequired(borrower)
	if err != nil || floor.Cmp(big.NewInt(10_065)) != 0 {
		t.Fatalf("30-day floor mismatch: %s err=%v", floor, err)
	}
}

func TestWithdrawProtocolFees(t *testing.T) {
	f := newLoanFixture(t)
	wallet := f.openLoan(t, 10_000)
	f.state.accounts[wallet] = big.NewInt(9_000)
	if err := f.engine.RepayLoan(borrower); err != nil {
		t.Fatalf("repay: %v", err)
	}

	recipient := [20]byte{0x07}
	if err := f.engine.WithdrawProtocolFees(borrower, recipient, big.NewInt(100)); err != ErrNotCollector {
		t.Fatalf("expected ErrNotCollector, got %v", err)
	}
	if err := f.engine.WithdrawProtocolFees(collectorAddr, recipient, big.NewInt(900)); err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := f.engine.WithdrawProtocolFees(collectorAddr, recipient, big.NewInt(800)); err != nil {
		t.Fatalf("withdraw fees: %v", err)
	}
	if got := f.state.balance(recipient); got.Cmp(big.NewInt(800)) != 0 {
		t.Fatalf("recipient balance mismatch: %s", got)
	}
	stats, err := f.engine.Stats()
	if err != nil || stats.ProtocolFees.Sign() != 0 {
		t.Fatalf("fees not drained: %+v err=%v", stats, err)
	}
}

func TestRepayRequiresActivePosition(t *testing.T) {
	f := newLoanFixture(t)
	if err := f.engine.RepayLoan(borrower); err != ErrNoActivePosition {
		t.Fatalf("expected ErrNoActivePosition, got %v", err)
	}
	f.openLoan(t, 10_000)
	if err := f.engine.RepayLoan(borrower); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if err := f.engine.RepayLoan(borrower); err != ErrNoActivePosition {
		t.Fatalf("closed position: expected ErrNoActivePosition, got %v", err)
	}
}
