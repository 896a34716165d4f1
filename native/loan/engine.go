package loan

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"marginvault/core/events"
	"marginvault/core/types"
	"marginvault/native/collateral"
	nativecommon "marginvault/native/common"
)

var (
	errNilState = errors.New("loan engine: state not configured")

	// ErrInvalidAmount marks zero or negative loan or fee amounts, or a
	// notional too small to carry any margin.
	ErrInvalidAmount = errors.New("loan engine: amount must be positive")
	// ErrZeroAddress marks a missing borrower, liquidator or recipient.
	ErrZeroAddress = errors.New("loan engine: zero address")
	// ErrActivePosition marks a borrower trying to open a second position.
	ErrActivePosition = errors.New("loan engine: borrower already has an active position")
	// ErrNoActivePosition marks repay or liquidate against a borrower
	// without an open position.
	ErrNoActivePosition = errors.New("loan engine: no active position for borrower")
	// ErrInsufficientBalance marks a borrower short of the required margin.
	ErrInsufficientBalance = errors.New("loan engine: insufficient balance for margin")
	// ErrInsufficientLiquidity marks the pool declining to fund.
	ErrInsufficientLiquidity = errors.New("loan engine: pool cannot fund the loan")
	// ErrNotOverdue marks a liquidation attempt before the due date.
	ErrNotOverdue = errors.New("loan engine: position is not overdue")
	// ErrNotCollector marks a fee withdrawal from any address other than
	// the configured fee collector.
	ErrNotCollector = errors.New("loan engine: caller is not the fee collector")
)

const moduleName = "loan"

type engineState interface {
	LoanGetPosition(borrower [20]byte) (*LoanPosition, error)
	LoanPutPosition(position *LoanPosition) error
	LoanGetStats() (*LoanStats, error)
	LoanPutStats(stats *LoanStats) error
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// VaultFunding is the slice of the yield vault the orchestrator drives.
type VaultFunding interface {
	CanFund(amount *big.Int) (bool, error)
	Allocate(caller, recipient [20]byte, amount *big.Int) error
	Absorb(caller, borrower [20]byte, amount, principal *big.Int) error
}

// MarginLedger is the slice of the collateral ledger the orchestrator drives.
type MarginLedger interface {
	RequiredMargin(loan *big.Int) *big.Int
	CreateRecord(caller, borrower [20]byte, margin, loan *big.Int) error
	ClearRecord(caller, borrower [20]byte, outcome string) error
	IsOverdue(borrower [20]byte) (bool, error)
}

// WalletBank provisions trading wallets and lets the orchestrator drain them
// at settlement time.
type WalletBank interface {
	Ensure(owner [20]byte) ([20]byte, error)
	Drain(caller, owner, recipient [20]byte) (*big.Int, error)
}

// Engine is the loan orchestrator: the single writer to the vault's aggregate
// counters and the collateral ledger, and the arbiter of the fund recovery
// waterfall between pool, borrower and liquidator.
type Engine struct {
	state         engineState
	moduleAddress [20]byte
	feeCollector  [20]byte
	rateBps       uint64
	shareBps      uint64
	vault         VaultFunding
	ledger        MarginLedger
	wallets       WalletBank
	nowFn         func() uint64
	emitter       events.Emitter
	pauses        nativecommon.PauseView
	latch         nativecommon.Latch
}

// NewEngine constructs an orchestrator settling through the given treasury
// address at the deploy-time borrow rate and pool interest share, both in
// basis points.
func NewEngine(moduleAddr [20]byte, rateBps, shareBps uint64) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		rateBps:       rateBps,
		shareBps:      shareBps,
		nowFn:         func() uint64 { return uint64(time.Now().Unix()) },
		emitter:       events.NoopEmitter{},
	}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetCollaborators(vault VaultFunding, ledger MarginLedger, wallets WalletBank) {
	if e == nil {
		return
	}
	e.vault = vault
	e.ledger = ledger
	e.wallets = wallets
}

// SetFeeCollector configures the only address allowed to withdraw accrued
// protocol fees.
func (e *Engine) SetFeeCollector(addr [20]byte) {
	if e == nil {
		return
	}
	e.feeCollector = addr
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the wall clock, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() uint64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// ModuleAddress returns the orchestrator treasury address.
func (e *Engine) ModuleAddress() [20]byte { return e.moduleAddress }

// CreateLoan opens a leveraged position: the borrower funds the margin
// fraction, the pool the remainder, and the combined notional lands in the
// borrower's trading wallet.
func (e *Engine) CreateLoan(borrower [20]byte, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.latch.Acquire(); err != nil {
		return err
	}
	defer e.latch.Release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if borrower == ([20]byte{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	existing, err := e.state.LoanGetPosition(borrower)
	if err != nil {
		return err
	}
	if existing != nil && existing.Active {
		return ErrActivePosition
	}

	margin := e.ledger.RequiredMargin(amount)
	if margin.Sign() <= 0 {
		return ErrInvalidAmount
	}
	poolFunding := new(big.Int).Sub(amount, margin)

	ok, err := e.vault.CanFund(poolFunding)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientLiquidity
	}

	borrowerAcc, err := e.state.GetAccount(borrower)
	if err != nil {
		return err
	}
	if borrowerAcc.Balance.Cmp(margin) < 0 {
		return ErrInsufficientBalance
	}

	walletAddr, err := e.wallets.Ensure(borrower)
	if err != nil {
		return err
	}

	if err := e.ledger.CreateRecord(e.moduleAddress, borrower, margin, amount); err != nil {
		return err
	}
	if err := e.transfer(borrower, walletAddr, margin); err != nil {
		return err
	}
	if err := e.vault.Allocate(e.moduleAddress, walletAddr, poolFunding); err != nil {
		return err
	}

	now := e.nowFn()
	position := &LoanPosition{
		Borrower:     borrower,
		Wallet:       walletAddr,
		LoanAmount:   new(big.Int).Set(amount),
		MarginAmount: margin,
		PoolFunding:  poolFunding,
		StartTime:    now,
		Active:       true,
	}
	if err := e.state.LoanPutPosition(position); err != nil {
		return err
	}
	if err := e.bumpStats(func(s *LoanStats) { s.LoansCreated++ }); err != nil {
		return err
	}

	e.emitter.Emit(events.LoanCreated{
		Borrower:    borrower,
		Wallet:      walletAddr,
		LoanAmount:  new(big.Int).Set(amount),
		Margin:      new(big.Int).Set(margin),
		PoolFunding: new(big.Int).Set(poolFunding),
		StartTime:   now,
	})
	return nil
}

// RepayLoan settles the borrower's position voluntarily. The whole wallet
// balance is pulled in, interest is computed at daily granularity, and the
// proceeds are split between pool, borrower and protocol fees.
func (e *Engine) RepayLoan(borrower [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.latch.Acquire(); err != nil {
		return err
	}
	defer e.latch.Release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}

	position, err := e.activePosition(borrower)
	if err != nil {
		return err
	}

	returned, err := e.wallets.Drain(e.moduleAddress, borrower, e.moduleAddress)
	if err != nil {
		return err
	}

	elapsed := e.elapsedSince(position.StartTime)
	interest := interestDue(position.LoanAmount, e.rateBps, elapsed)
	totalDue := new(big.Int).Add(position.LoanAmount, interest)

	var poolShare, borrowerShare, fee *big.Int
	if returned.Cmp(totalDue) >= 0 {
		poolInterest := splitBps(interest, e.shareBps)
		poolShare = new(big.Int).Add(position.PoolFunding, poolInterest)
		borrowerShare = new(big.Int).Sub(returned, totalDue)
		borrowerShare.Add(borrowerShare, position.MarginAmount)
		fee = new(big.Int).Sub(interest, poolInterest)
	} else {
		// Margin absorbs the loss before any borrower payout, and the
		// borrower is never charged below zero.
		poolShare = splitBps(returned, e.shareBps)
		deficit := new(big.Int).Sub(totalDue, returned)
		borrowerShare = new(big.Int).Sub(position.MarginAmount, deficit)
		if borrowerShare.Sign() < 0 {
			borrowerShare = big.NewInt(0)
		}
		// Whatever the waterfall leaves unassigned stays with the
		// protocol; the split never overruns the recovered funds.
		fee = new(big.Int).Sub(returned, poolShare)
		fee.Sub(fee, borrowerShare)
		if fee.Sign() < 0 {
			return fmt.Errorf("loan engine: waterfall overrun for %x", borrower)
		}
	}

	if err := e.vault.Absorb(e.moduleAddress, borrower, poolShare, position.PoolFunding); err != nil {
		return err
	}
	if borrowerShare.Sign() > 0 {
		if err := e.transfer(e.moduleAddress, borrower, borrowerShare); err != nil {
			return err
		}
	}
	if err := e.ledger.ClearRecord(e.moduleAddress, borrower, collateral.OutcomeRepaid); err != nil {
		return err
	}

	position.Active = false
	if err := e.state.LoanPutPosition(position); err != nil {
		return err
	}
	if err := e.bumpStats(func(s *LoanStats) {
		s.LoansRepaid++
		s.ProtocolFees = new(big.Int).Add(s.ProtocolFees, fee)
	}); err != nil {
		return err
	}

	e.emitter.Emit(events.LoanRepaid{
		Borrower:      borrower,
		Returned:      returned,
		Interest:      interest,
		PoolShare:     poolShare,
		BorrowerShare: borrowerShare,
		ProtocolFee:   fee,
	})
	return nil
}

// LiquidateLoan force-closes an overdue position. The pool has first claim on
// the recovered funds capped at its exposure; the liquidator keeps whatever
// remains.
func (e *Engine) LiquidateLoan(liquidator, borrower [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.latch.Acquire(); err != nil {
		return err
	}
	defer e.latch.Release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if liquidator == ([20]byte{}) {
		return ErrZeroAddress
	}

	position, err := e.activePosition(borrower)
	if err != nil {
		return err
	}
	overdue, err := e.ledger.IsOverdue(borrower)
	if err != nil {
		return err
	}
	if !overdue {
		return ErrNotOverdue
	}

	recovered, err := e.wallets.Drain(e.moduleAddress, borrower, e.moduleAddress)
	if err != nil {
		return err
	}

	poolShare := new(big.Int).Set(recovered)
	if poolShare.Cmp(position.PoolFunding) > 0 {
		poolShare.Set(position.PoolFunding)
	}
	reward := new(big.Int).Sub(recovered, poolShare)

	if err := e.vault.Absorb(e.moduleAddress, borrower, poolShare, position.PoolFunding); err != nil {
		return err
	}
	if reward.Sign() > 0 {
		if err := e.transfer(e.moduleAddress, liquidator, reward); err != nil {
			return err
		}
	}
	if err := e.ledger.ClearRecord(e.moduleAddress, borrower, collateral.OutcomeLiquidated); err != nil {
		return err
	}

	position.Active = false
	if err := e.state.LoanPutPosition(position); err != nil {
		return err
	}
	if err := e.bumpStats(func(s *LoanStats) { s.LoansLiquidated++ }); err != nil {
		return err
	}

	e.emitter.Emit(events.LoanLiquidated{
		Borrower:   borrower,
		Liquidator: liquidator,
		Recovered:  recovered,
		PoolShare:  poolShare,
		Reward:     reward,
	})
	return nil
}

// WithdrawProtocolFees pays accrued fee residue out of the orchestrator
// treasury. Only the configured fee collector may call it.
func (e *Engine) WithdrawProtocolFees(caller, recipient [20]byte, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.latch.Acquire(); err != nil {
		return err
	}
	defer e.latch.Release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != e.feeCollector || caller == ([20]byte{}) {
		return ErrNotCollector
	}
	if recipient == ([20]byte{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	stats, err := e.loadStats()
	if err != nil {
		return err
	}
	if stats.ProtocolFees.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := e.transfer(e.moduleAddress, recipient, amount); err != nil {
		return err
	}
	stats.ProtocolFees = new(big.Int).Sub(stats.ProtocolFees, amount)
	if err := e.state.LoanPutStats(stats); err != nil {
		return err
	}

	e.emitter.Emit(events.FeesWithdrawn{Recipient: recipient, Amount: new(big.Int).Set(amount)})
	return nil
}

// GetLoanInfo returns the borrower's position, active or closed, or nil when
// none was ever opened.
func (e *Engine) GetLoanInfo(borrower [20]byte) (*LoanPosition, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	position, err := e.state.LoanGetPosition(borrower)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, nil
	}
	position.EnsureDefaults()
	return position, nil
}

// HasActiveLoan reports whether the borrower holds an open position.
func (e *Engine) HasActiveLoan(borrower [20]byte) (bool, error) {
	position, err := e.GetLoanInfo(borrower)
	if err != nil {
		return false, err
	}
	return position != nil && position.Active, nil
}

// IsLiquidatable reports whether the borrower's position exists, is active
// and has passed its due date. Missing positions are simply not liquidatable.
func (e *Engine) IsLiquidatable(borrower [20]byte) (bool, error) {
	active, err := e.HasActiveLoan(borrower)
	if err != nil || !active {
		return false, err
	}
	return e.ledger.IsOverdue(borrower)
}

// MinimumRequired returns the solvency floor for the borrower's wallet: the
// full notional plus interest accrued so far while a position is active, zero
// otherwise. The trading wallet consults this before releasing owner
// withdrawals.
func (e *Engine) MinimumRequired(borrower [20]byte) (*big.Int, error) {
	position, err := e.GetLoanInfo(borrower)
	if err != nil {
		return nil, err
	}
	if position == nil || !position.Active {
		return big.NewInt(0), nil
	}
	interest := interestDue(position.LoanAmount, e.rateBps, e.elapsedSince(position.StartTime))
	return new(big.Int).Add(position.LoanAmount, interest), nil
}

// Stats returns a snapshot of the lifetime counters and fee balance.
func (e *Engine) Stats() (*LoanStats, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadStats()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.vault == nil || e.ledger == nil || e.wallets == nil {
		return errors.New("loan engine: collaborators not configured")
	}
	return nil
}

func (e *Engine) activePosition(borrower [20]byte) (*LoanPosition, error) {
	position, err := e.state.LoanGetPosition(borrower)
	if err != nil {
		return nil, err
	}
	if position == nil || !position.Active {
		return nil, ErrNoActivePosition
	}
	position.EnsureDefaults()
	return position, nil
}

func (e *Engine) elapsedSince(start uint64) uint64 {
	now := e.nowFn()
	if now <= start {
		return 0
	}
	return now - start
}

func (e *Engine) loadStats() (*LoanStats, error) {
	stats, err := e.state.LoanGetStats()
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = &LoanStats{}
	}
	stats.EnsureDefaults()
	return stats, nil
}

func (e *Engine) bumpStats(mutate func(*LoanStats)) error {
	stats, err := e.loadStats()
	if err != nil {
		return err
	}
	mutate(stats)
	return e.state.LoanPutStats(stats)
}

func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	fromAcc, err := e.state.GetAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toAcc, err := e.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}
