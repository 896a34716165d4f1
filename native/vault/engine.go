package vault

import (
	"errors"
	"math/big"
	"time"

	"marginvault/core/events"
	"marginvault/core/types"
	nativecommon "marginvault/native/common"
)

var (
	errNilState = errors.New("vault engine: state not configured")

	// ErrInvalidAmount marks zero or negative amounts.
	ErrInvalidAmount = errors.New("vault engine: amount must be positive")
	// ErrZeroAddress marks a missing receiver or owner.
	ErrZeroAddress = errors.New("vault engine: zero address")
	// ErrInsufficientBalance marks a caller without the funds or shares the
	// operation requires.
	ErrInsufficientBalance = errors.New("vault engine: insufficient balance")
	// ErrInsufficientLiquidity marks requests exceeding on-hand pool assets.
	ErrInsufficientLiquidity = errors.New("vault engine: insufficient liquidity")
	// ErrNotOrchestrator marks allocate/absorb calls from any address other
	// than the configured loan orchestrator.
	ErrNotOrchestrator = errors.New("vault engine: caller is not the orchestrator")
	// ErrAllowanceExceeded marks a spender exceeding the owner's approval.
	ErrAllowanceExceeded = errors.New("vault engine: allowance exceeded")
)

const moduleName = "vault"

type engineState interface {
	VaultGetPool() (*Pool, error)
	VaultPutPool(pool *Pool) error
	VaultGetShares(addr [20]byte) (*ShareAccount, error)
	VaultPutShares(account *ShareAccount) error
	VaultGetAllowance(owner, spender [20]byte) (*big.Int, error)
	VaultPutAllowance(owner, spender [20]byte, amount *big.Int) error
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// Engine implements the share-based yield vault: deposits mint proportional
// shares, the orchestrator moves liquidity in and out for loans, and a fixed
// APY accrues continuously against the yield base balance.
//
// Every state-mutating entry point materializes pending yield first so share
// price is always computed against a consistent snapshot; a depositor cannot
// time a deposit or withdrawal to capture unearned yield.
type Engine struct {
	state         engineState
	moduleAddress [20]byte
	orchestrator  [20]byte
	apyBps        uint64
	nowFn         func() uint64
	emitter       events.Emitter
	pauses        nativecommon.PauseView
}

// NewEngine constructs a vault engine anchored to the pool treasury address
// with the deploy-time APY in basis points.
func NewEngine(moduleAddr [20]byte, apyBps uint64) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		apyBps:        apyBps,
		nowFn:         func() uint64 { return uint64(time.Now().Unix()) },
		emitter:       events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOrchestrator configures the only address allowed to call Allocate and
// Absorb. Injected configuration, not a hardcoded singleton.
func (e *Engine) SetOrchestrator(addr [20]byte) {
	if e == nil {
		return
	}
	e.orchestrator = addr
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
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

// SetNowFunc overrides the wall clock used for accrual. Primarily leveraged in
// tests to provide deterministic timestamps.
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

// ModuleAddress returns the pool treasury address.
func (e *Engine) ModuleAddress() [20]byte { return e.moduleAddress }

// Deposit pulls assets from the caller into the pool treasury and mints
// proportional shares to the receiver. The minted share amount is returned.
func (e *Engine) Deposit(caller, receiver [20]byte, assets *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if assets == nil || assets.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if receiver == ([20]byte{}) {
		return nil, ErrZeroAddress
	}

	pool, err := e.accruedPool()
	if err != nil {
		return nil, err
	}

	callerAcc, err := e.state.GetAccount(caller)
	if err != nil {
		return nil, err
	}
	if callerAcc.Balance.Cmp(assets) < 0 {
		return nil, ErrInsufficientBalance
	}
	moduleAcc, err := e.state.GetAccount(e.moduleAddress)
	if err != nil {
		return nil, err
	}

	// Share price against the post-accrual snapshot; 1:1 at bootstrap.
	shares := new(big.Int)
	assetsTotal := e.totalAssetsAt(pool, pool.LastAccrualTime)
	if pool.TotalShares.Sign() == 0 || assetsTotal.Sign() == 0 {
		shares.Set(assets)
	} else {
		shares = mulDiv(assets, pool.TotalShares, assetsTotal)
		if shares.Sign() == 0 {
			return nil, ErrInvalidAmount
		}
	}

	callerAcc.Balance = new(big.Int).Sub(callerAcc.Balance, assets)
	moduleAcc.Balance = new(big.Int).Add(moduleAcc.Balance, assets)
	if err := e.state.PutAccount(caller, callerAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return nil, err
	}

	receiverShares, err := e.ensureShares(receiver)
	if err != nil {
		return nil, err
	}
	receiverShares.Shares = new(big.Int).Add(receiverShares.Shares, shares)
	if err := e.state.VaultPutShares(receiverShares); err != nil {
		return nil, err
	}

	pool.AssetsOnHand = new(big.Int).Add(pool.AssetsOnHand, assets)
	// New principal starts earning from the current instant.
	pool.YieldBaseBalance = new(big.Int).Add(pool.YieldBaseBalance, assets)
	pool.TotalShares = new(big.Int).Add(pool.TotalShares, shares)
	if err := e.state.VaultPutPool(pool); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.VaultDeposited{Depositor: caller, Receiver: receiver, Assets: new(big.Int).Set(assets), Shares: new(big.Int).Set(shares)})
	return shares, nil
}

// Withdraw releases an exact asset amount to the receiver, burning the share
// amount the withdrawal preview prices (rounded up). The burned share amount
// is returned.
func (e *Engine) Withdraw(caller, receiver, owner [20]byte, assets *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if assets == nil || assets.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if receiver == ([20]byte{}) {
		return nil, ErrZeroAddress
	}

	pool, err := e.accruedPool()
	if err != nil {
		return nil, err
	}
	if pool.AssetsOnHand.Cmp(assets) < 0 {
		// Withdrawals never dip into allocated loan funds.
		return nil, ErrInsufficientLiquidity
	}
	if pool.TotalShares.Sign() == 0 {
		return nil, ErrInsufficientBalance
	}

	shares := mulDivCeil(assets, pool.TotalShares, e.totalAssetsAt(pool, pool.LastAccrualTime))
	if shares.Sign() == 0 {
		return nil, ErrInvalidAmount
	}
	if err := e.burnFrom(caller, owner, shares); err != nil {
		return nil, err
	}
	if err := e.payOut(pool, receiver, assets); err != nil {
		return nil, err
	}
	reduceYieldBase(pool, assets)
	if err := e.state.VaultPutPool(pool); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.VaultWithdrawn{Owner: owner, Receiver: receiver, Assets: new(big.Int).Set(assets), Shares: shares})
	return shares, nil
}

// Redeem burns an exact share amount and releases the proportional assets to
// the receiver. The redeemed asset amount is returned.
func (e *Engine) Redeem(caller, receiver, owner [20]byte, shares *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if receiver == ([20]byte{}) {
		return nil, ErrZeroAddress
	}

	pool, err := e.accruedPool()
	if err != nil {
		return nil, err
	}
	if pool.TotalShares.Sign() == 0 {
		return nil, ErrInsufficientBalance
	}
	assets := mulDiv(shares, e.totalAssetsAt(pool, pool.LastAccrualTime), pool.TotalShares)
	if assets.Sign() == 0 {
		return nil, ErrInvalidAmount
	}
	if pool.AssetsOnHand.Cmp(assets) < 0 {
		return nil, ErrInsufficientLiquidity
	}

	if err := e.burnFrom(caller, owner, shares); err != nil {
		return nil, err
	}
	if err := e.payOut(pool, receiver, assets); err != nil {
		return nil, err
	}
	reduceYieldBase(pool, assets)
	if err := e.state.VaultPutPool(pool); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.VaultWithdrawn{Owner: owner, Receiver: receiver, Assets: assets, Shares: new(big.Int).Set(shares), Redeem: true})
	return assets, nil
}

// Approve grants spender the right to withdraw or redeem up to amount of the
// owner's shares. The allowance overwrites any previous value.
func (e *Engine) Approve(owner, spender [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if spender == ([20]byte{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := e.state.VaultPutAllowance(owner, spender, new(big.Int).Set(amount)); err != nil {
		return err
	}
	e.emitter.Emit(events.VaultApproved{Owner: owner, Spender: spender, Amount: new(big.Int).Set(amount)})
	return nil
}

// Allocate routes pool liquidity into a borrower's trading wallet. Only the
// configured orchestrator may call it.
func (e *Engine) Allocate(caller, recipient [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != e.orchestrator || caller == ([20]byte{}) {
		return ErrNotOrchestrator
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if recipient == ([20]byte{}) {
		return ErrZeroAddress
	}

	pool, err := e.accruedPool()
	if err != nil {
		return err
	}
	if pool.AssetsOnHand.Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}

	if err := e.payOut(pool, recipient, amount); err != nil {
		return err
	}
	pool.TotalAllocated = new(big.Int).Add(pool.TotalAllocated, amount)
	// Allocated principal stays in the yield base: the pool keeps accruing
	// on funds out on loan.
	if err := e.state.VaultPutPool(pool); err != nil {
		return err
	}

	e.emitter.Emit(events.VaultAllocated{Recipient: recipient, Amount: new(big.Int).Set(amount)})
	return nil
}

// Absorb takes repayment or liquidation proceeds back into the pool and
// retires the loan's allocation. amount is the funds actually transferred from
// the orchestrator, principal the original allocation being closed out; a
// shortfall (amount below principal) is realized as a loss against total
// assets, an excess as profit.
func (e *Engine) Absorb(caller, borrower [20]byte, amount, principal *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != e.orchestrator || caller == ([20]byte{}) {
		return ErrNotOrchestrator
	}
	// A fully drained wallet returns nothing, yet its allocation still has
	// to be retired, so a zero amount is legal here.
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if principal == nil || principal.Sign() < 0 {
		return ErrInvalidAmount
	}

	pool, err := e.accruedPool()
	if err != nil {
		return err
	}

	callerAcc, err := e.state.GetAccount(caller)
	if err != nil {
		return err
	}
	if callerAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	moduleAcc, err := e.state.GetAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	callerAcc.Balance = new(big.Int).Sub(callerAcc.Balance, amount)
	moduleAcc.Balance = new(big.Int).Add(moduleAcc.Balance, amount)
	if err := e.state.PutAccount(caller, callerAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}

	pool.AssetsOnHand = new(big.Int).Add(pool.AssetsOnHand, amount)
	pool.TotalAllocated = new(big.Int).Sub(pool.TotalAllocated, principal)
	if pool.TotalAllocated.Sign() < 0 {
		pool.TotalAllocated = big.NewInt(0)
	}
	// Allocated principal never left the yield base, so only the realized
	// profit or loss against the retired allocation moves it.
	delta := new(big.Int).Sub(amount, principal)
	switch {
	case delta.Sign() > 0:
		pool.YieldBaseBalance = new(big.Int).Add(pool.YieldBaseBalance, delta)
	case delta.Sign() < 0:
		reduceYieldBase(pool, new(big.Int).Neg(delta))
	}
	if err := e.state.VaultPutPool(pool); err != nil {
		return err
	}

	e.emitter.Emit(events.VaultAbsorbed{Borrower: borrower, Amount: new(big.Int).Set(amount)})
	return nil
}

// Accrue materializes pending yield into the pool accounting. Callable by
// anyone; calling twice in the same second changes nothing the second time.
func (e *Engine) Accrue() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	pending := e.accruePool(pool)
	if err := e.state.VaultPutPool(pool); err != nil {
		return err
	}
	if pending.Sign() > 0 {
		e.emitter.Emit(events.VaultAccrued{
			Pending:   pending,
			YieldBase: new(big.Int).Set(pool.YieldBaseBalance),
			Accrued:   new(big.Int).Set(pool.TotalAccruedYield),
			At:        pool.LastAccrualTime,
		})
	}
	return nil
}

// BalanceOf returns the share balance held by addr.
func (e *Engine) BalanceOf(addr [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	account, err := e.ensureShares(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Shares), nil
}

// TotalAssets returns on-hand assets plus allocated principal plus accrued
// and pending yield. Shares are priced against this figure.
func (e *Engine) TotalAssets() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	return e.totalAssetsAt(pool, e.nowFn()), nil
}

// AvailableLiquidity returns the assets physically on hand. Accrued or
// pending yield never inflates what can actually leave the pool.
func (e *Engine) AvailableLiquidity() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(pool.AssetsOnHand), nil
}

// CanFund reports whether the pool can allocate amount right now.
func (e *Engine) CanFund(amount *big.Int) (bool, error) {
	if amount == nil || amount.Sign() <= 0 {
		return false, nil
	}
	liquidity, err := e.AvailableLiquidity()
	if err != nil {
		return false, err
	}
	return liquidity.Cmp(amount) >= 0, nil
}

// PreviewDeposit returns the shares a deposit of assets would mint now.
func (e *Engine) PreviewDeposit(assets *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if assets == nil || assets.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	assetsTotal := e.totalAssetsAt(pool, e.nowFn())
	if pool.TotalShares.Sign() == 0 || assetsTotal.Sign() == 0 {
		return new(big.Int).Set(assets), nil
	}
	return mulDiv(assets, pool.TotalShares, assetsTotal), nil
}

// PreviewWithdraw returns the shares a withdrawal of assets would burn now,
// rounded up to protect the pool.
func (e *Engine) PreviewWithdraw(assets *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if assets == nil || assets.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	if pool.TotalShares.Sign() == 0 {
		return big.NewInt(0), nil
	}
	return mulDivCeil(assets, pool.TotalShares, e.totalAssetsAt(pool, e.nowFn())), nil
}

// PreviewRedeem returns the assets redeeming shares would release now.
func (e *Engine) PreviewRedeem(shares *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if shares == nil || shares.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	if pool.TotalShares.Sign() == 0 {
		return big.NewInt(0), nil
	}
	return mulDiv(shares, e.totalAssetsAt(pool, e.nowFn()), pool.TotalShares), nil
}

// PoolStats returns a read-only snapshot including live pending yield.
func (e *Engine) PoolStats() (*Stats, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	now := e.nowFn()
	pending := e.pendingAt(pool, now)
	return &Stats{
		TotalShares:       new(big.Int).Set(pool.TotalShares),
		AssetsOnHand:      new(big.Int).Set(pool.AssetsOnHand),
		TotalAllocated:    new(big.Int).Set(pool.TotalAllocated),
		YieldBaseBalance:  new(big.Int).Set(pool.YieldBaseBalance),
		TotalAccruedYield: new(big.Int).Set(pool.TotalAccruedYield),
		PendingYield:      pending,
		TotalAssets:       e.totalAssetsAt(pool, now),
		LastAccrualTime:   pool.LastAccrualTime,
	}, nil
}

func (e *Engine) ensurePool() (*Pool, error) {
	pool, err := e.state.VaultGetPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = &Pool{LastAccrualTime: e.nowFn()}
	}
	pool.EnsureDefaults()
	return pool, nil
}

// accruedPool loads the pool with pending yield already materialized. The
// mutating entry points all go through here first.
func (e *Engine) accruedPool() (*Pool, error) {
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	e.accruePool(pool)
	return pool, nil
}

func (e *Engine) accruePool(pool *Pool) *big.Int {
	now := e.nowFn()
	pending := e.pendingAt(pool, now)
	if pending.Sign() > 0 {
		pool.TotalAccruedYield = new(big.Int).Add(pool.TotalAccruedYield, pending)
		pool.YieldBaseBalance = new(big.Int).Add(pool.YieldBaseBalance, pending)
	}
	if now > pool.LastAccrualTime {
		pool.LastAccrualTime = now
	}
	return pending
}

func (e *Engine) pendingAt(pool *Pool, now uint64) *big.Int {
	if now <= pool.LastAccrualTime {
		return big.NewInt(0)
	}
	return pendingYield(pool.YieldBaseBalance, e.apyBps, now-pool.LastAccrualTime)
}

func (e *Engine) totalAssetsAt(pool *Pool, now uint64) *big.Int {
	total := new(big.Int).Add(pool.AssetsOnHand, pool.TotalAllocated)
	total.Add(total, pool.TotalAccruedYield)
	total.Add(total, e.pendingAt(pool, now))
	return total
}

func (e *Engine) ensureShares(addr [20]byte) (*ShareAccount, error) {
	account, err := e.state.VaultGetShares(addr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = &ShareAccount{Address: addr}
	}
	account.EnsureDefaults()
	return account, nil
}

// burnFrom validates ownership or allowance, then burns shares from owner.
func (e *Engine) burnFrom(caller, owner [20]byte, shares *big.Int) error {
	if caller != owner {
		allowance, err := e.state.VaultGetAllowance(owner, caller)
		if err != nil {
			return err
		}
		if allowance == nil || allowance.Cmp(shares) < 0 {
			return ErrAllowanceExceeded
		}
		remaining := new(big.Int).Sub(allowance, shares)
		if err := e.state.VaultPutAllowance(owner, caller, remaining); err != nil {
			return err
		}
	}
	ownerShares, err := e.ensureShares(owner)
	if err != nil {
		return err
	}
	if ownerShares.Shares.Cmp(shares) < 0 {
		return ErrInsufficientBalance
	}
	ownerShares.Shares = new(big.Int).Sub(ownerShares.Shares, shares)
	return e.state.VaultPutShares(ownerShares)
}

// payOut moves assets from the pool treasury to recipient and reduces the
// on-hand figure. Callers adjust the yield base and total shares as the
// operation requires.
func (e *Engine) payOut(pool *Pool, recipient [20]byte, assets *big.Int) error {
	moduleAcc, err := e.state.GetAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	if moduleAcc.Balance.Cmp(assets) < 0 {
		return ErrInsufficientLiquidity
	}
	recipientAcc, err := e.state.GetAccount(recipient)
	if err != nil {
		return err
	}
	moduleAcc.Balance = new(big.Int).Sub(moduleAcc.Balance, assets)
	recipientAcc.Balance = new(big.Int).Add(recipientAcc.Balance, assets)
	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(recipient, recipientAcc); err != nil {
		return err
	}
	pool.AssetsOnHand = new(big.Int).Sub(pool.AssetsOnHand, assets)
	return nil
}

// reduceYieldBase shrinks the accruing principal when assets permanently leave
// the pool, flooring at zero.
func reduceYieldBase(pool *Pool, assets *big.Int) {
	pool.YieldBaseBalance = new(big.Int).Sub(pool.YieldBaseBalance, assets)
	if pool.YieldBaseBalance.Sign() < 0 {
		pool.YieldBaseBalance = big.NewInt(0)
	}
}
