package wallet

import (
	"errors"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"marginvault/core/events"
	"marginvault/core/types"
	nativecommon "marginvault/native/common"
)

var (
	errNilState = errors.New("wallet service: state not configured")

	// ErrInvalidAmount marks zero or negative amounts.
	ErrInvalidAmount = errors.New("wallet service: amount must be positive")
	// ErrZeroAddress marks a missing owner or recipient.
	ErrZeroAddress = errors.New("wallet service: zero address")
	// ErrNoWallet marks operations against an owner without a provisioned
	// wallet.
	ErrNoWallet = errors.New("wallet service: no wallet for owner")
	// ErrNotOwner marks a withdraw or swap from anyone who is neither the
	// wallet owner nor the orchestrator.
	ErrNotOwner = errors.New("wallet service: caller is not authorized")
	// ErrSolvencyFloor marks an owner withdrawal that would leave the
	// wallet below the minimum the active loan requires.
	ErrSolvencyFloor = errors.New("wallet service: withdrawal breaches solvency floor")
	// ErrInsufficientBalance marks a withdrawal or swap beyond the held
	// balance.
	ErrInsufficientBalance = errors.New("wallet service: insufficient balance")
	// ErrVenueNotAllowed marks a swap routed through an unlisted venue.
	ErrVenueNotAllowed = errors.New("wallet service: venue not allowlisted")
	// ErrTokenNotAllowed marks a swap touching an unlisted token.
	ErrTokenNotAllowed = errors.New("wallet service: token not allowlisted")
)

const moduleName = "wallet"

type serviceState interface {
	WalletGetRecord(owner [20]byte) (*WalletRecord, error)
	WalletPutRecord(record *WalletRecord) error
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// SolvencyView is the slice of the loan orchestrator the wallet consults
// before releasing owner withdrawals.
type SolvencyView interface {
	MinimumRequired(borrower [20]byte) (*big.Int, error)
}

// Service is the trading wallet collaborator: a one-per-borrower registry
// plus the balance, authorized-withdraw and allowlisted-execution surface the
// settlement core relies on.
type Service struct {
	state        serviceState
	orchestrator [20]byte
	solvency     SolvencyView
	router       Router
	venues       map[string]struct{}
	tokens       map[string]struct{}
	nowFn        func() uint64
	emitter      events.Emitter
	pauses       nativecommon.PauseView
}

// NewService constructs a wallet service restricted to the given venue and
// token allowlists. The settlement symbol is always tradable.
func NewService(venues, tokens []string) *Service {
	s := &Service{
		venues:  make(map[string]struct{}, len(venues)),
		tokens:  make(map[string]struct{}, len(tokens)+1),
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
		emitter: events.NoopEmitter{},
	}
	for _, venue := range venues {
		s.venues[venue] = struct{}{}
	}
	for _, token := range tokens {
		s.tokens[token] = struct{}{}
	}
	s.tokens[SettlementSymbol] = struct{}{}
	return s
}

func (s *Service) SetState(state serviceState) { s.state = state }

// SetOrchestrator configures the address with unconditional withdraw rights.
func (s *Service) SetOrchestrator(addr [20]byte) {
	if s == nil {
		return
	}
	s.orchestrator = addr
}

// SetSolvencyView wires the loan-side solvency floor. Without one, owner
// withdrawals are unrestricted.
func (s *Service) SetSolvencyView(view SolvencyView) {
	if s == nil {
		return
	}
	s.solvency = view
}

// SetRouter injects the swap backend.
func (s *Service) SetRouter(router Router) {
	if s == nil {
		return
	}
	s.router = router
}

func (s *Service) SetEmitter(emitter events.Emitter) {
	if s == nil {
		return
	}
	if emitter == nil {
		s.emitter = events.NoopEmitter{}
		return
	}
	s.emitter = emitter
}

// SetNowFunc overrides the wall clock, primarily for deterministic tests.
func (s *Service) SetNowFunc(now func() uint64) {
	if s == nil {
		return
	}
	if now == nil {
		s.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	s.nowFn = now
}

func (s *Service) SetPauses(p nativecommon.PauseView) {
	if s == nil {
		return
	}
	s.pauses = p
}

// DeriveAddress returns the deterministic wallet address for owner.
func DeriveAddress(owner [20]byte) [20]byte {
	hash := ethcrypto.Keccak256([]byte("marginvault/wallet"), owner[:])
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// Ensure provisions the owner's wallet if missing and returns its address.
// Repeated calls return the same wallet.
func (s *Service) Ensure(owner [20]byte) ([20]byte, error) {
	if s == nil || s.state == nil {
		return [20]byte{}, errNilState
	}
	if owner == ([20]byte{}) {
		return [20]byte{}, ErrZeroAddress
	}
	record, err := s.state.WalletGetRecord(owner)
	if err != nil {
		return [20]byte{}, err
	}
	if record != nil {
		return record.Address, nil
	}
	record = &WalletRecord{
		Owner:     owner,
		Address:   DeriveAddress(owner),
		CreatedAt: s.nowFn(),
	}
	if err := s.state.WalletPutRecord(record); err != nil {
		return [20]byte{}, err
	}
	s.emitter.Emit(events.WalletProvisioned{Owner: owner, Wallet: record.Address})
	return record.Address, nil
}

// Get returns the owner's wallet record, or nil when none was provisioned.
func (s *Service) Get(owner [20]byte) (*WalletRecord, error) {
	if s == nil || s.state == nil {
		return nil, errNilState
	}
	return s.state.WalletGetRecord(owner)
}

// SettlementBalance returns the settlement-asset balance held by the owner's
// wallet, zero when no wallet exists.
func (s *Service) SettlementBalance(owner [20]byte) (*big.Int, error) {
	if s == nil || s.state == nil {
		return nil, errNilState
	}
	record, err := s.state.WalletGetRecord(owner)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return big.NewInt(0), nil
	}
	account, err := s.state.GetAccount(record.Address)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Balance), nil
}

// Withdraw releases settlement assets from the owner's wallet. The
// orchestrator is always allowed; the owner is subject to the solvency floor;
// everyone else is denied.
func (s *Service) Withdraw(caller, owner, recipient [20]byte, amount *big.Int) error {
	if s == nil || s.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(s.pauses, moduleName); err != nil {
		return err
	}
	if recipient == ([20]byte{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	record, err := s.requireWallet(owner)
	if err != nil {
		return err
	}

	switch caller {
	case s.orchestrator:
		// Always privileged: repay and liquidation need full access.
	case owner:
		if err := s.checkSolvency(record, amount); err != nil {
			return err
		}
	default:
		return ErrNotOwner
	}

	if err := s.moveSettlement(record.Address, recipient, amount); err != nil {
		return err
	}
	s.emitter.Emit(events.WalletWithdrawn{
		Wallet:    record.Address,
		Caller:    caller,
		Recipient: recipient,
		Amount:    new(big.Int).Set(amount),
	})
	return nil
}

// Drain pulls the wallet's entire settlement balance to recipient and returns
// the moved amount. Orchestrator only; a zero balance drains to zero without
// error.
func (s *Service) Drain(caller, owner, recipient [20]byte) (*big.Int, error) {
	if s == nil || s.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(s.pauses, moduleName); err != nil {
		return nil, err
	}
	if caller != s.orchestrator || caller == ([20]byte{}) {
		return nil, ErrNotOwner
	}
	record, err := s.requireWallet(owner)
	if err != nil {
		return nil, err
	}
	account, err := s.state.GetAccount(record.Address)
	if err != nil {
		return nil, err
	}
	balance := new(big.Int).Set(account.Balance)
	if balance.Sign() == 0 {
		return balance, nil
	}
	if err := s.moveSettlement(record.Address, recipient, balance); err != nil {
		return nil, err
	}
	s.emitter.Emit(events.WalletWithdrawn{
		Wallet:    record.Address,
		Caller:    caller,
		Recipient: recipient,
		Amount:    new(big.Int).Set(balance),
	})
	return balance, nil
}

// Execute swaps through an allowlisted venue. Value moves between the
// settlement balance and the wallet's venue token balances; the settlement
// core only cares that funds cannot leave through here.
func (s *Service) Execute(caller, owner [20]byte, venue, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	if s == nil || s.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(s.pauses, moduleName); err != nil {
		return nil, err
	}
	if caller != owner {
		return nil, ErrNotOwner
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, ok := s.venues[venue]; !ok {
		return nil, ErrVenueNotAllowed
	}
	if !s.tokenAllowed(tokenIn) || !s.tokenAllowed(tokenOut) || tokenIn == tokenOut {
		return nil, ErrTokenNotAllowed
	}
	if s.router == nil {
		return nil, errors.New("wallet service: router not configured")
	}
	record, err := s.requireWallet(owner)
	if err != nil {
		return nil, err
	}

	amountOut, err := s.router.Swap(tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}

	if tokenIn == SettlementSymbol {
		if err := s.debitSettlement(record.Address, amountIn); err != nil {
			return nil, err
		}
	} else {
		held := record.TokenAmount(tokenIn)
		if held.Cmp(amountIn) < 0 {
			return nil, ErrInsufficientBalance
		}
		record.setTokenAmount(tokenIn, new(big.Int).Sub(held, amountIn))
	}
	if tokenOut == SettlementSymbol {
		if err := s.creditSettlement(record.Address, amountOut); err != nil {
			return nil, err
		}
	} else {
		record.setTokenAmount(tokenOut, new(big.Int).Add(record.TokenAmount(tokenOut), amountOut))
	}
	if err := s.state.WalletPutRecord(record); err != nil {
		return nil, err
	}

	s.emitter.Emit(events.WalletSwapped{
		Wallet:    record.Address,
		Venue:     venue,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: new(big.Int).Set(amountOut),
	})
	return amountOut, nil
}

func (s *Service) tokenAllowed(token string) bool {
	_, ok := s.tokens[token]
	return ok
}

func (s *Service) requireWallet(owner [20]byte) (*WalletRecord, error) {
	record, err := s.state.WalletGetRecord(owner)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNoWallet
	}
	return record, nil
}

func (s *Service) checkSolvency(record *WalletRecord, amount *big.Int) error {
	if s.solvency == nil {
		return nil
	}
	floor, err := s.solvency.MinimumRequired(record.Owner)
	if err != nil {
		return err
	}
	if floor.Sign() == 0 {
		return nil
	}
	account, err := s.state.GetAccount(record.Address)
	if err != nil {
		return err
	}
	remaining := new(big.Int).Sub(account.Balance, amount)
	if remaining.Cmp(floor) < 0 {
		return ErrSolvencyFloor
	}
	return nil
}

func (s *Service) moveSettlement(from, to [20]byte, amount *big.Int) error {
	fromAcc, err := s.state.GetAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toAcc, err := s.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := s.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return s.state.PutAccount(to, toAcc)
}

func (s *Service) debitSettlement(addr [20]byte, amount *big.Int) error {
	account, err := s.state.GetAccount(addr)
	if err != nil {
		return err
	}
	if account.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	account.Balance = new(big.Int).Sub(account.Balance, amount)
	return s.state.PutAccount(addr, account)
}

func (s *Service) creditSettlement(addr [20]byte, amount *big.Int) error {
	account, err := s.state.GetAccount(addr)
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return s.state.PutAccount(addr, account)
}
