package core

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"marginvault/config"
	"marginvault/core/events"
	"marginvault/core/state"
	"marginvault/core/types"
	"marginvault/integrations/journal"
	"marginvault/native/collateral"
	nativecommon "marginvault/native/common"
	"marginvault/native/loan"
	"marginvault/native/vault"
	"marginvault/observability/metrics"
	"marginvault/storage"
	"marginvault/wallet"
)

// EventSink receives every event a committed operation produced. The journal
// implements it; tests may substitute their own.
type EventSink interface {
	Append(event *types.Event) error
}

var _ EventSink = (*journal.Journal)(nil)

// Options configures a node. Sink, Metrics and Logger are optional.
type Options struct {
	Protocol      config.Protocol
	FeeCollector  [20]byte
	AllowedVenues []string
	AllowedTokens []string
	Router        wallet.Router
	Pauses        nativecommon.PauseView
	Sink          EventSink
	Metrics       *metrics.LendingMetrics
	Logger        *slog.Logger
}

// Node owns the engines and serializes every entry point behind one mutex.
// Engine writes land in the state manager's overlay; an operation either
// fully commits and publishes its events, or resets the overlay and leaves no
// effect. That is the whole atomicity story: there is no rollback logic in
// the engines themselves.
type Node struct {
	mu sync.Mutex

	state   *state.Manager
	vault   *vault.Engine
	ledger  *collateral.Ledger
	loans   *loan.Engine
	wallets *wallet.Service

	buffer  *bufferedEmitter
	sink    EventSink
	metrics *metrics.LendingMetrics
	logger  *slog.Logger
}

// bufferedEmitter collects events during an operation so nothing is published
// for work that later fails to commit.
type bufferedEmitter struct {
	pending []events.Event
}

func (b *bufferedEmitter) Emit(event events.Event) {
	b.pending = append(b.pending, event)
}

func (b *bufferedEmitter) reset() { b.pending = b.pending[:0] }

func moduleAddress(name string) [20]byte {
	hash := ethcrypto.Keccak256([]byte("marginvault/module/" + name))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

var (
	vaultModuleAddress = moduleAddress("vault")
	loanModuleAddress  = moduleAddress("loan")
)

// NewNode wires the engines over the given database.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	manager := state.NewManager(db)
	buffer := &bufferedEmitter{}

	vaultEngine := vault.NewEngine(vaultModuleAddress, opts.Protocol.PoolAPYBps)
	vaultEngine.SetState(manager)
	vaultEngine.SetOrchestrator(loanModuleAddress)
	vaultEngine.SetEmitter(buffer)
	vaultEngine.SetPauses(opts.Pauses)

	ledger := collateral.NewLedger(opts.Protocol.MarginFractionBps, opts.Protocol.LoanDurationSeconds)
	ledger.SetState(manager)
	ledger.SetOrchestrator(loanModuleAddress)
	ledger.SetEmitter(buffer)
	ledger.SetPauses(opts.Pauses)

	wallets := wallet.NewService(opts.AllowedVenues, opts.AllowedTokens)
	wallets.SetState(manager)
	wallets.SetOrchestrator(loanModuleAddress)
	wallets.SetRouter(opts.Router)
	wallets.SetEmitter(buffer)
	wallets.SetPauses(opts.Pauses)

	loans := loan.NewEngine(loanModuleAddress, opts.Protocol.BorrowRateBps, opts.Protocol.PoolInterestShareBps)
	loans.SetState(manager)
	loans.SetCollaborators(vaultEngine, ledger, wallets)
	loans.SetFeeCollector(opts.FeeCollector)
	loans.SetEmitter(buffer)
	loans.SetPauses(opts.Pauses)

	wallets.SetSolvencyView(loans)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Node{
		state:   manager,
		vault:   vaultEngine,
		ledger:  ledger,
		loans:   loans,
		wallets: wallets,
		buffer:  buffer,
		sink:    opts.Sink,
		metrics: opts.Metrics,
		logger:  logger,
	}, nil
}

// SetNowFunc overrides the clock on every engine, for deterministic tests.
func (n *Node) SetNowFunc(now func() uint64) {
	n.vault.SetNowFunc(now)
	n.ledger.SetNowFunc(now)
	n.loans.SetNowFunc(now)
	n.wallets.SetNowFunc(now)
}

var genesisMarkerKey = []byte("genesis/applied")

// ApplyGenesis credits the configured allocations exactly once per database.
func (n *Node) ApplyGenesis(allocations map[[20]byte]*big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	applied := false
	if _, err := n.state.KVGet(genesisMarkerKey, &applied); err != nil {
		return err
	}
	if applied {
		return nil
	}
	for addr, amount := range allocations {
		if err := n.state.Credit(addr, amount); err != nil {
			n.state.Reset()
			return err
		}
	}
	if err := n.state.KVPut(genesisMarkerKey, true); err != nil {
		n.state.Reset()
		return err
	}
	if err := n.state.Commit(); err != nil {
		n.state.Reset()
		return err
	}
	n.logger.Info("genesis applied", "allocations", len(allocations))
	return nil
}

// withCommit runs one entry point under the node lock: commit and publish on
// success, reset the overlay on any failure.
func (n *Node) withCommit(fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.buffer.reset()
	if err := fn(); err != nil {
		n.state.Reset()
		n.buffer.reset()
		return err
	}
	if err := n.state.Commit(); err != nil {
		n.state.Reset()
		n.buffer.reset()
		return fmt.Errorf("state commit: %w", err)
	}
	n.publish()
	return nil
}

func (n *Node) publish() {
	for _, event := range n.buffer.pending {
		n.observe(event)
		payloader, ok := event.(interface{ Event() *types.Event })
		if !ok {
			continue
		}
		payload := payloader.Event()
		n.logger.Info("event", "type", payload.Type, "attributes", payload.Attributes)
		if n.sink != nil {
			if err := n.sink.Append(payload); err != nil {
				n.logger.Error("journal append failed", "type", payload.Type, "error", err)
			}
		}
	}
	n.buffer.reset()
	n.updateGauges()
}

func (n *Node) observe(event events.Event) {
	switch event.EventType() {
	case events.TypeLoanCreated:
		n.metrics.ObserveLoanCreated()
	case events.TypeLoanRepaid:
		n.metrics.ObserveLoanRepaid()
	case events.TypeLoanLiquidated:
		n.metrics.ObserveLoanLiquidated()
	case events.TypeVaultDeposited:
		n.metrics.ObserveVaultDeposit()
	case events.TypeVaultWithdrawn, events.TypeVaultRedeemed:
		n.metrics.ObserveVaultWithdrawal()
	}
}

func (n *Node) updateGauges() {
	if n.metrics == nil {
		return
	}
	stats, err := n.vault.PoolStats()
	if err != nil {
		return
	}
	fees := big.NewInt(0)
	if loanStats, err := n.loans.Stats(); err == nil {
		fees = loanStats.ProtocolFees
	}
	n.metrics.SetPoolGauges(stats.TotalAssets, stats.AssetsOnHand, fees)
}

// --- vault entry points ---

func (n *Node) VaultDeposit(caller, receiver [20]byte, assets *big.Int) (*big.Int, error) {
	var shares *big.Int
	err := n.withCommit(func() error {
		var err error
		shares, err = n.vault.Deposit(caller, receiver, assets)
		return err
	})
	return shares, err
}

func (n *Node) VaultWithdraw(caller, receiver, owner [20]byte, assets *big.Int) (*big.Int, error) {
	var shares *big.Int
	err := n.withCommit(func() error {
		var err error
		shares, err = n.vault.Withdraw(caller, receiver, owner, assets)
		return err
	})
	return shares, err
}

func (n *Node) VaultRedeem(caller, receiver, owner [20]byte, shares *big.Int) (*big.Int, error) {
	var assets *big.Int
	err := n.withCommit(func() error {
		var err error
		assets, err = n.vault.Redeem(caller, receiver, owner, shares)
		return err
	})
	return assets, err
}

func (n *Node) VaultApprove(owner, spender [20]byte, amount *big.Int) error {
	return n.withCommit(func() error {
		return n.vault.Approve(owner, spender, amount)
	})
}

func (n *Node) VaultAccrue() error {
	return n.withCommit(func() error {
		return n.vault.Accrue()
	})
}

// --- loan entry points ---

func (n *Node) LoanCreate(borrower [20]byte, amount *big.Int) error {
	return n.withCommit(func() error {
		return n.loans.CreateLoan(borrower, amount)
	})
}

func (n *Node) LoanRepay(borrower [20]byte) error {
	return n.withCommit(func() error {
		return n.loans.RepayLoan(borrower)
	})
}

func (n *Node) LoanLiquidate(liquidator, borrower [20]byte) error {
	return n.withCommit(func() error {
		return n.loans.LiquidateLoan(liquidator, borrower)
	})
}

func (n *Node) LoanWithdrawFees(caller, recipient [20]byte, amount *big.Int) error {
	return n.withCommit(func() error {
		return n.loans.WithdrawProtocolFees(caller, recipient, amount)
	})
}

// --- wallet entry points ---

func (n *Node) WalletWithdraw(caller, owner, recipient [20]byte, amount *big.Int) error {
	return n.withCommit(func() error {
		return n.wallets.Withdraw(caller, owner, recipient, amount)
	})
}

func (n *Node) WalletExecute(caller, owner [20]byte, venue, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	var out *big.Int
	err := n.withCommit(func() error {
		var err error
		out, err = n.wallets.Execute(caller, owner, venue, tokenIn, tokenOut, amountIn)
		return err
	})
	return out, err
}

// --- queries ---

func (n *Node) VaultStats() (*vault.Stats, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.vault.PoolStats()
}

func (n *Node) VaultBalanceOf(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.vault.BalanceOf(addr)
}

func (n *Node) VaultPreviewDeposit(assets *big.Int) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.vault.PreviewDeposit(assets)
}

func (n *Node) VaultPreviewWithdraw(assets *big.Int) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.vault.PreviewWithdraw(assets)
}

func (n *Node) VaultPreviewRedeem(shares *big.Int) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.vault.PreviewRedeem(shares)
}

func (n *Node) LoanInfo(borrower [20]byte) (*loan.LoanPosition, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loans.GetLoanInfo(borrower)
}

func (n *Node) LoanStats() (*loan.LoanStats, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loans.Stats()
}

func (n *Node) LoanMinimumRequired(borrower [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loans.MinimumRequired(borrower)
}

func (n *Node) LoanIsLiquidatable(borrower [20]byte) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loans.IsLiquidatable(borrower)
}

func (n *Node) CollateralRecord(borrower [20]byte) (*collateral.MarginRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.Record(borrower)
}

func (n *Node) WalletGet(owner [20]byte) (*wallet.WalletRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.wallets.Get(owner)
}

func (n *Node) WalletBalance(owner [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.wallets.SettlementBalance(owner)
}

func (n *Node) AccountBalance(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	account, err := n.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Balance), nil
}
