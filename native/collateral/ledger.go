package collateral

import (
	"errors"
	"math/big"
	"time"

	"marginvault/core/events"
	nativecommon "marginvault/native/common"
)

var (
	errNilState = errors.New("collateral ledger: state not configured")

	// ErrNotOrchestrator marks a mutating call from any address other than
	// the loan orchestrator. The ledger holds no funds and trusts only it.
	ErrNotOrchestrator = errors.New("collateral ledger: caller is not the orchestrator")
	// ErrInvalidAmount marks zero or negative margin or loan amounts.
	ErrInvalidAmount = errors.New("collateral ledger: amount must be positive")
	// ErrInsufficientMargin marks margin below the required loan fraction.
	ErrInsufficientMargin = errors.New("collateral ledger: margin below required fraction")
	// ErrRecordActive marks an attempt to open a second record for a
	// borrower with one still active.
	ErrRecordActive = errors.New("collateral ledger: borrower already has an active record")
	// ErrRecordNotFound marks operations on a borrower without an active
	// record.
	ErrRecordNotFound = errors.New("collateral ledger: no active record for borrower")
	// ErrInvalidOutcome marks a clear with an unknown terminal outcome.
	ErrInvalidOutcome = errors.New("collateral ledger: invalid outcome")
)

const moduleName = "collateral"

var basisPoints = big.NewInt(10_000)

type ledgerState interface {
	CollateralGetRecord(borrower [20]byte) (*MarginRecord, error)
	CollateralPutRecord(record *MarginRecord) error
}

// Ledger is the bookkeeping side of margin requirements. It never moves
// funds; the orchestrator escrows the margin and the ledger only records the
// obligation, validates the margin fraction and answers due-date queries.
type Ledger struct {
	state           ledgerState
	orchestrator    [20]byte
	marginBps       uint64
	durationSeconds uint64
	nowFn           func() uint64
	emitter         events.Emitter
	pauses          nativecommon.PauseView
}

// NewLedger constructs a ledger enforcing the given margin fraction (basis
// points of the loan amount) and loan duration.
func NewLedger(marginBps, durationSeconds uint64) *Ledger {
	return &Ledger{
		marginBps:       marginBps,
		durationSeconds: durationSeconds,
		nowFn:           func() uint64 { return uint64(time.Now().Unix()) },
		emitter:         events.NoopEmitter{},
	}
}

func (l *Ledger) SetState(state ledgerState) { l.state = state }

func (l *Ledger) SetOrchestrator(addr [20]byte) {
	if l == nil {
		return
	}
	l.orchestrator = addr
}

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetNowFunc overrides the wall clock, primarily for deterministic tests.
func (l *Ledger) SetNowFunc(now func() uint64) {
	if l == nil {
		return
	}
	if now == nil {
		l.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	l.nowFn = now
}

func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

// RequiredMargin returns the margin fraction of the given loan amount,
// truncating toward zero. The orchestrator applies the same integer policy so
// the two components never disagree on required margin.
func (l *Ledger) RequiredMargin(loan *big.Int) *big.Int {
	if loan == nil || loan.Sign() <= 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(loan, new(big.Int).SetUint64(l.marginBps))
	return out.Quo(out, basisPoints)
}

// ValidateMargin reports whether margin satisfies the required fraction of
// loan under the shared truncating policy.
func (l *Ledger) ValidateMargin(margin, loan *big.Int) error {
	if margin == nil || margin.Sign() <= 0 || loan == nil || loan.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if margin.Cmp(l.RequiredMargin(loan)) < 0 {
		return ErrInsufficientMargin
	}
	return nil
}

// CreateRecord activates a margin record for borrower. Orchestrator only; the
// margin must already satisfy the required fraction.
func (l *Ledger) CreateRecord(caller, borrower [20]byte, margin, loan *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if caller != l.orchestrator || caller == ([20]byte{}) {
		return ErrNotOrchestrator
	}
	if err := l.ValidateMargin(margin, loan); err != nil {
		return err
	}
	existing, err := l.state.CollateralGetRecord(borrower)
	if err != nil {
		return err
	}
	if existing != nil && existing.Active {
		return ErrRecordActive
	}
	record := &MarginRecord{
		Borrower:     borrower,
		MarginAmount: new(big.Int).Set(margin),
		LoanAmount:   new(big.Int).Set(loan),
		StartTime:    l.nowFn(),
		Active:       true,
	}
	if err := l.state.CollateralPutRecord(record); err != nil {
		return err
	}
	l.emitter.Emit(events.CollateralRecorded{
		Borrower:  borrower,
		Margin:    new(big.Int).Set(margin),
		Loan:      new(big.Int).Set(loan),
		StartTime: record.StartTime,
	})
	return nil
}

// ClearRecord deactivates the borrower's record with a terminal outcome.
// Orchestrator only.
func (l *Ledger) ClearRecord(caller, borrower [20]byte, outcome string) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if caller != l.orchestrator || caller == ([20]byte{}) {
		return ErrNotOrchestrator
	}
	if outcome != OutcomeRepaid && outcome != OutcomeLiquidated {
		return ErrInvalidOutcome
	}
	record, err := l.activeRecord(borrower)
	if err != nil {
		return err
	}
	record.Active = false
	record.Outcome = outcome
	if err := l.state.CollateralPutRecord(record); err != nil {
		return err
	}
	l.emitter.Emit(events.CollateralCleared{Borrower: borrower, Outcome: outcome})
	return nil
}

// Record returns the borrower's current record, active or cleared. Missing
// borrowers yield a nil record and no error.
func (l *Ledger) Record(borrower [20]byte) (*MarginRecord, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	record, err := l.state.CollateralGetRecord(borrower)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	record.EnsureDefaults()
	return record, nil
}

// HasActiveRecord reports whether the borrower currently has margin locked.
func (l *Ledger) HasActiveRecord(borrower [20]byte) (bool, error) {
	record, err := l.Record(borrower)
	if err != nil {
		return false, err
	}
	return record != nil && record.Active, nil
}

// IsOverdue reports whether the borrower's active record has passed its due
// date. The due instant itself counts as overdue.
func (l *Ledger) IsOverdue(borrower [20]byte) (bool, error) {
	if l == nil || l.state == nil {
		return false, errNilState
	}
	record, err := l.activeRecord(borrower)
	if err != nil {
		return false, err
	}
	return l.nowFn() >= record.StartTime+l.durationSeconds, nil
}

func (l *Ledger) activeRecord(borrower [20]byte) (*MarginRecord, error) {
	record, err := l.state.CollateralGetRecord(borrower)
	if err != nil {
		return nil, err
	}
	if record == nil || !record.Active {
		return nil, ErrRecordNotFound
	}
	record.EnsureDefaults()
	return record, nil
}
