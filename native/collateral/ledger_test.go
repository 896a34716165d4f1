package collateral

import (
	"math/big"
	"testing"
)

type mockLedgerState struct {
	records map[[20]byte]*MarginRecord
}

func newMockLedgerState() *mockLedgerState {
	return &mockLedgerState{records: make(map[[20]byte]*MarginRecord)}
}

func (m *mockLedgerState) CollateralGetRecord(borrower [20]byte) (*MarginRecord, error) {
	return m.records[borrower].Clone(), nil
}

func (m *mockLedgerState) CollateralPutRecord(record *MarginRecord) error {
	m.records[record.Borrower] = record.Clone()
	return nil
}

var (
	orchestrator = [20]byte{0x01}
	borrower     = [20]byte{0x02}
	stranger     = [20]byte{0x03}
)

const (
	testMarginBps = 2_000
	testDuration  = 2_592_000
)

func newTestLedger(state *mockLedgerState, now *uint64) *Ledger {
	ledger := NewLedger(testMarginBps, testDuration)
	ledger.SetState(state)
	ledger.SetOrchestrator(orchestrator)
	ledger.SetNowFunc(func() uint64 { return *now })
	return ledger
}

func TestValidateMarginFraction(t *testing.T) {
	ledger := NewLedger(testMarginBps, testDuration)

	if err := ledger.ValidateMargin(big.NewInt(2_000), big.NewInt(10_000)); err != nil {
		t.Fatalf("exact fraction should pass: %v", err)
	}
	if err := ledger.ValidateMargin(big.NewInt(1_999), big.NewInt(10_000)); err != ErrInsufficientMargin {
		t.Fatalf("expected ErrInsufficientMargin, got %v", err)
	}
	if err := ledger.ValidateMargin(big.NewInt(0), big.NewInt(10_000)); err != ErrInvalidAmount {
		t.Fatalf("zero margin: expected ErrInvalidAmount, got %v", err)
	}
	if err := ledger.ValidateMargin(big.NewInt(1), big.NewInt(0)); err != ErrInvalidAmount {
		t.Fatalf("zero loan: expected ErrInvalidAmount, got %v", err)
	}
	// 20% of 3 truncates to 0; any positive margin then passes.
	if err := ledger.ValidateMargin(big.NewInt(1), big.NewInt(3)); err != nil {
		t.Fatalf("truncated requirement should pass: %v", err)
	}
}

func TestRequiredMarginTruncates(t *testing.T) {
	ledger := NewLedger(testMarginBps, testDuration)

	if got := ledger.RequiredMargin(big.NewInt(10_000)); got.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("expected 2000, got %s", got)
	}
	if got := ledger.RequiredMargin(big.NewInt(10_003)); got.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("expected truncation to 2000, got %s", got)
	}
	if got := ledger.RequiredMargin(nil); got.Sign() != 0 {
		t.Fatalf("nil loan should require nothing, got %s", got)
	}
}

func TestCreateRecordLifecycle(t *testing.T) {
	state := newMockLedgerState()
	now := uint64(1_700_000_000)
	ledger := newTestLedger(state, &now)

	if err := ledger.CreateRecord(stranger, borrower, big.NewInt(2_000), big.NewInt(10_000)); err != ErrNotOrchestrator {
		t.Fatalf("expected ErrNotOrchestrator, got %v", err)
	}
	if err := ledger.CreateRecord(orchestrator, borrower, big.NewInt(2_000), big.NewInt(10_000)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ledger.CreateRecord(orchestrator, borrower, big.NewInt(2_000), big.NewInt(10_000)); err != ErrRecordActive {
		t.Fatalf("expected ErrRecordActive, got %v", err)
	}

	active, err := ledger.HasActiveRecord(borrower)
	if err != nil || !active {
		t.Fatalf("expected active record, got active=%v err=%v", active, err)
	}
	record, err := ledger.Record(borrower)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.StartTime != now || record.MarginAmount.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("record fields mismatch: %+v", record)
	}

	if err := ledger.ClearRecord(orchestrator, borrower, "defaulted"); err != ErrInvalidOutcome {
		t.Fatalf("expected ErrInvalidOutcome, got %v", err)
	}
	if err := ledger.ClearRecord(stranger, borrower, OutcomeRepaid); err != ErrNotOrchestrator {
		t.Fatalf("expected ErrNotOrchestrator, got %v", err)
	}
	if err := ledger.ClearRecord(orchestrator, borrower, OutcomeRepaid); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := ledger.ClearRecord(orchestrator, borrower, OutcomeRepaid); err != ErrRecordNotFound {
		t.Fatalf("expected ErrRecordNotFound on cleared record, got %v", err)
	}

	record, err = ledger.Record(borrower)
	if err != nil {
		t.Fatalf("record after clear: %v", err)
	}
	if record.Active || record.Outcome != OutcomeRepaid {
		t.Fatalf("cleared record mismatch: %+v", record)
	}

	// A cleared record never blocks the next loan.
	if err := ledger.CreateRecord(orchestrator, borrower, big.NewInt(400), big.NewInt(2_000)); err != nil {
		t.Fatalf("create after clear: %v", err)
	}
}

func TestIsOverdueBoundary(t *testing.T) {
	state := newMockLedgerState()
	now := uint64(1_700_000_000)
	ledger := newTestLedger(state, &now)

	start := now
	if err := ledger.CreateRecord(orchestrator, borrower, big.NewInt(2_000), big.NewInt(10_000)); err != nil {
		t.Fatalf("create: %v", err)
	}

	now = start + testDuration - 1
	overdue, err := ledger.IsOverdue(borrower)
	if err != nil {
		t.Fatalf("is overdue: %v", err)
	}
	if overdue {
		t.Fatalf("one second before the due date must not be overdue")
	}

	now = start + testDuration
	overdue, err = ledger.IsOverdue(borrower)
	if err != nil {
		t.Fatalf("is overdue: %v", err)
	}
	if !overdue {
		t.Fatalf("the due instant must be overdue")
	}

	if _, err := ledger.IsOverdue(stranger); err != ErrRecordNotFound {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}
