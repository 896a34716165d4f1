package state

import (
	"fmt"

	"marginvault/native/collateral"
)

// CollateralGetRecord loads a borrower's margin record, nil when never
// written.
func (m *Manager) CollateralGetRecord(borrower [20]byte) (*collateral.MarginRecord, error) {
	record := new(collateral.MarginRecord)
	ok, err := m.KVGet(collateralRecordKey(borrower), record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	record.EnsureDefaults()
	return record, nil
}

// CollateralPutRecord persists a borrower's margin record.
func (m *Manager) CollateralPutRecord(record *collateral.MarginRecord) error {
	if record == nil {
		return fmt.Errorf("state: nil margin record")
	}
	record.EnsureDefaults()
	return m.KVPut(collateralRecordKey(record.Borrower), record)
}
