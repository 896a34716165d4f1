package state

import (
	"fmt"

	"marginvault/wallet"
)

// WalletGetRecord loads a borrower's wallet registry entry, nil when never
// provisioned.
func (m *Manager) WalletGetRecord(owner [20]byte) (*wallet.WalletRecord, error) {
	record := new(wallet.WalletRecord)
	ok, err := m.KVGet(walletRecordKey(owner), record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return record, nil
}

// WalletPutRecord persists a borrower's wallet registry entry.
func (m *Manager) WalletPutRecord(record *wallet.WalletRecord) error {
	if record == nil {
		return fmt.Errorf("state: nil wallet record")
	}
	return m.KVPut(walletRecordKey(record.Owner), record)
}
