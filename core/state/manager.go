package state

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"marginvault/storage"
)

// Manager provides the keyed ledger tables used by the settlement engines. All
// writes land in an in-memory overlay first; Commit flushes the overlay to the
// backing database and Reset discards it. An entry point that fails therefore
// leaves no partial state behind, which is the atomicity model the engines
// rely on instead of explicit rollback logic.
//
// Values are RLP encoded and keys are keccak256 hashed before hitting the
// database, keeping the layout uniform regardless of backend.
//
// Manager is not safe for concurrent use; the node serializes access.
type Manager struct {
	db      storage.Database
	pending map[string][]byte
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, pending: make(map[string][]byte)}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The write stays in the overlay until Commit.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.pending[string(kvKey(key))] = encoded
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. Overlay writes shadow committed state. The boolean
// return reports whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, ok := m.pending[string(hashed)]
	if !ok {
		stored, err := m.db.Get(hashed)
		if err != nil {
			if err == storage.ErrNotFound {
				return false, nil
			}
			return false, err
		}
		data = stored
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Commit flushes all overlay writes to the backing database and clears the
// overlay. Writes are idempotent so a partially applied flush can be retried.
func (m *Manager) Commit() error {
	for key, value := range m.pending {
		if err := m.db.Put([]byte(key), value); err != nil {
			return err
		}
	}
	m.pending = make(map[string][]byte)
	return nil
}

// Reset discards every uncommitted write, rolling the manager back to the
// last committed state.
func (m *Manager) Reset() {
	m.pending = make(map[string][]byte)
}

// Dirty reports whether uncommitted writes exist. Exposed for tests and for
// the node's sanity checks.
func (m *Manager) Dirty() bool {
	return len(m.pending) > 0
}
