package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"marginvault/core/types"
)

var eventsBucket = []byte("events")

// Journal is an append-only record of every event the node publishes, kept in
// a bbolt file next to the ledger database. It exists for audit and replay;
// the settlement state never reads from it.
type Journal struct {
	db *bolt.DB
}

type entry struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	RecordedAt int64             `json:"recordedAt"`
}

// Open creates or opens the journal file at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(eventsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Append stores one event under the next sequence number.
func (j *Journal) Append(event *types.Event) error {
	if j == nil || j.db == nil {
		return fmt.Errorf("journal: not open")
	}
	if event == nil {
		return fmt.Errorf("journal: nil event")
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(eventsBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		payload, err := json.Marshal(entry{
			Sequence:   seq,
			Type:       event.Type,
			Attributes: event.Attributes,
			RecordedAt: time.Now().Unix(),
		})
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return bucket.Put(key[:], payload)
	})
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(limit int) ([]*types.Event, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("journal: not open")
	}
	out := make([]*types.Event, 0, limit)
	err := j.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(eventsBucket).Cursor()
		for key, value := cursor.Last(); key != nil && len(out) < limit; key, value = cursor.Prev() {
			var stored entry
			if err := json.Unmarshal(value, &stored); err != nil {
				return err
			}
			out = append(out, &types.Event{Type: stored.Type, Attributes: stored.Attributes})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Len returns the number of stored events.
func (j *Journal) Len() (uint64, error) {
	if j == nil || j.db == nil {
		return 0, fmt.Errorf("journal: not open")
	}
	var count uint64
	err := j.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(eventsBucket).Sequence()
		return nil
	})
	return count, err
}

// Close releases the underlying file.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
