// Package records is the key-value store for human-readable
// inheritance records. It is an external data service from the
// ledger's point of view: the core state machine never consults it.
package records

import (
	"encoding/json"
	"fmt"

	"Vigil/internal/storage"
)

// recordKeyPrefix is the Pebble key prefix for record entries.
var recordKeyPrefix = []byte("rec:")

// Record is a named, human-readable inheritance record.
type Record struct {
	Name        string `json:"name"`
	Beneficiary string `json:"beneficiary"` // hex identity of the intended recipient
	Note        string `json:"note,omitempty"`
	UpdatedAt   uint64 `json:"updated_at"`
}

// Store persists records in Pebble under a dedicated prefix.
type Store struct {
	db *storage.Storage
}

// NewStore creates a record store backed by the given storage.
func NewStore(db *storage.Storage) *Store {
	return &Store{db: db}
}

// Put stores a record under its name, overwriting any previous entry.
func (s *Store) Put(r Record) error {
	if r.Name == "" {
		return fmt.Errorf("record name is required")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record:\n%w", err)
	}

	return s.db.Set(makeRecordKey(r.Name), data)
}

// Get retrieves a record by name. Returns false if not found.
func (s *Store) Get(name string) (Record, bool) {
	value, err := s.db.Get(makeRecordKey(name))
	if err != nil || value == nil {
		return Record{}, false
	}

	var r Record
	if err := json.Unmarshal(value, &r); err != nil {
		return Record{}, false
	}

	return r, true
}

// Delete removes a record by name.
func (s *Store) Delete(name string) error {
	return s.db.Delete(makeRecordKey(name))
}

// List returns all records in lexicographic name order.
func (s *Store) List() ([]Record, error) {
	var records []Record

	err := s.db.IteratePrefix(recordKeyPrefix, func(key, value []byte) error {
		var r Record
		if err := json.Unmarshal(value, &r); err != nil {
			return nil // skip malformed entries
		}

		records = append(records, r)

		return nil
	})

	if err != nil {
		return nil, err
	}

	return records, nil
}

// makeRecordKey builds the Pebble key for a record: "rec:" + name.
func makeRecordKey(name string) []byte {
	key := make([]byte, len(recordKeyPrefix)+len(name))
	copy(key, recordKeyPrefix)
	copy(key[len(recordKeyPrefix):], name)

	return key
}
