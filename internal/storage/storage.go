package storage

import (
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

const (
	// walSyncInterval is the interval between background WAL syncs.
	walSyncInterval = 100 * time.Millisecond

	// cacheSize is the Pebble block cache size.
	cacheSize = 16 << 20

	// memTableSize is the Pebble memtable size.
	memTableSize = 8 << 20
)

// KeyValue is a key-value pair for batch writes.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Storage is a key-value store backed by Pebble. Writes are NoSync;
// a background goroutine syncs the WAL periodically so the hot path
// never blocks on disk.
type Storage struct {
	db   *pebble.DB
	stop chan struct{}
	wg   sync.WaitGroup
}

// Open opens (or creates) a store at the given path and starts the
// WAL sync loop.
func Open(path string) (*Storage, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(cacheSize),
		MemTableSize:                memTableSize,
		MemTableStopWritesThreshold: 2,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}

	s := &Storage{
		db:   db,
		stop: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.syncLoop()

	return s, nil
}

// Get returns the value for key, or nil if the key does not exist.
func (s *Storage) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// The returned slice is invalid after closer.Close().
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// Set stores a key-value pair. Durability is provided by the sync loop.
func (s *Storage) Set(key, value []byte) error {
	return s.db.Set(key, value, pebble.NoSync)
}

// Delete removes a key.
func (s *Storage) Delete(key []byte) error {
	return s.db.Delete(key, pebble.NoSync)
}

// SetBatch writes all pairs atomically: either all land or none.
func (s *Storage) SetBatch(pairs []KeyValue) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, kv := range pairs {
		if err := batch.Set(kv.Key, kv.Value, nil); err != nil {
			return err
		}
	}

	return batch.Commit(pebble.NoSync)
}

// IteratePrefix calls fn for each pair whose key has the given prefix,
// in lexicographic key order. Iteration stops on the first error.
func (s *Storage) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// prefixUpperBound computes the exclusive upper bound for a prefix
// scan. Returns nil (unbounded) if the prefix is all 0xFF.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper
		}
	}

	return nil
}

// Close stops the sync loop, performs a final WAL sync and closes the
// database.
func (s *Storage) Close() error {
	close(s.stop)
	s.wg.Wait()

	if err := s.db.LogData(nil, pebble.Sync); err != nil {
		return err
	}

	return s.db.Close()
}

// syncLoop periodically syncs the WAL to disk.
func (s *Storage) syncLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(walSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.db.LogData(nil, pebble.Sync)
		case <-s.stop:
			return
		}
	}
}
