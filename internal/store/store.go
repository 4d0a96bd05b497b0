// Package store is the key-value side of persistence, backed by BadgerDB.
// It holds small per-user documents and short-lived markers that do not
// belong in the relational store.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("key not found")

// Store wraps a BadgerDB instance
type Store struct {
	badger *badger.DB
}

// Open opens BadgerDB at path. An empty path keeps everything in memory.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil). // Disable verbose logging
		WithNumVersionsToKeep(1)

	if path == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts = opts.
			WithCompactL0OnClose(true).
			WithValueLogFileSize(16 << 20). // 16MB value log files
			WithMemTableSize(16 << 20)      // 16MB memtable
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Store{badger: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.badger.Close()
}

// Set stores a value without expiry
func (s *Store) Set(key string, value []byte) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// SetWithTTL stores a value that expires after ttl
func (s *Store) SetWithTTL(key string, value []byte, ttl time.Duration) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), value).WithTTL(ttl))
	})
}

// SetIfAbsent stores value only when key is missing. It reports whether
// the value was written.
func (s *Store) SetIfAbsent(key string, value []byte, ttl time.Duration) (bool, error) {
	written := false
	err := s.badger.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		written = true
		return txn.SetEntry(e)
	})
	if err != nil {
		return false, err
	}
	return written, nil
}

// Get retrieves a value
func (s *Store) Get(key string) ([]byte, error) {
	var val []byte
	err := s.badger.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte{}, v...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

// Delete removes a key
func (s *Store) Delete(key string) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Keys lists every live key with the given prefix
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.badger.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}
