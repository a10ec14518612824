// Package fingerprint persists the last-known content hash of each tracked
// remote resource so unchanged feeds can be skipped.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "md5:"

// ErrClosed is returned after Close.
var ErrClosed = errors.New("fingerprint store is closed")

// Store is a durable URL to fingerprint map. Writes are last-writer-wins.
type Store struct {
	mu     sync.RWMutex
	db     *badger.DB
	closed bool
}

// Open opens (or creates) the store in dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.SyncWrites = true
	opts.Logger = nil
	return open(opts)
}

// OpenInMemory opens a store that is discarded on Close.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the fingerprint recorded for url, if any.
func (s *Store) Get(url string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrClosed
	}

	var fp string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(Key(url))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			fp = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get fingerprint: %w", err)
	}
	return fp, true, nil
}

// Put records fp for url.
func (s *Store) Put(url, fp string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(Key(url), []byte(fp))
	})
	if err != nil {
		return fmt.Errorf("put fingerprint: %w", err)
	}
	return nil
}

// Delete forgets the fingerprint for url so the next probe reports a change.
// Deleting an absent key is not an error.
func (s *Store) Delete(url string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(Key(url))
	})
	if err != nil {
		return fmt.Errorf("delete fingerprint: %w", err)
	}
	return nil
}

// All returns every stored fingerprint keyed by sanitized URL.
func (s *Store) All() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make(map[string]string)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[strings.TrimPrefix(string(item.Key()), keyPrefix)] = string(val)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate fingerprints: %w", err)
	}
	return out, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Key returns the storage key for url.
func Key(url string) []byte {
	return []byte(keyPrefix + SanitizeKey(url))
}

// SanitizeKey replaces every character outside [A-Za-z0-9_] with '_'.
func SanitizeKey(url string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, url)
}

// Compute returns the lowercase hex MD5 of body.
func Compute(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}
