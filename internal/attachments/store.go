// Package attachments keeps the bytes of defect attachments in an embedded
// Badger key-value store. Only the reference returned by Put is recorded in
// SQLite.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no attachment exists for a reference.
var ErrNotFound = errors.New("attachment not found")

// Store is a Badger-backed blob store.
type Store struct {
	db *badger.DB
}

// Open opens the store at path. An empty path opens an in-memory store,
// which is what tests and ephemeral deployments use.
func Open(path string) (*Store, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Clean(path))
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open attachment store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(ref string) []byte {
	return []byte("attachment:" + ref)
}

// Put stores data under a new reference and returns it.
func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := uuid.NewString()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(ref), data)
	})
	if err != nil {
		return "", fmt.Errorf("put attachment: %w", err)
	}
	return ref, nil
}

// Get returns the bytes stored under ref.
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(ref))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes ref. Deleting a missing reference is not an error.
func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(ref))
	})
}
