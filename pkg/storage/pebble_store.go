// Package storage persists snapshots of the order book's by-id index and
// journals applied operations.
package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/meshbook/pkg/book"
)

// SnapshotStore keeps the latest book snapshot and the local sequence counter.
type SnapshotStore interface {
	SaveOrders(orders []book.Order) error
	LoadOrders() ([]book.Order, error)
	SaveSequence(seq uint64) error
	LoadSequence() (uint64, error)
	Close() error
}

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}
func (s *PebbleStore) Close() error { return s.db.Close() }

// SaveOrders replaces the stored snapshot with orders in one atomic batch.
func (s *PebbleStore) SaveOrders(orders []book.Order) error {
	b := s.db.NewBatch()
	defer b.Close()

	prefix := []byte(prefixOrder)
	if err := b.DeleteRange(prefix, keyUpperBound(prefix), nil); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	for _, o := range orders {
		val, err := encodeOrder(o)
		if err != nil {
			return err
		}
		if err := b.Set(orderKey(o.ID), val, nil); err != nil {
			return fmt.Errorf("stage order %s: %w", o.ID, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadOrders returns the stored snapshot in id order. Entries that fail to
// decode are skipped and reported in the returned error alongside the rest.
func (s *PebbleStore) LoadOrders() ([]book.Order, error) {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var (
		orders []book.Order
		errs   []error
	)
	for iter.First(); iter.Valid(); iter.Next() {
		o, err := decodeOrder(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", iter.Key(), err))
			continue
		}
		orders = append(orders, o)
	}
	if err := iter.Error(); err != nil {
		errs = append(errs, err)
	}
	return orders, errors.Join(errs...)
}

func (s *PebbleStore) SaveSequence(seq uint64) error {
	if err := s.db.Set([]byte(keySequence), encodeUint64(seq), pebble.Sync); err != nil {
		return fmt.Errorf("save sequence: %w", err)
	}
	return nil
}

// LoadSequence returns 0 when nothing has been saved yet.
func (s *PebbleStore) LoadSequence() (uint64, error) {
	val, closer, err := s.db.Get([]byte(keySequence))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load sequence: %w", err)
	}
	defer closer.Close()
	return decodeUint64(val)
}

var _ SnapshotStore = (*PebbleStore)(nil)
