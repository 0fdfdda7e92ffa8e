package storage

import (
	"slices"
	"strings"
	"sync"

	"github.com/uhyunpark/meshbook/pkg/book"
)

// MemoryStore is a SnapshotStore for tests and nodes started without a data dir.
type MemoryStore struct {
	mu     sync.Mutex
	orders []book.Order
	seq    uint64
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) SaveOrders(orders []book.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = slices.Clone(orders)
	slices.SortFunc(s.orders, func(a, b book.Order) int { return strings.Compare(a.ID, b.ID) })
	return nil
}

func (s *MemoryStore) LoadOrders() ([]book.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.orders), nil
}

func (s *MemoryStore) SaveSequence(seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = seq
	return nil
}

func (s *MemoryStore) LoadSequence() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ SnapshotStore = (*MemoryStore)(nil)
