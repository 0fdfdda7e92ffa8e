package util

import "sync/atomic"

// Sequencer hands out the per-peer monotonic sequence numbers embedded in order ids.
type Sequencer struct {
	next atomic.Uint64
}

// NewSequencer starts counting after start; pass the highest sequence already
// used by this peer when resuming from a snapshot.
func NewSequencer(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

func (s *Sequencer) Next() uint64 { return s.next.Add(1) }

func (s *Sequencer) Current() uint64 { return s.next.Load() }

// Observe raises the counter to at least v.
func (s *Sequencer) Observe(v uint64) {
	for {
		cur := s.next.Load()
		if v <= cur || s.next.CompareAndSwap(cur, v) {
			return
		}
	}
}
