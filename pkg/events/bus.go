package events

import "sync"

// Publisher accepts events. The matching engine only ever sees this interface.
type Publisher interface {
	Publish(Event)
}

// Bus fans events out to per-kind subscribers over bounded channels. Publish
// blocks while a subscriber's buffer is full so that no event is dropped on the
// way to the sync bridge; subscribers must keep draining.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Kind][]*Subscription
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]*Subscription)}
}

type Subscription struct {
	bus   *Bus
	kinds []Kind
	ch    chan Event
	done  chan struct{}

	doneOnce sync.Once
	chClosed bool // guarded by bus.mu
}

// Subscribe registers for the given kinds, or all kinds when none are given.
func (b *Bus) Subscribe(buffer int, kinds ...Kind) *Subscription {
	if len(kinds) == 0 {
		kinds = AllKinds
	}
	s := &Subscription{
		bus:   b,
		kinds: kinds,
		ch:    make(chan Event, buffer),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.shut()
		return s
	}
	for _, k := range kinds {
		b.subs[k] = append(b.subs[k], s)
	}
	return s
}

func (s *Subscription) Events() <-chan Event { return s.ch }

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	// Release any Publish blocked on this subscriber before taking the write lock.
	s.doneOnce.Do(func() { close(s.done) })

	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		for _, k := range s.kinds {
			list := b.subs[k]
			for i, other := range list {
				if other == s {
					b.subs[k] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		}
	}
	s.shut()
}

// shut must be called with bus.mu held for writing.
func (s *Subscription) shut() {
	s.doneOnce.Do(func() { close(s.done) })
	if !s.chClosed {
		s.chClosed = true
		close(s.ch)
	}
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs[ev.Kind()] {
		select {
		case s.ch <- ev:
		case <-s.done:
		}
	}
}

// Close shuts every subscription down. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, list := range b.subs {
		for _, s := range list {
			s.shut()
		}
	}
	b.subs = nil
}

// Recorder is a Publisher that keeps events in memory, in publish order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Take returns the recorded events and resets the recorder.
func (r *Recorder) Take() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

type discard struct{}

func (discard) Publish(Event) {}

// Discard drops every event.
var Discard Publisher = discard{}
