package connection

import (
	"sync"
)

// Subscription delivers every snapshot published by the manager, in order and without gaps.
// Publishing never blocks: snapshots are queued per subscription and pumped to Updates by a
// dedicated goroutine. Close must be called to release it.
type Subscription struct {
	id      uint64
	release func(id uint64)

	mu     sync.Mutex
	queue  []Snapshot
	closed bool

	signal chan struct{}
	out    chan Snapshot
	done   chan struct{}
	once   sync.Once
}

func newSubscription(id uint64, initial Snapshot, release func(id uint64)) *Subscription {
	s := &Subscription{
		id:      id,
		release: release,
		queue:   []Snapshot{initial},
		signal:  make(chan struct{}, 1),
		out:     make(chan Snapshot),
		done:    make(chan struct{}),
	}
	go s.pump()

	return s
}

// Updates returns the snapshot stream. The first value is the state at subscription time. The
// channel is closed after Close.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.out
}

// Close stops the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.release(s.id)

		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()

		close(s.done)
	})
}

// push queues snap for delivery.
func (s *Subscription) push(snap Snapshot) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, snap)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()

			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}

		next := s.queue[0]
		s.queue[0] = Snapshot{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}
