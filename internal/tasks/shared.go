package tasks

import (
	"sync"
	"sync/atomic"
)

// Shared distributes the outcome of one future to any number of waiters.
type Shared[T any] struct {
	src Future[T]

	mu        sync.Mutex
	waiters   int
	canceling bool
}

// Share wraps src. The caller hands over cancellation of src to the Shared.
func Share[T any](src Future[T]) *Shared[T] {
	return &Shared[T]{src: src}
}

// Subscribe returns a new future that completes with the shared outcome.
// Canceling it only cancels the shared computation if no other subscriber
// is left. The second result is false if the computation is already being
// canceled and can no longer be joined.
func (s *Shared[T]) Subscribe() (Future[T], bool) {
	s.mu.Lock()
	if s.canceling {
		s.mu.Unlock()
		return Future[T]{}, false
	}
	s.waiters++
	s.mu.Unlock()

	p, f := NewPromise[T]()
	// Canceling the last waiter cancels src, whose callback releases again
	// on the same goroutine.
	var released atomic.Bool
	release := func() {
		if released.CompareAndSwap(false, true) {
			s.release()
		}
	}
	p.OnCancel(release)
	s.src.s.subscribe(func() {
		if s.src.IsCanceled() {
			p.Cancel()
		} else {
			p.Settle(s.src.Result())
		}
		release()
	})
	return f, true
}

// Waiters returns the number of subscribers that are still waiting.
func (s *Shared[T]) Waiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters
}

// Source returns the shared future.
func (s *Shared[T]) Source() Future[T] { return s.src }

func (s *Shared[T]) release() {
	s.mu.Lock()
	s.waiters--
	last := s.waiters == 0 && !s.src.IsFinished()
	if last {
		s.canceling = true
	}
	s.mu.Unlock()
	if last {
		s.src.Cancel()
	}
}
