package tasks

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Executor runs functions, possibly later and on another goroutine.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(fn func())

// Execute calls e(fn).
func (e ExecutorFunc) Execute(fn func()) { e(fn) }

// Inline runs functions immediately on the calling goroutine.
var Inline Executor = ExecutorFunc(func(fn func()) { fn() })

// Serial runs functions one at a time, in submission order, on a single
// goroutine. It stands for the owning context that graph mutation and cache
// bookkeeping happen on.
type Serial struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewSerial starts a serial executor.
func NewSerial() *Serial {
	s := &Serial{done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

// Execute queues fn. Functions submitted after Close are dropped.
func (s *Serial) Execute(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, fn)
	s.cond.Signal()
}

// Close runs the queued functions and stops the executor.
func (s *Serial) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
	<-s.done
}

func (s *Serial) loop() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()
		fn()
	}
}

// Pool runs functions on goroutines, at most a fixed number at a time.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewPool creates a pool that runs up to workers functions concurrently.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

// Execute runs fn as soon as a worker slot is free.
func (p *Pool) Execute(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		fn()
	}()
}

// Wait blocks until all submitted functions returned.
func (p *Pool) Wait() { p.wg.Wait() }
