package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

var (
	// ErrCanceled is the error of a canceled future.
	ErrCanceled = errors.New("tasks: canceled")
	// ErrNotFinished is returned by Result for a future that is still running.
	ErrNotFinished = errors.New("tasks: not finished")
)

// PanicError wraps a value recovered from a panicking computation.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Unwrap exposes the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// NewPanicError wraps v together with the stack of the calling goroutine.
// Call it from the deferred function that recovered v.
func NewPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func recovered(v any) error { return NewPanicError(v) }

type state[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	finished  bool
	canceled  bool
	value     T
	err       error
	callbacks []func()
	onCancel  []func()
	progress  Progress
}

func newState[T any]() *state[T] {
	return &state[T]{done: make(chan struct{})}
}

// settle completes the state. It returns false if it was already finished.
func (s *state[T]) settle(v T, err error, canceled bool) bool {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return false
	}
	s.finished = true
	s.canceled = canceled
	s.value = v
	s.err = err
	callbacks := s.callbacks
	s.callbacks = nil
	var cancelHooks []func()
	if canceled {
		cancelHooks = s.onCancel
	}
	s.onCancel = nil
	close(s.done)
	s.mu.Unlock()

	for _, fn := range cancelHooks {
		fn()
	}
	for _, fn := range callbacks {
		fn()
	}
	return true
}

func (s *state[T]) subscribe(fn func()) {
	s.mu.Lock()
	if !s.finished {
		s.callbacks = append(s.callbacks, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

// Future is the consuming side of an asynchronous computation. The zero
// value is not usable; futures come from NewPromise and the helpers of this
// package.
type Future[T any] struct {
	s *state[T]
}

// Promise is the producing side of an asynchronous computation.
type Promise[T any] struct {
	s *state[T]
}

// NewPromise creates a connected promise and future.
func NewPromise[T any]() (Promise[T], Future[T]) {
	s := newState[T]()
	return Promise[T]{s: s}, Future[T]{s: s}
}

// Resolved returns a future that already holds v.
func Resolved[T any](v T) Future[T] {
	p, f := NewPromise[T]()
	p.Resolve(v)
	return f
}

// Failed returns a future that already holds err.
func Failed[T any](err error) Future[T] {
	p, f := NewPromise[T]()
	p.Reject(err)
	return f
}

// Canceled returns a future that is already canceled.
func Canceled[T any]() Future[T] {
	_, f := NewPromise[T]()
	f.Cancel()
	return f
}

// Resolve completes the computation with v. It reports whether the promise
// was still pending.
func (p Promise[T]) Resolve(v T) bool { return p.s.settle(v, nil, false) }

// Reject completes the computation with err.
func (p Promise[T]) Reject(err error) bool {
	var zero T
	return p.s.settle(zero, err, false)
}

// Settle completes the computation with v or, if err is not nil, with err.
func (p Promise[T]) Settle(v T, err error) bool {
	if err != nil {
		return p.Reject(err)
	}
	return p.Resolve(v)
}

// Cancel cancels the computation from the producing side.
func (p Promise[T]) Cancel() { Future[T](p).Cancel() }

// IsCanceled reports whether a consumer canceled the computation.
func (p Promise[T]) IsCanceled() bool { return Future[T](p).IsCanceled() }

// OnCancel registers fn to run if the computation gets canceled. If it has
// been canceled already, fn runs immediately.
func (p Promise[T]) OnCancel(fn func()) {
	s := p.s
	s.mu.Lock()
	if !s.finished {
		s.onCancel = append(s.onCancel, fn)
		s.mu.Unlock()
		return
	}
	canceled := s.canceled
	s.mu.Unlock()
	if canceled {
		fn()
	}
}

// Future returns the consuming side of p.
func (p Promise[T]) Future() Future[T] { return Future[T](p) }

// Done returns a channel that is closed once the future finished.
func (f Future[T]) Done() <-chan struct{} { return f.s.done }

// IsFinished reports whether the future holds a value, an error or was
// canceled.
func (f Future[T]) IsFinished() bool {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.finished
}

// IsCanceled reports whether the future was canceled.
func (f Future[T]) IsCanceled() bool {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.canceled
}

// Result returns the outcome without waiting. A canceled future yields
// ErrCanceled and a pending one ErrNotFinished.
func (f Future[T]) Result() (T, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if !f.s.finished {
		var zero T
		return zero, ErrNotFinished
	}
	if f.s.canceled {
		var zero T
		return zero, ErrCanceled
	}
	return f.s.value, f.s.err
}

// Wait blocks until the future finished or ctx is done. Giving up on the
// wait because of ctx does not cancel the future.
func (f Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.s.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel cancels the future and, through registered hooks, the computations
// it depends on. Canceling a finished future has no effect.
func (f Future[T]) Cancel() {
	var zero T
	f.s.settle(zero, nil, true)
}

// OnFinished runs fn on exec once the future finished.
func (f Future[T]) OnFinished(exec Executor, fn func()) {
	f.s.subscribe(func() { exec.Execute(fn) })
}

// Progress returns the progress reported by the producer.
func (f Future[T]) Progress() Progress {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.progress
}

// Progress describes how far a computation got.
type Progress struct {
	Value   int64
	Maximum int64
	Text    string
}

// SetProgressText sets the status text of the computation.
func (p Promise[T]) SetProgressText(text string) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.progress.Text = text
}

// SetProgressMaximum sets the total amount of work.
func (p Promise[T]) SetProgressMaximum(n int64) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.progress.Maximum = n
}

// SetProgressValue records the amount of finished work. It returns false if
// the computation was canceled and should stop.
func (p Promise[T]) SetProgressValue(v int64) bool {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.progress.Value = v
	return !p.s.canceled
}
