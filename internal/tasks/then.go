package tasks

import "sync/atomic"

// Then returns a future for fn applied to the value of f. fn runs on exec. If
// f fails, the returned future fails with the same error and fn does not
// run. If f is canceled, so is the returned future. Canceling the returned
// future cancels f.
func Then[T, U any](f Future[T], exec Executor, fn func(T) (U, error)) Future[U] {
	p, out := NewPromise[U]()
	p.OnCancel(f.Cancel)
	f.OnFinished(exec, func() {
		v, err := f.Result()
		switch {
		case f.IsCanceled():
			p.Cancel()
		case err != nil:
			p.Reject(err)
		case p.IsCanceled():
		default:
			u, err := call(fn, v)
			p.Settle(u, err)
		}
	})
	return out
}

// ThenFuture is like Then for continuations that themselves return a future.
func ThenFuture[T, U any](f Future[T], exec Executor, fn func(T) Future[U]) Future[U] {
	return Handle(f, exec, func(v T, err error) Future[U] {
		if err != nil {
			return Failed[U](err)
		}
		return fn(v)
	})
}

// Handle runs fn once f finished with a value or an error. Only cancellation
// skips fn.
func Handle[T, U any](f Future[T], exec Executor, fn func(T, error) Future[U]) Future[U] {
	p, out := NewPromise[U]()
	p.OnCancel(f.Cancel)
	f.OnFinished(exec, func() {
		if f.IsCanceled() {
			p.Cancel()
			return
		}
		if p.IsCanceled() {
			return
		}
		v, err := f.Result()
		forward(callFuture(func() Future[U] { return fn(v, err) }), p)
	})
	return out
}

// Run executes fn on exec. fn does not run if the future is canceled before
// exec gets to it.
func Run[T any](exec Executor, fn func() (T, error)) Future[T] {
	return RunTask(exec, func(Promise[T]) (T, error) { return fn() })
}

// RunTask is like Run but hands the promise to fn so that it can report
// progress and notice cancellation.
func RunTask[T any](exec Executor, fn func(p Promise[T]) (T, error)) Future[T] {
	p, f := NewPromise[T]()
	exec.Execute(func() {
		if p.IsCanceled() {
			return
		}
		p.Settle(call(fn, p))
	})
	return f
}

// WhenAll waits for all futures. It fails with the first error, which
// cancels the remaining futures. Canceling the returned future cancels all
// inputs.
func WhenAll[T any](fs ...Future[T]) Future[[]T] {
	p, out := NewPromise[[]T]()
	cancelAll := func() {
		for _, f := range fs {
			f.Cancel()
		}
	}
	p.OnCancel(cancelAll)
	if len(fs) == 0 {
		p.Resolve(nil)
		return out
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(fs)))
	for _, f := range fs {
		f.s.subscribe(func() {
			_, err := f.Result()
			switch {
			case f.IsCanceled():
				p.Cancel()
				return
			case err != nil:
				if p.Reject(err) {
					cancelAll()
				}
				return
			}
			if remaining.Add(-1) == 0 {
				values := make([]T, len(fs))
				for i, f := range fs {
					values[i], _ = f.Result()
				}
				p.Resolve(values)
			}
		})
	}
	return out
}

func forward[T any](inner Future[T], p Promise[T]) {
	p.OnCancel(inner.Cancel)
	inner.s.subscribe(func() {
		if inner.IsCanceled() {
			p.Cancel()
			return
		}
		p.Settle(inner.Result())
	})
}

func call[T, U any](fn func(T) (U, error), v T) (u U, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return fn(v)
}

func callFuture[T any](fn func() Future[T]) (f Future[T]) {
	defer func() {
		if r := recover(); r != nil {
			f = Failed[T](recovered(r))
		}
	}()
	f = fn()
	if f.s == nil {
		return Failed[T](ErrNotFinished)
	}
	return f
}
