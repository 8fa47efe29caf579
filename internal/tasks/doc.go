// Package tasks provides futures for asynchronous pipeline evaluation.
//
// A Promise is the producing side of a computation and a Future the consuming
// side. Futures are chained with Then and ThenFuture; continuations run on an
// Executor. Canceling a future cancels the futures it was derived from, and a
// continuation whose input was canceled never runs its body. Panics raised by
// continuations are recovered and delivered as a *PanicError.
//
// Shared lets several independent waiters subscribe to one computation. The
// computation is canceled only when its last subscriber cancels.
package tasks
