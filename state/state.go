package state

import (
	"context"
	"log/slog"
)

// Env is the ambient, read-from-any-goroutine handle every component of
// the controller closes over: the root cancellation context and the
// logger. It carries no mutable domain state — only Dispatch-reachable
// types may be mutated, and only on the single event-loop goroutine
// (spec.md §5).
type Env struct {
	Context context.Context
	Cancel  context.CancelCauseFunc
	Log     *slog.Logger
}

// Abort cancels the root context with cause, tearing down the whole
// controller. Reserved for internal assertion failures (spec.md §7):
// a broken map/switch/handle invariant is a bug, not peer misbehavior,
// and is not recoverable in place.
func (e *Env) Abort(cause error) {
	e.Log.Error("internal assertion failed, aborting", "cause", cause)
	e.Cancel(cause)
}
