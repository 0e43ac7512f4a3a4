package relay

import (
	"context"
	"sync/atomic"
)

// CancelSignal reports whether the downstream consumer has disconnected.
// It is a pure predicate with no delivery mechanism of its own: the pump
// samples it once per iteration, so shutdown latency is bounded by the
// poll timeout rather than by how the signal is driven.
type CancelSignal func() bool

// Flag is a trip-once cancellation flag safe for concurrent use.
type Flag struct {
	tripped atomic.Bool
}

func NewFlag() *Flag {
	return &Flag{}
}

// Trip marks the flag cancelled. Further calls are no-ops.
func (f *Flag) Trip() {
	f.tripped.Store(true)
}

// Cancelled reports whether Trip has been called.
func (f *Flag) Cancelled() bool {
	return f.tripped.Load()
}

// Signal returns the flag as a CancelSignal.
func (f *Flag) Signal() CancelSignal {
	return f.Cancelled
}

// ContextSignal adapts a context to a CancelSignal.
func ContextSignal(ctx context.Context) CancelSignal {
	return func() bool {
		return ctx.Err() != nil
	}
}

// Never is a CancelSignal that never fires.
func Never() bool {
	return false
}
