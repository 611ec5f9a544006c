package driver

import (
	"context"
	"time"
)

// CombineContext returns a context derived from base that is also canceled when
// op is done, and that carries op's deadline when it is earlier than base's.
// base carries the backend's connection values; op carries the caller's deadline.
func CombineContext(base, op context.Context) (context.Context, context.CancelFunc) {
	var (
		combined context.Context
		cancel   context.CancelFunc
	)
	if d, ok := op.Deadline(); ok {
		if bd, bok := base.Deadline(); !bok || d.Before(bd) {
			combined, cancel = context.WithDeadline(base, d)
		}
	}
	if combined == nil {
		combined, cancel = context.WithCancel(base)
	}

	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// valueOnlyContext keeps the parent's values but none of its cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                       { return nil }
func (valueOnlyContext) Err() error                                  { return nil }

// Detach returns a context holding ctx's values that is never canceled with it.
// Cleanup such as the failure screenshot runs on a detached context after the
// scenario deadline has already fired.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
