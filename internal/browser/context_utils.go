// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext returns a context that carries the values of primary (for
// chromedp, the target connection) and is canceled when either primary or
// op ends. When op ends first its error is recorded as the cause, so a
// caller can still tell a deadline from a cancellation.
func CombineContext(primary, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancelCause(primary)
	stop := context.AfterFunc(op, func() {
		cancel(op.Err())
	})
	return combined, func() {
		stop()
		cancel(context.Canceled)
	}
}

// valueOnlyContext keeps the parent's values but none of its deadline or
// cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                    { return nil }
func (valueOnlyContext) Err() error                               { return nil }

// Detach returns a context that inherits values from ctx but is never
// canceled by it. Browser processes and failure snapshots hang off detached
// contexts so that they are torn down by Close, not by whichever operation
// happened to time out.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
