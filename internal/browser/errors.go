// internal/browser/errors.go
package browser

import (
	"context"
	"errors"

	"github.com/xkilldash9x/cookiebot/internal/faults"
)

// classify turns an engine error into a fault. opCtx is the caller's
// operation context; its deadline is what the flow step was bounded by.
func classify(opCtx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return faults.New(faults.InteractionTimeout, op, err)
	}
	if errors.Is(err, context.Canceled) && opCtx.Err() != nil {
		// Cancellation stays visible to errors.Is(err, context.Canceled).
		return faults.New(faults.UnexpectedInteraction, op, opCtx.Err())
	}
	return faults.New(faults.UnexpectedInteraction, op, err)
}
