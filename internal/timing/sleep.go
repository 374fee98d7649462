// internal/timing/sleep.go
package timing

import (
	"context"
	"time"
)

// SleepFunc pauses for d or until ctx is done. Components take one of these
// so tests can observe and skip their suspension points.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep blocks for d, returning ctx.Err() early if the context ends first.
// A non-positive duration still honors an already canceled context.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
