package utils

import (
	"context"
	"time"
)

// ContextSleep pauses the current goroutine for d or until ctx is cancelled,
// whichever comes first. Returns nil iff the context was cancelled.
func ContextSleep(ctx context.Context, d time.Duration) *time.Time {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil
	case t := <-timer.C:
		return &t
	}
}
