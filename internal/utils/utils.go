package utils

import (
	"context"
	"math/rand/v2"
	"time"
)

var after = time.After

// WaitFor blocks for d or until ctx is done, whichever comes first.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-after(d):
		return nil
	}
}

// WaitJittered waits for d plus a random extra of up to half of d.
func WaitJittered(ctx context.Context, d time.Duration) error {
	return WaitFor(ctx, Jitter(d))
}

// Jitter returns d extended by a random amount in [0, d/2].
func Jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(int64(d)/2+1))
}
