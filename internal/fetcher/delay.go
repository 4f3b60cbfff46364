package fetcher

import (
	"context"
	"math/rand/v2"
	"time"
)

// Delay produces the length of the next human-like pause
type Delay func() time.Duration

// NoDelay never pauses. Tests use it to keep crawls instant.
func NoDelay() time.Duration { return 0 }

// RandomDelay draws uniformly from [min, max]
func RandomDelay(min, max time.Duration) Delay {
	if max < min {
		min, max = max, min
	}
	return func() time.Duration {
		if max == min {
			return min
		}
		return min + time.Duration(rand.Int64N(int64(max-min)+1))
	}
}

// FixedDelay always returns d
func FixedDelay(d time.Duration) Delay {
	return func() time.Duration { return d }
}

// Sleep blocks for d or until ctx is done, whichever comes first
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
