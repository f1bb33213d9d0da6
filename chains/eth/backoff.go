package eth

import (
	"context"
	"time"

	"github.com/sisu-network/txconfirm/config"
)

// Backoff returns the delay before the given restart attempt (starting at 1).
type Backoff interface {
	Next(attempt int) time.Duration
}

// exponentialBackoff doubles the delay on every attempt, capped at max.
type exponentialBackoff struct {
	min time.Duration
	max time.Duration
}

func newBackoff(cfg config.Chain) Backoff {
	return &exponentialBackoff{
		min: time.Duration(cfg.RestartBackoffMin) * time.Millisecond,
		max: time.Duration(cfg.RestartBackoffMax) * time.Millisecond,
	}
}

func (b *exponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := b.min
	if delay <= 0 {
		delay = time.Millisecond
	}

	for i := 1; i < attempt; i++ {
		if b.max > 0 && delay >= b.max/2 {
			delay = b.max
			break
		}
		delay *= 2
	}

	if b.max > 0 && delay > b.max {
		delay = b.max
	}

	return delay
}

// sleepCtx waits for d or until ctx is done. It returns false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
