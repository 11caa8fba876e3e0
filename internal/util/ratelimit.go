package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces calls evenly at a fixed rate per minute. The first call
// proceeds immediately; there is no burst beyond a single token.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewRateLimiter creates a RateLimiter that allows perMinute operations per
// minute. A non-positive perMinute disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{}
	if perMinute > 0 {
		rl.interval = time.Minute / time.Duration(perMinute)
	}
	return rl
}

// Wait blocks until the caller's slot arrives or ctx is cancelled. A cancelled
// wait gives its slot back.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	now := time.Now()
	slot := rl.next
	if slot.Before(now) {
		slot = now
	}
	rl.next = slot.Add(rl.interval)
	rl.mu.Unlock()

	d := slot.Sub(now)
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		rl.mu.Lock()
		if rl.next.Equal(slot.Add(rl.interval)) {
			rl.next = slot
		}
		rl.mu.Unlock()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
