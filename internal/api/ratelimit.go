package api

import (
	"context"
	"sync"
	"time"
)

// rateLimiter caps requests inside a trailing 1-second window. It blocks the
// caller until a slot frees up; it never rejects.
type rateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time
}

func newRateLimiter(maxPerSecond int) *rateLimiter {
	return &rateLimiter{
		max:    maxPerSecond,
		window: time.Second,
	}
}

// wait blocks until the caller may issue a request. It reports whether it had
// to block at all, so the client can count rate-limited requests.
func (l *rateLimiter) wait(ctx context.Context) (bool, error) {
	blocked := false
	for {
		l.mu.Lock()
		now := time.Now()
		l.prune(now)
		if len(l.stamps) < l.max {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return blocked, nil
		}
		sleep := l.stamps[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		blocked = true
		select {
		case <-ctx.Done():
			return blocked, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// prune drops timestamps that left the trailing window. Caller holds l.mu.
func (l *rateLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	l.stamps = l.stamps[i:]
}
