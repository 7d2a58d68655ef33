package httpapi

import (
	"context"
	"sync"
	"time"
)

// attemptLimiter is the process-local sliding-window limiter used when no
// shared backend is configured.
type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false, nil
	}
	l.entries[key] = append(kept, now)
	return true, nil
}

func (l *attemptLimiter) Reset(_ context.Context, key string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
	return nil
}
