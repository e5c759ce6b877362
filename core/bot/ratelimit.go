package bot

import (
	"sync"
	"time"
)

// rateLimiter enforces a minimum interval between events from the same
// identity. Zero interval disables limiting.
type rateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	lastSeen map[string]time.Time
	now      func() time.Time
}

func newRateLimiter(interval time.Duration, now func() time.Time) *rateLimiter {
	if now == nil {
		now = time.Now
	}
	return &rateLimiter{
		interval: interval,
		lastSeen: make(map[string]time.Time),
		now:      now,
	}
}

func (l *rateLimiter) allow(waID string) bool {
	if l == nil || l.interval <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now()
	if last, ok := l.lastSeen[waID]; ok && ts.Sub(last) < l.interval {
		return false
	}
	l.lastSeen[waID] = ts
	return true
}
