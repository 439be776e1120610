package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 15 * time.Minute

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiter hands out one token bucket per identity.
type limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*limiterEntry
	now     func() time.Time
}

func newLimiter(perMinute float64, burst int) *limiter {
	return &limiter{
		limit:   rate.Limit(perMinute / 60),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

// Allow spends one token from key's bucket.
func (l *limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		if len(l.entries) >= 1024 {
			l.evict(now)
		}
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

func (l *limiter) evict(now time.Time) {
	for k, e := range l.entries {
		if now.Sub(e.seen) > limiterIdle {
			delete(l.entries, k)
		}
	}
}
