package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// Limiter keeps one token bucket per key (client IP, API key). Buckets idle
// for longer than the idle TTL are dropped on the next sweep.
type Limiter struct {
	mu      sync.Mutex
	m       map[string]*entry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
	sweep   time.Time
}

// New allows rps requests per second per key with the given burst.
func New(rps float64, burst int, idleTTL time.Duration) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &Limiter{
		m:       make(map[string]*entry),
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Allow consumes one token for key and reports whether it was available.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.sweep) > l.idleTTL {
		for k, e := range l.m {
			if now.Sub(e.seen) > l.idleTTL {
				delete(l.m, k)
			}
		}
		l.sweep = now
	}

	e, ok := l.m[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.m[key] = e
	}
	e.seen = now
	return e.limiter.AllowN(now, 1)
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
