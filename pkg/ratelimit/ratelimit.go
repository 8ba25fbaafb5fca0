// Package ratelimit applies a token bucket per string key. The engine uses
// it as a per-chat flood guard.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const sweepInterval = 256

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Keyed struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu    sync.Mutex
	byKey map[string]*entry
	hits  uint64
}

// NewKeyed creates a per-key limiter. Returns nil for non-positive rps or
// burst; a nil limiter allows everything.
func NewKeyed(rps float64, burst int, idleTTL time.Duration) *Keyed {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &Keyed{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		byKey:   make(map[string]*entry),
	}
}

// Allow reports whether one token can be consumed for key at now. Idle
// entries are evicted on a fixed cadence of calls.
func (l *Keyed) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = e
	}
	e.lastSeen = now

	l.hits++
	if l.hits%sweepInterval == 0 {
		l.evictIdle(now)
	}

	return e.limiter.AllowN(now, 1)
}

func (l *Keyed) evictIdle(now time.Time) {
	for key, e := range l.byKey {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.byKey, key)
		}
	}
}
