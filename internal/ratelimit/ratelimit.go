// Package ratelimit guards the public accept path with per-remote-address
// token buckets.
package ratelimit

import (
	"sync"
	"time"

	"github.com/juju/ratelimit"
)

type entry struct {
	bucket   *ratelimit.Bucket
	lastSeen time.Time
}

// Limiter hands out connection permits per remote IP. A rate of 0 disables
// limiting entirely.
type Limiter struct {
	mu      sync.Mutex
	perAddr map[string]*entry
	rate    float64
	burst   int64
}

// New creates a limiter allowing rate connections per second with the given
// burst per remote address.
func New(rate float64, burst int64) *Limiter {
	return &Limiter{perAddr: make(map[string]*entry), rate: rate, burst: burst}
}

// Allow reports whether a new connection from addr may proceed, consuming a
// token if so.
func (l *Limiter) Allow(addr string) bool {
	if l.rate <= 0 {
		return true
	}
	l.mu.Lock()
	e, ok := l.perAddr[addr]
	if !ok {
		e = &entry{bucket: ratelimit.NewBucketWithRate(l.rate, l.burst)}
		l.perAddr[addr] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()
	return e.bucket.TakeAvailable(1) > 0
}

// Cleanup drops buckets idle for longer than maxIdle and returns how many
// were removed.
func (l *Limiter) Cleanup(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for addr, e := range l.perAddr {
		if e.lastSeen.Before(cutoff) {
			delete(l.perAddr, addr)
			removed++
		}
	}
	return removed
}
