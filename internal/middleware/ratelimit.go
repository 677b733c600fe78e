package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/blok13/clanportal/pkg/response"
)

const (
	// cleanupThreshold is the minimum map size before a cleanup pass runs.
	cleanupThreshold = 500
	// maxIdleAge is the duration after which an idle key is eligible for cleanup.
	maxIdleAge = 10 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter hands out one token bucket per key (user ID or client IP) and prunes idle keys inline.
type KeyedRateLimiter struct {
	entries map[string]*limiterEntry
	mu      sync.Mutex
	r       rate.Limit
	b       int
	now     func() time.Time
}

// NewKeyedRateLimiter creates a limiter allowing r events per second with burst b per key.
func NewKeyedRateLimiter(r rate.Limit, b int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		entries: make(map[string]*limiterEntry),
		r:       r,
		b:       b,
		now:     time.Now,
	}
}

// Limiter returns the bucket for key, pruning stale entries once the map exceeds cleanupThreshold.
func (l *KeyedRateLimiter) Limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.entries) > cleanupThreshold {
		cutoff := now.Add(-maxIdleAge)
		for k, e := range l.entries {
			if e.lastSeen.Before(cutoff) {
				delete(l.entries, k)
			}
		}
	}

	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.r, l.b)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Len returns the number of tracked keys.
func (l *KeyedRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// RateLimit throttles requests per authenticated user, falling back to client IP.
func RateLimit(limiter *KeyedRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if v, ok := c.Get(ContextUserID); ok {
			if s, ok := v.(interface{ String() string }); ok {
				key = "user:" + s.String()
			}
		}
		if !limiter.Limiter(key).Allow() {
			response.TooManyRequests(c, "too many requests, slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}
