package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// KeyedLimiter hands out one token bucket per key. Buckets idle for longer
// than the idle window are dropped; a full bucket refills well within it.
type KeyedLimiter struct {
	mu        sync.Mutex
	buckets   *cache.Cache
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
}

// NewKeyedLimiter allows perMinute events per key with a burst of the same
// size.
func NewKeyedLimiter(perMinute int) *KeyedLimiter {
	return newKeyedLimiter(perMinute, 10*time.Minute)
}

func newKeyedLimiter(perMinute int, idle time.Duration) *KeyedLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &KeyedLimiter{
		// No janitor goroutine; expired buckets are swept from Allow.
		buckets:   cache.New(idle, 0),
		limit:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:     perMinute,
		idle:      idle,
		lastSweep: time.Now(),
	}
}

func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	if now := time.Now(); now.Sub(l.lastSweep) >= l.idle {
		l.buckets.DeleteExpired()
		l.lastSweep = now
	}
	var b *rate.Limiter
	if v, ok := l.buckets.Get(key); ok {
		b = v.(*rate.Limiter)
	} else {
		b = rate.NewLimiter(l.limit, l.burst)
	}
	l.buckets.Set(key, b, cache.DefaultExpiration)
	l.mu.Unlock()
	return b.Allow()
}

// Len reports how many buckets are currently held.
func (l *KeyedLimiter) Len() int {
	return l.buckets.ItemCount()
}

// RateLimit rejects requests with 429 once the caller exceeds the limiter.
// Authenticated callers are keyed by user id, others by client IP.
func RateLimit(l *KeyedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := UserID(c)
		if !ok {
			key = "ip:" + c.ClientIP()
		}
		if !l.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "message": "Too many requests, slow down"})
			return
		}
		c.Next()
	}
}
