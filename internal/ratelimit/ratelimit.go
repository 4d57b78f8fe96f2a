// Package ratelimit guards the ingest API with a per-client token bucket.
package ratelimit

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Config sizes the limiter.
type Config struct {
	RequestsPerMinute int           // steady-state refill rate per client
	BurstSize         int           // bucket capacity, allows brief spikes above the rate
	CleanupInterval   time.Duration // sweep cadence for idle clients
}

// DefaultConfig suits the ingest API: batch submitters legitimately post
// hundreds of transactions in a short window.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 6000,
		BurstSize:         200,
		CleanupInterval:   time.Minute,
	}
}

// bucket is one client's token balance.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// refill advances the balance to now at ratePerSec, capped at burst.
func (b *bucket) refill(now time.Time, ratePerSec, burst float64) {
	b.tokens = math.Min(burst, b.tokens+now.Sub(b.lastSeen).Seconds()*ratePerSec)
	b.lastSeen = now
}

// Limiter is a token-bucket rate limiter keyed by client. A bucket is
// created on first sight with one token already spent; idle buckets are
// swept in the background.
type Limiter struct {
	cfg  Config
	now  func() time.Time
	stop chan struct{}

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New builds a limiter and starts its sweep goroutine. Call Stop when done.
func New(cfg Config) *Limiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		stop:    make(chan struct{}),
		buckets: make(map[string]*bucket),
	}
	go l.sweepLoop()
	return l
}

// WithClock replaces the time source, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow spends one token for key, reporting whether one was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: float64(l.cfg.BurstSize - 1), lastSeen: now}
		return true
	}

	b.refill(now, float64(l.cfg.RequestsPerMinute)/60.0, float64(l.cfg.BurstSize))
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Stop terminates the sweep goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep drops buckets idle for two sweep intervals.
func (l *Limiter) sweep() {
	cutoff := l.now().Add(-2 * l.cfg.CleanupInterval)
	l.mu.Lock()
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
	l.mu.Unlock()
}

// Middleware rejects requests once the caller's bucket is empty. Clients
// are keyed by IP, which goes through gin's trusted proxy handling.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": 1,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
