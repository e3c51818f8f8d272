// Package ratelimit throttles API clients with one token bucket per client IP.
package ratelimit

import (
	"sync"
	"time"

	"github.com/raaihank/compliance-sentinel/internal/config"
	"golang.org/x/time/rate"
)

// Limiter hands out per-client token buckets.
type Limiter struct {
	config  config.RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a rate limiter from the rate limit configuration.
func New(cfg config.RateLimitConfig) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMinute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = time.Hour
	}
	return &Limiter{
		config:  cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow checks if a request from the given client IP is allowed
func (l *Limiter) Allow(clientIP string) bool {
	if !l.config.Enabled {
		return true
	}

	now := l.now()
	return l.getBucket(clientIP, now).limiter.AllowN(now, 1)
}

// Tokens reports the tokens left for a client; unknown clients have a full bucket.
func (l *Limiter) Tokens(clientIP string) float64 {
	l.mu.Lock()
	b, ok := l.buckets[clientIP]
	l.mu.Unlock()

	if !ok {
		return float64(l.config.Burst)
	}
	return b.limiter.TokensAt(l.now())
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) getBucket(clientIP string, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[clientIP]
	if !ok {
		perSecond := rate.Limit(float64(l.config.RequestsPerMinute) / 60.0)
		b = &bucket{limiter: rate.NewLimiter(perSecond, l.config.Burst)}
		l.buckets[clientIP] = b
	}
	b.lastSeen = now
	return b
}

// CleanupOldBuckets removes buckets idle for longer than the configured TTL
// and returns how many were removed.
func (l *Limiter) CleanupOldBuckets() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.config.IdleTTL)
	removed := 0
	for ip, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
			removed++
		}
	}
	return removed
}
