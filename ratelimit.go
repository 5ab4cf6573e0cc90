package main

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

// TokenBucket represents a token bucket for rate limiting
type TokenBucket struct {
	tokens     float64 // current number of tokens
	capacity   float64 // maximum tokens
	refillRate float64 // tokens per second
	lastRefill time.Time
	lastSeen   time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full token bucket
func NewTokenBucket(capacity float64, refillRate float64) *TokenBucket {
	now := time.Now()
	return &TokenBucket{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: refillRate,
		lastRefill: now,
		lastSeen:   now,
	}
}

// Allow consumes a token if one is available
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	tb.lastSeen = tb.lastRefill

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}

	return false
}

// refill adds tokens based on elapsed time
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now
}

// Tokens returns the current number of tokens
func (tb *TokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return tb.tokens
}

// untilFull is how long the bucket needs to refill completely.
func (tb *TokenBucket) untilFull() time.Duration {
	missing := tb.capacity - tb.Tokens()
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / tb.refillRate * float64(time.Second))
}

func (tb *TokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastSeen
}

// RateLimiter throttles downloads per client
type RateLimiter struct {
	buckets   map[string]*TokenBucket
	mu        sync.RWMutex
	rpm       int // requests per minute
	burstSize int // maximum burst size
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rpm, burstSize int) *RateLimiter {
	return &RateLimiter{
		buckets:   make(map[string]*TokenBucket),
		rpm:       rpm,
		burstSize: burstSize,
	}
}

// Allow checks if a request from the given key is allowed. The limiter lock
// is held while the token is taken so Cleanup cannot drop the bucket midway.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, exists := rl.buckets[key]
	if !exists {
		bucket = NewTokenBucket(float64(rl.burstSize), float64(rl.rpm)/60.0)
		rl.buckets[key] = bucket
	}

	return bucket.Allow()
}

// GetRemainingTokens returns remaining tokens for a key
func (rl *RateLimiter) GetRemainingTokens(key string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	if bucket, exists := rl.buckets[key]; exists {
		return int(bucket.Tokens())
	}

	return rl.burstSize
}

// GetResetTime returns when the bucket for key will be full again
func (rl *RateLimiter) GetResetTime(key string) time.Time {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	if bucket, exists := rl.buckets[key]; exists {
		return time.Now().Add(bucket.untilFull())
	}

	return time.Now()
}

// Cleanup removes full buckets that have been idle for longer than maxAge
func (rl *RateLimiter) Cleanup(maxAge time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for key, bucket := range rl.buckets {
		if bucket.idleSince().Before(cutoff) && bucket.Tokens() >= bucket.capacity {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// runCleanup calls Cleanup every interval until ctx is done.
func (rl *RateLimiter) runCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanupOnce(maxAge)
		}
	}
}

// cleanupOnce drops idle buckets and logs what is left.
func (rl *RateLimiter) cleanupOnce(maxAge time.Duration) int {
	removed := rl.Cleanup(maxAge)
	buckets, tokens := rl.Stats()
	log.WithFields(log.Fields{
		"removed": removed,
		"buckets": buckets,
		"tokens":  tokens,
	}).Debug("rate limiter cleanup")
	return removed
}

// Stats returns rate limiter statistics
func (rl *RateLimiter) Stats() (buckets int, totalTokens float64) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	buckets = len(rl.buckets)
	for _, bucket := range rl.buckets {
		totalTokens += bucket.Tokens()
	}

	return buckets, totalTokens
}

// getClientKey identifies the client by its peer address. X-Forwarded-For is
// honoured only when trustForwardedFor is set, i.e. behind a trusted proxy.
func getClientKey(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}

	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}

	return "unknown"
}

// rateLimitMiddleware answers 429 once a client has used up its bucket
func rateLimitMiddleware(limiter *RateLimiter, trustForwardedFor bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		clientKey := getClientKey(r, trustForwardedFor)
		limit := strconv.Itoa(limiter.rpm)

		if !limiter.Allow(clientKey) {
			resetTime := limiter.GetResetTime(clientKey)
			retryAfter := int(time.Until(resetTime).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}

			log.WithField("client", clientKey).Warn("download rate limit exceeded")

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", resetTime.Format(time.RFC3339))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests")
			return
		}

		w.Header().Set("X-RateLimit-Limit", limit)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.GetRemainingTokens(clientKey)))
		w.Header().Set("X-RateLimit-Reset", limiter.GetResetTime(clientKey).Format(time.RFC3339))

		next.ServeHTTP(w, r)
	})
}
