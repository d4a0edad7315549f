package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	// DefaultFrameRate is the sustained number of WebSocket frames a connection may send per second.
	DefaultFrameRate = 5
	// DefaultFrameBurst is the number of frames a connection may send at once.
	DefaultFrameBurst = 10
	// DefaultRequestRate is the sustained number of HTTP requests per second per client address.
	DefaultRequestRate = 10
	// DefaultRequestBurst is the HTTP burst per client address.
	DefaultRequestBurst = 20
)

// RateLimiter is a set of token buckets keyed by caller. It smooths floods of
// frames or requests; the hourly quotas live in security.RateGate.
type RateLimiter struct {
	every time.Duration
	burst int

	mu     sync.Mutex
	limits map[string]*rate.Limiter
}

// NewRateLimiter creates a limiter allowing perSecond events with the given burst per key.
func NewRateLimiter(perSecond, burst int) *RateLimiter {
	if perSecond <= 0 {
		perSecond = DefaultRequestRate
	}
	if burst <= 0 {
		burst = DefaultRequestBurst
	}
	return &RateLimiter{
		every:  time.Second / time.Duration(perSecond),
		burst:  burst,
		limits: make(map[string]*rate.Limiter),
	}
}

// getLimiter gets or creates a limiter for the given key.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limits[key]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Every(rl.every), rl.burst)
	rl.limits[key] = limiter
	return limiter
}

// Allow checks if an event is allowed for the given key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Wait waits for an event to be allowed.
// Returns error if the context is cancelled or the wait would exceed its deadline.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	return rl.getLimiter(key).Wait(ctx)
}

// Forget drops the bucket for key, e.g. when a connection closes.
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limits, key)
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limits)
}

// BlockChecker reports whether a client address is on the block list.
type BlockChecker interface {
	IsBlocked(origin string) bool
}

// RejectBlocked refuses every request from a blocked client address.
func RejectBlocked(checker BlockChecker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if checker.IsBlocked(c.RealIP()) {
				return c.JSON(http.StatusForbidden, map[string]string{
					"code":  "SUSPICIOUS_ACTIVITY",
					"error": "access denied due to suspicious activity",
				})
			}
			return next(c)
		}
	}
}

// RequestRateLimit throttles HTTP requests per client address.
func RequestRateLimit(rl *RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.Allow(c.RealIP()) {
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"code":  "RATE_LIMIT_EXCEEDED",
					"error": "too many requests",
				})
			}
			return next(c)
		}
	}
}
