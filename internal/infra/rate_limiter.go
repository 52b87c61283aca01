package infra

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket limiter. Thread-safe, shared across the
// goroutines hitting the same exchange endpoint class.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a limiter allowing bursts of maxBurst requests,
// refilled at perSecond tokens per second.
func NewRateLimiter(maxBurst int, perSecond float64) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(maxBurst),
		maxTokens:  float64(maxBurst),
		refillRate: perSecond,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()

		t := time.NewTimer(time.Duration(float64(time.Second) / r.refillRate))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// TryAcquire attempts to take a token without blocking.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// refill adds tokens based on elapsed time. Caller holds the mutex.
func (r *RateLimiter) refill() {
	now := time.Now()
	r.tokens += now.Sub(r.lastRefill).Seconds() * r.refillRate
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
	r.lastRefill = now
}

// Binance spot weight limits are generous, but order placement is where bans
// hurt. Conservative buckets per endpoint class.
var (
	binanceOrderLimiter   *RateLimiter
	binanceAccountLimiter *RateLimiter
	binanceMarketLimiter  *RateLimiter
	limiterOnce           sync.Once
)

func initBinanceLimiters() {
	binanceOrderLimiter = NewRateLimiter(5, 10)
	binanceAccountLimiter = NewRateLimiter(5, 10)
	binanceMarketLimiter = NewRateLimiter(10, 20)
}

// OrderLimiter returns the shared limiter for order endpoints.
func OrderLimiter() *RateLimiter {
	limiterOnce.Do(initBinanceLimiters)
	return binanceOrderLimiter
}

// AccountLimiter returns the shared limiter for account endpoints.
func AccountLimiter() *RateLimiter {
	limiterOnce.Do(initBinanceLimiters)
	return binanceAccountLimiter
}

// MarketLimiter returns the shared limiter for market data endpoints.
func MarketLimiter() *RateLimiter {
	limiterOnce.Do(initBinanceLimiters)
	return binanceMarketLimiter
}
