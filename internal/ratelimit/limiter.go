package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles completion requests by request count and estimated tokens.
type Limiter struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
	enabled  bool

	mu              sync.Mutex
	totalRequests   int64
	blockedRequests int64
	totalTokens     int64
}

// Config holds rate limiter configuration.
type Config struct {
	Enabled           bool
	RequestsPerMinute int
	TokensPerMinute   int64
	BurstSize         int
}

// DefaultConfig returns the default rate limiter configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RequestsPerMinute: 30,
		TokensPerMinute:   60000,
		BurstSize:         5,
	}
}

// NewLimiter creates a new rate limiter with the given configuration.
// A zero per-minute value leaves that dimension unlimited.
func NewLimiter(cfg Config) *Limiter {
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}

	l := &Limiter{enabled: cfg.Enabled}
	if cfg.RequestsPerMinute > 0 {
		l.requests = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
	}
	if cfg.TokensPerMinute > 0 {
		// Token burst is 10% of the per-minute allowance
		tokenBurst := int(cfg.TokensPerMinute / 10)
		if tokenBurst < 1 {
			tokenBurst = 1
		}
		l.tokens = rate.NewLimiter(rate.Limit(float64(cfg.TokensPerMinute)/60.0), tokenBurst)
	}
	return l
}

// Acquire blocks until a request slot and estimatedTokens of capacity are available
// or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, estimatedTokens int64) error {
	if l == nil || !l.enabled {
		return nil
	}

	l.mu.Lock()
	l.totalRequests++
	l.mu.Unlock()

	if l.requests != nil {
		if err := l.requests.Wait(ctx); err != nil {
			l.recordBlocked()
			return fmt.Errorf("rate limit: request slot: %w", err)
		}
	}
	if l.tokens != nil && estimatedTokens > 0 {
		n := int(estimatedTokens)
		if b := l.tokens.Burst(); n > b {
			n = b
		}
		if err := l.tokens.WaitN(ctx, n); err != nil {
			l.recordBlocked()
			return fmt.Errorf("rate limit: token capacity: %w", err)
		}
	}
	return nil
}

// TryAcquire reserves capacity without blocking. Returns false if rate limited.
func (l *Limiter) TryAcquire(estimatedTokens int64) bool {
	if l == nil || !l.enabled {
		return true
	}

	l.mu.Lock()
	l.totalRequests++
	l.mu.Unlock()

	if l.requests != nil && !l.requests.Allow() {
		l.recordBlocked()
		return false
	}
	if l.tokens != nil && estimatedTokens > 0 && !l.tokens.AllowN(time.Now(), int(estimatedTokens)) {
		l.recordBlocked()
		return false
	}
	return true
}

// RecordUsage records actual token usage after a request completes.
func (l *Limiter) RecordUsage(actualTokens int64) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalTokens += actualTokens
}

func (l *Limiter) recordBlocked() {
	l.mu.Lock()
	l.blockedRequests++
	l.mu.Unlock()
}

// Stats is a snapshot of limiter counters.
type Stats struct {
	TotalRequests   int64
	BlockedRequests int64
	TotalTokens     int64
}

// Stats returns the current counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		TotalRequests:   l.totalRequests,
		BlockedRequests: l.blockedRequests,
		TotalTokens:     l.totalTokens,
	}
}
