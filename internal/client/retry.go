package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/logging"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/ratelimit"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/robustness"
)

// RetryConfig holds retry configuration used across all gateways.
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts after the first
	RetryDelay time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum backoff delay (cap)
}

// DefaultRetryConfig returns the retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// CalculateBackoff returns baseDelay * 2^attempt capped at maxDelay, plus up to 25% jitter.
func CalculateBackoff(baseDelay time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	delay := baseDelay * time.Duration(1<<uint(attempt))
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	if delay < 4 {
		return delay
	}
	jitter := time.Duration(rand.Int63n(int64(delay / 4)))
	return delay + jitter
}

// ExhaustedError is returned when every attempt failed with a transient error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// AttemptsFrom returns the number of attempts recorded in err, or 1.
func AttemptsFrom(err error) int {
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		return ex.Attempts
	}
	return 1
}

// Options configures a ResilientGateway.
type Options struct {
	Retry       RetryConfig
	CallTimeout time.Duration // per attempt; zero disables
	Limiter     *ratelimit.Limiter
	Breaker     *robustness.CircuitBreaker
	Status      StatusCallback
	Estimate    func(string) int // token estimate for the limiter
}

// ResilientGateway adds rate limiting, circuit breaking, per-call timeouts and
// retry with exponential backoff to another Gateway.
type ResilientGateway struct {
	next  Gateway
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
}

// NewResilient wraps next.
func NewResilient(next Gateway, opts Options) *ResilientGateway {
	if opts.Status == nil {
		opts.Status = NopStatusCallback{}
	}
	if opts.Estimate == nil {
		opts.Estimate = func(s string) int { return len(s) / 4 }
	}
	if opts.Breaker != nil {
		opts.Breaker.CountIf(IsTransient)
	}
	return &ResilientGateway{next: next, opts: opts, sleep: sleepContext}
}

// Name returns the wrapped gateway name.
func (g *ResilientGateway) Name() string { return g.next.Name() }

// Complete runs req, retrying transient failures up to Retry.MaxRetries times.
func (g *ResilientGateway) Complete(ctx context.Context, req Request) (*Completion, error) {
	start := time.Now()
	maxAttempts := g.opts.Retry.MaxRetries + 1

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(g.opts.Retry.RetryDelay, attempt-1, g.opts.Retry.MaxDelay)
			g.opts.Status.OnRetry(attempt, g.opts.Retry.MaxRetries, delay, lastErr.Error())
			logging.Warn("gateway: retrying request",
				"provider", g.next.Name(),
				"role", req.Role,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr.Error())
			if err := g.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		comp, err := g.attempt(ctx, req)
		if err == nil {
			comp.Attempts = attempt + 1
			comp.Latency = time.Since(start)
			return comp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		recoverable := IsTransient(err)
		g.opts.Status.OnError(err, recoverable && attempt+1 < maxAttempts)
		if !recoverable {
			return nil, err
		}
	}

	return nil, &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

func (g *ResilientGateway) attempt(ctx context.Context, req Request) (*Completion, error) {
	if g.opts.Limiter != nil {
		waitStart := time.Now()
		estimate := int64(g.opts.Estimate(req.System+req.Prompt) + req.MaxTokens)
		if err := g.opts.Limiter.Acquire(ctx, estimate); err != nil {
			return nil, err
		}
		if waited := time.Since(waitStart); waited > 100*time.Millisecond {
			g.opts.Status.OnRateLimit(waited)
		}
	}

	callCtx := ctx
	if g.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.opts.CallTimeout)
		defer cancel()
	}

	var comp *Completion
	call := func(c context.Context) error {
		var err error
		comp, err = g.next.Complete(c, req)
		return err
	}

	var err error
	if g.opts.Breaker != nil {
		err = g.opts.Breaker.Execute(callCtx, call)
		if errors.Is(err, robustness.ErrCircuitOpen) {
			err = &GatewayError{Kind: KindTransient, Provider: g.next.Name(), Err: err}
		}
	} else {
		err = call(callCtx)
	}

	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, &GatewayError{
				Kind:     KindTransient,
				Provider: g.next.Name(),
				Err:      fmt.Errorf("call timed out after %s: %w", g.opts.CallTimeout, err),
			}
		}
		return nil, Classify(g.next.Name(), 0, err)
	}

	if g.opts.Limiter != nil {
		g.opts.Limiter.RecordUsage(int64(comp.UsageTokens))
	}
	return comp, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
