package client

import "time"

// StatusCallback receives notifications while a request is being retried or throttled.
type StatusCallback interface {
	// OnRetry is called before sleeping for delay ahead of retry attempt (1-based).
	OnRetry(attempt, maxAttempts int, delay time.Duration, reason string)

	// OnRateLimit is called when a request waited on the client-side limiter.
	OnRateLimit(waited time.Duration)

	// OnError is called for every failed attempt.
	OnError(err error, recoverable bool)
}

// NopStatusCallback ignores all notifications.
type NopStatusCallback struct{}

func (NopStatusCallback) OnRetry(int, int, time.Duration, string) {}
func (NopStatusCallback) OnRateLimit(time.Duration)              {}
func (NopStatusCallback) OnError(error, bool)                    {}
