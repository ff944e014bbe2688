package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind separates failures worth retrying from those that are not.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindFatal     ErrorKind = "fatal"
)

// GatewayError is a classified provider failure.
type GatewayError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int // 0 when no HTTP status is known
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Transient reports whether the error may succeed on retry.
func (e *GatewayError) Transient() bool { return e.Kind == KindTransient }

// IsTransient reports whether err is a transient gateway error.
func IsTransient(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Kind == KindTransient
}

// IsFatal reports whether err is a fatal gateway error.
func IsFatal(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Kind == KindFatal
}

// Classify wraps err into a GatewayError. A known HTTP status decides the kind;
// otherwise network errors, timeouts and a few untyped messages are transient.
// Existing GatewayErrors and caller cancellation pass through unchanged.
func Classify(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	kind := KindFatal
	switch {
	case status > 0:
		if IsRetryableStatus(status) {
			kind = KindTransient
		}
	case isRetryableError(err):
		kind = KindTransient
	}
	return &GatewayError{Kind: kind, Provider: provider, StatusCode: status, Err: err}
}

// IsRetryableStatus returns true for rate limiting and upstream availability statuses.
func IsRetryableStatus(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

func isRetryableError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// String fallback only for untyped errors from third-party libraries
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"rate limit",
		"resource_exhausted",
		"unavailable",
		"connection reset",
		"eof",
		"tls handshake",
		"no such host",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
