package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   ErrorKind
	}{
		{"rate limited", 429, errors.New("too many requests"), KindTransient},
		{"bad gateway", 502, errors.New("bad gateway"), KindTransient},
		{"unauthorized", 401, errors.New("invalid api key"), KindFatal},
		{"bad request", 400, errors.New("context length exceeded"), KindFatal},
		{"deadline", 0, context.DeadlineExceeded, KindTransient},
		{"net error", 0, fmt.Errorf("dial: %w", timeoutErr{}), KindTransient},
		{"untyped rate limit", 0, errors.New("Rate limit reached for model"), KindTransient},
		{"unknown", 0, errors.New("model not found"), KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("groq", tt.status, tt.err)
			var gwErr *GatewayError
			assert.ErrorAs(t, err, &gwErr)
			assert.Equal(t, tt.want, gwErr.Kind)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.want == KindTransient, IsTransient(err))
			assert.Equal(t, tt.want == KindFatal, IsFatal(err))
		})
	}
}

func TestClassifyPassThrough(t *testing.T) {
	assert.NoError(t, Classify("groq", 500, nil))
	assert.Equal(t, context.Canceled, Classify("groq", 0, context.Canceled))

	orig := &GatewayError{Kind: KindFatal, Provider: "gemini", Err: errors.New("quota")}
	assert.Same(t, orig, Classify("groq", 503, orig))
}

func TestGatewayErrorMessage(t *testing.T) {
	err := &GatewayError{Kind: KindTransient, Provider: "groq", StatusCode: 503, Err: errors.New("unavailable")}
	assert.Equal(t, "groq transient error (status 503): unavailable", err.Error())
}
