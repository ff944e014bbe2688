package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledLimiterNeverBlocks(t *testing.T) {
	l := NewLimiter(Config{Enabled: false, RequestsPerMinute: 1, BurstSize: 1})
	for i := 0; i < 10; i++ {
		assert.True(t, l.TryAcquire(1000))
		require.NoError(t, l.Acquire(context.Background(), 1000))
	}
}

func TestTryAcquireRespectsBurst(t *testing.T) {
	l := NewLimiter(Config{Enabled: true, RequestsPerMinute: 1, BurstSize: 2})
	assert.True(t, l.TryAcquire(0))
	assert.True(t, l.TryAcquire(0))
	assert.False(t, l.TryAcquire(0))

	stats := l.Stats()
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.BlockedRequests)
}

func TestAcquireHonoursContext(t *testing.T) {
	l := NewLimiter(Config{Enabled: true, RequestsPerMinute: 1, BurstSize: 1})
	require.NoError(t, l.Acquire(context.Background(), 0))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, 0)
	require.Error(t, err)
	assert.Equal(t, int64(1), l.Stats().BlockedRequests)
}

func TestAcquireClampsLargeTokenRequests(t *testing.T) {
	l := NewLimiter(Config{Enabled: true, TokensPerMinute: 600, BurstSize: 1})
	// burst is 60 tokens; a 5000 token request is clamped rather than rejected
	require.NoError(t, l.Acquire(context.Background(), 5000))
}

func TestNilLimiter(t *testing.T) {
	var l *Limiter
	require.NoError(t, l.Acquire(context.Background(), 10))
	assert.True(t, l.TryAcquire(10))
	l.RecordUsage(5)
}
