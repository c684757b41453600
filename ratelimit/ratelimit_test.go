package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_Refuses_Past_Quota(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(3, time.Minute)
	limiter.now = func() time.Time { return now }

	// Given a client that used its whole quota
	for range 3 {
		allowed, _, err := limiter.Allow(ctx, "10.0.0.1")
		req.NoError(err)
		req.True(allowed)
	}

	// When it sends one more request
	allowed, retryAfter, err := limiter.Allow(ctx, "10.0.0.1")

	// Then it is refused until one request worth of window has passed
	req.NoError(err)
	req.False(allowed)
	req.InDelta(float64(20*time.Second), float64(retryAfter), float64(time.Millisecond))

	// And another client keeps its own quota
	allowed, _, err = limiter.Allow(ctx, "10.0.0.2")
	req.NoError(err)
	req.True(allowed)

	now = now.Add(21 * time.Second)
	allowed, _, err = limiter.Allow(ctx, "10.0.0.1")
	req.NoError(err)
	req.True(allowed)
}

func TestMemoryLimiter_Sweeps_Idle_Clients(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(1, time.Minute)
	limiter.now = func() time.Time { return now }

	_, _, err := limiter.Allow(ctx, "10.0.0.1")
	req.NoError(err)

	// When no request came for a whole window
	now = now.Add(2 * time.Minute)
	_, _, err = limiter.Allow(ctx, "10.0.0.2")
	req.NoError(err)

	// Then the idle bucket is gone
	req.Len(limiter.buckets, 1)
	req.Contains(limiter.buckets, "10.0.0.2")
}
