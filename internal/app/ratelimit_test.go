package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time          { return c.t }
func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRateLimiterSlidingWindow(t *testing.T) {
	clk := &manualClock{t: epoch}
	rl := NewRateLimiter(3, time.Second).WithClock(clk.now)

	for range 3 {
		assert.True(t, rl.Allow("c1"))
	}
	assert.False(t, rl.Allow("c1"))
	assert.True(t, rl.Allow("c2"), "limits are per connection")

	clk.advance(500 * time.Millisecond)
	assert.False(t, rl.Allow("c1"))

	clk.advance(501 * time.Millisecond)
	assert.True(t, rl.Allow("c1"))
}

func TestRateLimiterResetAndPrune(t *testing.T) {
	clk := &manualClock{t: epoch}
	rl := NewRateLimiter(1, time.Second).WithClock(clk.now)

	require.True(t, rl.Allow("c1"))
	require.False(t, rl.Allow("c1"))
	rl.Reset("c1")
	assert.True(t, rl.Allow("c1"))

	require.True(t, rl.Allow("c2"))
	assert.Equal(t, 2, rl.Len())
	assert.Equal(t, 0, rl.Prune())

	clk.advance(2 * time.Second)
	assert.Equal(t, 2, rl.Prune())
	assert.Equal(t, 0, rl.Len())
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Second)
	for range 1000 {
		require.True(t, rl.Allow("c1"))
	}
	assert.Equal(t, 0, rl.Len())
}

func TestRateLimiterRunStops(t *testing.T) {
	rl := NewRateLimiter(5, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rl.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
