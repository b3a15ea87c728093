package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/neutron420/bloom/internal/core"
)

// RateLimiter is a sliding-window limiter keyed by connection.
type RateLimiter struct {
	mu      sync.Mutex
	history map[core.ConnID][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		history: make(map[core.ConnID][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	rl.now = now
	return rl
}

func (rl *RateLimiter) Allow(id core.ConnID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	fresh := fresh(rl.history[id], now.Add(-rl.window))
	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}
	rl.history[id] = append(fresh, now)
	return true
}

func (rl *RateLimiter) Reset(id core.ConnID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, id)
}

// Prune drops keys with no attempts inside the window and returns how many were dropped.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	windowStart := rl.now().Add(-rl.window)
	n := 0
	for id, attempts := range rl.history {
		kept := fresh(attempts, windowStart)
		if len(kept) == 0 {
			delete(rl.history, id)
			n++
			continue
		}
		rl.history[id] = kept
	}
	return n
}

func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.history)
}

// Run prunes every window until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) error {
	if rl.window <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(rl.window)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := rl.Prune(); n > 0 {
				log.Debug().Str("module", "app.ratelimit").Int("pruned", n).Msg("pruned idle keys")
			}
		}
	}
}

func fresh(attempts []time.Time, windowStart time.Time) []time.Time {
	out := attempts[:0:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			out = append(out, t)
		}
	}
	return out
}
