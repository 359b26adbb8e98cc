package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiter_SingleTokenNoRefill(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(Config{Capacity: 1, RefillPerSec: 0}, WithClock(clock.Now))

	assert.True(t, limiter.TryAcquire("r1"), "first submission should be admitted")
	assert.False(t, limiter.TryAcquire("r1"), "second submission should be rejected, not queued")
	assert.False(t, limiter.TryAcquire("r1"))

	// Manual refill restores the bucket.
	limiter.Refill("r1")
	assert.True(t, limiter.TryAcquire("r1"))
}

func TestLimiter_BucketsAreIndependentPerRepo(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(Config{Capacity: 1, RefillPerSec: 0}, WithClock(clock.Now))

	assert.True(t, limiter.TryAcquire("r1"))
	assert.True(t, limiter.TryAcquire("r2"), "r2's bucket must not be affected by r1's depletion")
	assert.False(t, limiter.TryAcquire("r1"))
}

func TestLimiter_FractionalRefill(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(Config{Capacity: 2, RefillPerSec: 0.5}, WithClock(clock.Now))

	assert.True(t, limiter.TryAcquire("r1"))
	assert.True(t, limiter.TryAcquire("r1"))
	assert.False(t, limiter.TryAcquire("r1"))

	// One second accrues half a token: still not withdrawable.
	clock.Advance(time.Second)
	assert.False(t, limiter.TryAcquire("r1"))

	// Another second completes the token.
	clock.Advance(time.Second)
	assert.True(t, limiter.TryAcquire("r1"))
	assert.False(t, limiter.TryAcquire("r1"))
}

func TestLimiter_RefillCapsAtCapacity(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(Config{Capacity: 2, RefillPerSec: 1}, WithClock(clock.Now))

	assert.True(t, limiter.TryAcquire("r1"))
	clock.Advance(time.Hour)

	assert.True(t, limiter.TryAcquire("r1"))
	assert.True(t, limiter.TryAcquire("r1"))
	assert.False(t, limiter.TryAcquire("r1"), "an hour idle must not bank more than capacity")
}

func TestLimiter_PerRepoOverride(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(
		Config{Capacity: 1, RefillPerSec: 0},
		WithClock(clock.Now),
		WithOverride("big-repo", Config{Capacity: 3, RefillPerSec: 0}),
	)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.TryAcquire("big-repo"))
	}
	assert.False(t, limiter.TryAcquire("big-repo"))

	assert.True(t, limiter.TryAcquire("small-repo"))
	assert.False(t, limiter.TryAcquire("small-repo"))
}

func TestLimiter_ConcurrentAcquire(t *testing.T) {
	const capacity = 50
	clock := newFakeClock()
	limiter := NewLimiter(Config{Capacity: capacity, RefillPerSec: 0}, WithClock(clock.Now))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < capacity*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.TryAcquire("r1") {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, granted, "exactly capacity submissions may pass")
}

func TestLimiter_EvictIdle(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(
		Config{Capacity: 1, RefillPerSec: 0, IdleEviction: time.Hour},
		WithClock(clock.Now),
	)

	assert.True(t, limiter.TryAcquire("r1"))
	assert.False(t, limiter.TryAcquire("r1"))

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, limiter.EvictIdle())

	// A recreated bucket starts full.
	assert.True(t, limiter.TryAcquire("r1"))
}

func TestLimiter_EvictIdleKeepsActiveBuckets(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(
		Config{Capacity: 5, RefillPerSec: 0, IdleEviction: time.Hour},
		WithClock(clock.Now),
	)

	limiter.TryAcquire("stale")
	clock.Advance(2 * time.Hour)
	limiter.TryAcquire("fresh")

	assert.Equal(t, 1, limiter.EvictIdle())
	assert.Equal(t, 0, limiter.EvictIdle())
}
