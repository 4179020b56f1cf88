package router

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

func newTestLimiter(window time.Duration, max int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(window, max)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	assert.Equal(t, DefaultRateWindow, rl.window)
	assert.Equal(t, DefaultRateMax, rl.max)
}

func TestRateLimiter_ExactLimit(t *testing.T) {
	rl, _ := newTestLimiter(time.Minute, 30)

	for i := 1; i <= 30; i++ {
		assert.True(t, rl.Allow("u1", "send_message"), "message %d should be allowed", i)
	}
	assert.False(t, rl.Allow("u1", "send_message"), "31st message should be rejected")
	assert.False(t, rl.Allow("u1", "send_message"), "rejections do not reset the window")
}

func TestRateLimiter_KeysAndKindsAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter(time.Minute, 2)

	assert.True(t, rl.Allow("u1", "send_message"))
	assert.True(t, rl.Allow("u1", "send_message"))
	assert.False(t, rl.Allow("u1", "send_message"))

	assert.True(t, rl.Allow("u1", "typing_start"), "another kind has its own bucket")
	assert.True(t, rl.Allow("u2", "send_message"), "another key has its own bucket")
	assert.True(t, rl.Allow("G1", "help_chat_send_message"))
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl, clock := newTestLimiter(time.Minute, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("u1", "send_message"))
	}
	assert.False(t, rl.Allow("u1", "send_message"))

	clock.Advance(59 * time.Second)
	assert.False(t, rl.Allow("u1", "send_message"), "still inside the window")

	clock.Advance(time.Second)
	assert.True(t, rl.Allow("u1", "send_message"), "new window starts after 60s")
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl, clock := newTestLimiter(time.Minute, 30)

	rl.Allow("u1", "send_message")
	rl.Allow("u2", "send_message")
	clock.Advance(30 * time.Second)
	rl.Allow("u3", "send_message")
	assert.Equal(t, 3, rl.Len())

	clock.Advance(30 * time.Second)
	assert.Equal(t, 2, rl.Sweep())
	assert.Equal(t, 1, rl.Len())

	clock.Advance(time.Minute)
	assert.Equal(t, 1, rl.Sweep())
	assert.Equal(t, 0, rl.Len())
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl, _ := newTestLimiter(time.Minute, 30)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("u1", "send_message") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 30, allowed)
}
