package ratelimit

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestAllow_BurstThenRefill(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	rl := New(Config{RequestsPerSecond: 2, Burst: 3, Now: clock.Now})
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("s1"), "request %d within burst", i)
	}
	assert.False(t, rl.Allow("s1"))
	assert.True(t, rl.Allow("s2"), "buckets are per key")

	clock.Advance(500 * time.Millisecond)
	assert.True(t, rl.Allow("s1"))
	assert.False(t, rl.Allow("s1"))

	clock.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("s1"))
	}
	assert.False(t, rl.Allow("s1"), "refill is capped at burst")
}

func TestEvictIdle(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	rl := New(Config{RequestsPerSecond: 1, Burst: 1, Now: clock.Now})
	defer rl.Stop()

	rl.Allow("old")
	clock.Advance(idleTimeout + time.Second)
	rl.Allow("fresh")

	assert.Equal(t, 1, rl.evictIdle())
}

func TestMiddleware_KeysBySession(t *testing.T) {
	rl := New(Config{RequestsPerSecond: 0.001, Burst: 1})
	defer rl.Stop()

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	send := func(session string) int {
		req := httptest.NewRequest("GET", "/", nil)
		if session != "" {
			req.Header.Set("X-Session-ID", session)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, send("a"))
	assert.Equal(t, fiber.StatusTooManyRequests, send("a"))
	assert.Equal(t, fiber.StatusOK, send("b"))
}
