package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_LimitsPerClient(t *testing.T) {
	rl := New(Config{RequestsPerMinute: 2})
	defer rl.Stop()

	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return current }

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	do := func(client string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Client-ID", client)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, do("a"))
	assert.Equal(t, fiber.StatusOK, do("a"))
	assert.Equal(t, fiber.StatusTooManyRequests, do("a"))
	assert.Equal(t, fiber.StatusOK, do("b"))

	current = current.Add(30 * time.Second)
	assert.Equal(t, fiber.StatusOK, do("a"))
	assert.Equal(t, fiber.StatusTooManyRequests, do("a"))
}

func TestStop_EndsJanitor(t *testing.T) {
	rl := New(Config{RequestsPerMinute: 10})

	rl.Stop()
	rl.Stop()

	select {
	case <-rl.exited:
	case <-time.After(time.Second):
		t.Fatal("janitor goroutine still running after Stop")
	}
}

func TestSweep_DropsIdleBuckets(t *testing.T) {
	rl := New(Config{RequestsPerMinute: 10})
	defer rl.Stop()

	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return current }

	require.True(t, rl.allow("idle"))
	current = current.Add(5 * time.Minute)
	require.True(t, rl.allow("busy"))

	current = current.Add(6 * time.Minute)
	rl.sweep()

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	assert.NotContains(t, rl.buckets, "idle")
	assert.Contains(t, rl.buckets, "busy")
}
