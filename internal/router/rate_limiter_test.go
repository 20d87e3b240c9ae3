package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newClockedLimiter(limit int, window time.Duration) (*RateLimiter, *time.Time) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(limit, window)
	rl.now = func() time.Time { return clock }
	return rl, &clock
}

// FUNCTIONAL VALIDATION TEST: the (limit+1)th message inside a window is denied
func TestRateLimiter_Allow(t *testing.T) {
	rl, clock := newClockedLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("c1"), "message %d", i+1)
	}
	assert.False(t, rl.Allow("c1"))

	// other connections have their own budget
	assert.True(t, rl.Allow("c2"))

	// a new window restores the budget
	*clock = clock.Add(time.Minute)
	assert.True(t, rl.Allow("c1"))
}

func TestRateLimiter_ForgetAndCleanup(t *testing.T) {
	rl, clock := newClockedLimiter(1, time.Minute)

	rl.Allow("c1")
	rl.Allow("c2")
	assert.Equal(t, 2, rl.Tracked())

	rl.Forget("c1")
	assert.Equal(t, 1, rl.Tracked())
	assert.True(t, rl.Allow("c1"), "forgotten connection starts fresh")

	*clock = clock.Add(6 * time.Minute)
	rl.Cleanup()
	assert.Equal(t, 0, rl.Tracked())
}
