package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterBurstAndRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(2, 3, time.Hour)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("a"), "burst %d", i)
	}
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys are independent")

	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.Allow("a"), "one token refilled at 2 rps")
	assert.False(t, l.Allow("a"))
}

func TestLimiterEvictsIdleKeys(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(1, 1, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	now = now.Add(2 * time.Minute)
	l.Allow("c")
	assert.Equal(t, 1, l.Len())
}
