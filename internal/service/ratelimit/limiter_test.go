package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterBurstAndRefill(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	l := New(0.5, 2)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("op"))
	assert.True(t, l.Allow("op"))
	assert.False(t, l.Allow("op"))
	assert.True(t, l.Allow("other"), "keys are independent")

	now = now.Add(2 * time.Second)
	assert.True(t, l.Allow("op"))
	assert.False(t, l.Allow("op"))
}
