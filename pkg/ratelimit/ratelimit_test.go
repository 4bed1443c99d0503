package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLimiter_Burst(t *testing.T) {
	l := New(1, 3, 0)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("u1"), "request %d within burst", i+1)
	}
	assert.False(t, l.Allow("u1"), "burst exhausted")
	assert.True(t, l.Allow("u2"), "other keys have their own bucket")

	assert.Equal(t, 1, l.RetryAfterSeconds("u1"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("u1"), "one token refilled after a second")
}

func TestKeyedLimiter_Disabled(t *testing.T) {
	l := New(0, 1, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("u1"))
	}
	assert.Equal(t, 0, l.RetryAfterSeconds("u1"))
}

func TestKeyedLimiter_ResetAndCleanup(t *testing.T) {
	l := New(1, 1, time.Minute)
	defer l.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("ip"))
	assert.False(t, l.Allow("ip"))

	l.Reset("ip")
	assert.True(t, l.Allow("ip"))

	now = now.Add(2 * time.Minute)
	l.cleanup()
	l.mu.Lock()
	assert.Empty(t, l.entries)
	l.mu.Unlock()
}

func TestExtractIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ExtractIP(r))

	r.Header.Set("X-Real-IP", "192.168.1.1")
	assert.Equal(t, "192.168.1.1", ExtractIP(r))

	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.2")
	assert.Equal(t, "1.2.3.4", ExtractIP(r))
}

func TestFormatRetryMessage(t *testing.T) {
	assert.Equal(t, "45 second(s)", FormatRetryMessage(45))
	assert.Equal(t, "2 minute(s)", FormatRetryMessage(120))
}
