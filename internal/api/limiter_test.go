package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"skolar/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_BurstPerClient(t *testing.T) {
	l := newRateLimiter(config.APIRateLimitConfig{RPS: 1, Burst: 2})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))

	// Another client has its own bucket.
	assert.True(t, l.allow("b"))

	now = now.Add(time.Second)
	assert.True(t, l.allow("a"))
}

func TestRateLimiter_DefaultsAndDisabled(t *testing.T) {
	l := newRateLimiter(config.APIRateLimitConfig{RPS: 0})
	assert.False(t, l.enabled())
	assert.Equal(t, defaultBurst, l.burst)
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	l := newRateLimiter(config.APIRateLimitConfig{RPS: 5, Burst: 5})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.allow("mobile")
	l.allow("kiosk")
	require.Equal(t, 2, l.size())

	now = now.Add(clientIdleTTL / 2)
	l.allow("mobile")

	now = now.Add(clientIdleTTL * 3 / 4)
	assert.True(t, l.allow("mobile"))
	assert.Equal(t, 1, l.size())
}

func TestLimiterKey(t *testing.T) {
	withKey := httptest.NewRequest("GET", "/api/v1/pending", nil)
	withKey.Header.Set("x-api-key", "secret")
	other := httptest.NewRequest("GET", "/api/v1/pending", nil)
	other.Header.Set("x-api-key", "secret")

	k := limiterKey(withKey, "x-api-key")
	assert.Equal(t, k, limiterKey(other, "x-api-key"))
	assert.NotContains(t, k, "secret")

	anon := httptest.NewRequest("GET", "/api/v1/pending", nil)
	anon.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "ip:10.0.0.7", limiterKey(anon, "x-api-key"))

	broken := httptest.NewRequest("GET", "/api/v1/pending", nil)
	broken.RemoteAddr = "nonsense"
	assert.Equal(t, clientKeyUnknown, limiterKey(broken, "x-api-key"))
}
