package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/pcsd/pkg/auth"
)

func TestLoginLimiterPerClient(t *testing.T) {
	l := newLoginLimiter(0.001, 2)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestLoginLimiterEvictsIdleClients(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newLoginLimiter(1, 1)
	l.max = 2
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))

	now = now.Add(5 * time.Second)
	assert.True(t, l.Allow("10.0.0.2"))
	assert.False(t, l.Allow("10.0.0.2"))

	// .1 has refilled and is dropped; the throttle on .2 survives
	assert.True(t, l.Allow("10.0.0.3"))
	assert.NotContains(t, l.limiters, "10.0.0.1")
	assert.Contains(t, l.limiters, "10.0.0.2")
	assert.False(t, l.Allow("10.0.0.2"))
}

func TestLoginLimiterEvictsLeastRecentWhenAllThrottled(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newLoginLimiter(0.001, 1)
	l.max = 2
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.2"))
	now = now.Add(time.Second)
	assert.False(t, l.Allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.3"))
	assert.NotContains(t, l.limiters, "10.0.0.1")
	assert.False(t, l.Allow("10.0.0.2"))
}

func TestLoginThrottle(t *testing.T) {
	f := newFixture(t)
	sessions, err := auth.NewSessionManager(nil, false)
	require.NoError(t, err)
	s := NewServer(ServerConfig{LoginRate: 0.001, LoginBurst: 1}, f.dispatcher, sessions)

	attempt := func(path string) int {
		form := url.Values{"username": {auth.SuperUser}, "password": {"wrong"}}
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return serve(s, req).Code
	}

	assert.Equal(t, http.StatusUnauthorized, attempt("/remote/auth"))
	assert.Equal(t, http.StatusTooManyRequests, attempt("/remote/auth"))
	assert.Equal(t, http.StatusTooManyRequests, attempt("/login"))

	// token-authenticated commands are not throttled
	req := httptest.NewRequest(http.MethodPost, "/remote/cluster_start", nil)
	req.Header.Set("Authorization", "Bearer "+f.token)
	assert.Equal(t, http.StatusOK, serve(s, req).Code)
}
