package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestTokenManager_ValidityBuffer(t *testing.T) {
	clock := newFakeClock()
	tm, err := NewTokenManager(NewMemoryStore(), WithClock(clock.Now))
	require.NoError(t, err)
	require.False(t, tm.IsTokenValid(), "nothing stored")

	issued := clock.Now()
	require.NoError(t, tm.StoreTokens("a", "r", 3600, "u1"))
	expiry := issued.Add(time.Hour)
	assert.Equal(t, expiry, tm.ExpiresAt())
	assert.True(t, tm.IsTokenValid())

	cases := []struct {
		remaining time.Duration
		valid     bool
	}{
		{5*time.Minute + time.Second, true},
		{5 * time.Minute, false},
		{5*time.Minute - time.Second, false},
		{0, false},
		{-time.Minute, false},
	}
	for _, c := range cases {
		clock.Set(expiry.Add(-c.remaining))
		assert.Equal(t, c.valid, tm.IsTokenValid(), "remaining %s", c.remaining)
	}
}

func TestTokenManager_StoreAndClear(t *testing.T) {
	store := NewMemoryStore()
	tm, err := NewTokenManager(store)
	require.NoError(t, err)
	require.False(t, tm.IsLoggedIn())

	require.NoError(t, tm.StoreTokens("a", "r", 3600, "u1"))
	assert.True(t, tm.IsLoggedIn())
	assert.Equal(t, "a", tm.AccessToken())
	assert.Equal(t, "r", tm.RefreshToken())
	assert.Equal(t, "u1", tm.UserID())

	saved, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "a", saved.AccessToken)

	require.NoError(t, tm.ClearTokens())
	require.NoError(t, tm.ClearTokens())
	assert.False(t, tm.IsLoggedIn())
	assert.False(t, tm.IsTokenValid())
	assert.Empty(t, tm.AccessToken())
	assert.Empty(t, tm.RefreshToken())
	assert.Empty(t, tm.UserID())
	assert.True(t, tm.ExpiresAt().IsZero())

	saved, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestTokenManager_RestoresSession(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	require.NoError(t, store.Save(&Session{AccessToken: "a", RefreshToken: "r", ExpiresAt: clock.Now().Add(time.Hour), UserID: "u1"}))

	tm, err := NewTokenManager(store, WithClock(clock.Now))
	require.NoError(t, err)
	assert.True(t, tm.IsLoggedIn())
	assert.True(t, tm.IsTokenValid())
	assert.Equal(t, "r", tm.RefreshToken())
}

func TestTokenManager_CustomBuffer(t *testing.T) {
	clock := newFakeClock()
	tm, err := NewTokenManager(NewMemoryStore(), WithClock(clock.Now), WithExpiryBuffer(0))
	require.NoError(t, err)
	require.NoError(t, tm.StoreTokens("a", "r", 60, "u1"))

	clock.Advance(59 * time.Second)
	assert.True(t, tm.IsTokenValid())
	clock.Advance(time.Second)
	assert.False(t, tm.IsTokenValid())
}
