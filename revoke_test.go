package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRevoker(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	r := newMemoryRevoker()
	r.now = clock.Now

	revoked, err := r.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, r.Revoke(ctx, "jti-1", time.Minute))
	require.NoError(t, r.Revoke(ctx, "jti-2", 0))

	revoked, _ = r.IsRevoked(ctx, "jti-1")
	assert.True(t, revoked)
	revoked, _ = r.IsRevoked(ctx, "jti-2")
	assert.False(t, revoked, "already expired tokens are not stored")

	clock.Advance(time.Minute)
	revoked, _ = r.IsRevoked(ctx, "jti-1")
	assert.False(t, revoked)

	// expired entries are swept on the next write
	require.NoError(t, r.Revoke(ctx, "jti-3", time.Minute))
	assert.Len(t, r.entries, 1)
}

func TestRedisRevoker(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	r, err := newRedisRevoker(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.close() })

	revoked, err := r.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, r.Revoke(ctx, "jti-1", time.Minute))
	assert.True(t, mr.Exists("revoked:jti-1"))
	assert.Equal(t, time.Minute, mr.TTL("revoked:jti-1"))

	revoked, err = r.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(time.Minute)
	revoked, err = r.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestNewRevoker(t *testing.T) {
	ctx := context.Background()

	r, err := NewRevoker(ctx, "none", "", "", 0)
	require.NoError(t, err)
	assert.IsType(t, noopRevoker{}, r)

	r, err = NewRevoker(ctx, "memory", "", "", 0)
	require.NoError(t, err)
	assert.IsType(t, &memoryRevoker{}, r)

	_, err = NewRevoker(ctx, "redis", "127.0.0.1:1", "", 0)
	require.Error(t, err)

	_, err = NewRevoker(ctx, "etcd", "", "", 0)
	require.Error(t, err)
}

func TestLogout_WithRedisRevocation(t *testing.T) {
	mr := miniredis.RunT(t)
	rr, err := newRedisRevoker(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rr.close() })

	e := newTestEnv(t, func(a *App, _ *testClock) { a.Revoker = rr })
	s := e.register(t, "alice", "a@x.com", "secret1")

	status, _ := e.call(t, "DELETE", "/auth/logout", s.access, nil)
	require.Equal(t, 200, status)

	status, body := e.call(t, "GET", "/todos", s.access, nil)
	require.Equal(t, 401, status)
	assert.Equal(t, msgTokenRevoked, body["message"])
}
