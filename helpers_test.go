package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/example/todoapp/internal/token"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	app   *App
	db    *MemDB
	clock *testClock
	srv   *httptest.Server
}

type envOption func(*App, *testClock)

func withMemoryRevoker() envOption {
	return func(a *App, c *testClock) {
		r := newMemoryRevoker()
		r.now = c.Now
		a.Revoker = r
	}
}

func withRateLimit(perMinute int) envOption {
	return func(a *App, _ *testClock) {
		a.rateLimiter = NewRateLimiter(perMinute)
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	clock := newTestClock()
	tokens, err := token.NewManager(token.Options{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "todoapp-test",
		Now:           clock.Now,
	})
	require.NoError(t, err)

	db := NewMemoryDB()
	db.now = clock.Now
	app := &App{
		DB:     db,
		Tokens: tokens,
		Log:    zaptest.NewLogger(t),
		now:    clock.Now,
	}
	for _, o := range opts {
		o(app, clock)
	}
	srv := httptest.NewServer(app.Router())
	t.Cleanup(srv.Close)
	return &testEnv{app: app, db: db, clock: clock, srv: srv}
}

// call sends a JSON request and decodes a JSON object response.
func (e *testEnv) call(t *testing.T, method, path, bearer string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp.StatusCode, out
}

type session struct {
	userID  string
	access  string
	refresh string
}

func (e *testEnv) register(t *testing.T, username, email, password string) session {
	t.Helper()
	status, body := e.call(t, "POST", "/auth/register", "", map[string]string{
		"username": username, "email": email, "password": password,
	})
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	return sessionFrom(t, body)
}

func sessionFrom(t *testing.T, body map[string]interface{}) session {
	t.Helper()
	user, ok := body["user"].(map[string]interface{})
	require.True(t, ok, "body: %v", body)
	return session{
		userID:  user["id"].(string),
		access:  body["access_token"].(string),
		refresh: body["refresh_token"].(string),
	}
}

func fieldErrors(t *testing.T, body map[string]interface{}, field string) []interface{} {
	t.Helper()
	errs, ok := body["errors"].(map[string]interface{})
	require.True(t, ok, "body: %v", body)
	msgs, _ := errs[field].([]interface{})
	return msgs
}
