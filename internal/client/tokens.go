package client

import (
	"fmt"
	"sync"
	"time"
)

// DefaultExpiryBuffer is how long before expiry an access token stops being
// used. A token about to expire could lapse while the request is in flight.
const DefaultExpiryBuffer = 5 * time.Minute

// TokenManager owns the current session and answers whether the access
// token can still be sent as is.
type TokenManager struct {
	mu      sync.RWMutex
	store   SessionStore
	session *Session
	now     func() time.Time
	buffer  time.Duration
}

type TokenOption func(*TokenManager)

func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) { m.now = now }
}

func WithExpiryBuffer(d time.Duration) TokenOption {
	return func(m *TokenManager) { m.buffer = d }
}

// NewTokenManager restores any session already in store.
func NewTokenManager(store SessionStore, opts ...TokenOption) (*TokenManager, error) {
	m := &TokenManager{store: store, now: time.Now, buffer: DefaultExpiryBuffer}
	for _, o := range opts {
		o(m)
	}
	s, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	m.session = s
	return m, nil
}

// IsTokenValid reports whether an access token is stored and expires more
// than the buffer from now.
func (m *TokenManager) IsTokenValid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil || m.session.AccessToken == "" {
		return false
	}
	return m.session.ExpiresAt.Sub(m.now()) > m.buffer
}

// StoreTokens replaces the session. Expiry is computed from the current time
// and the server declared lifetime.
func (m *TokenManager) StoreTokens(access, refresh string, expiresIn int, userID string) error {
	s := &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    m.now().Add(time.Duration(expiresIn) * time.Second),
		UserID:       userID,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.session = s
	return nil
}

// ClearTokens forgets the session. Calling it with nothing stored is fine.
func (m *TokenManager) ClearTokens() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// IsLoggedIn is true between a successful login and the next clear.
func (m *TokenManager) IsLoggedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil
}

func (m *TokenManager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.AccessToken
}

func (m *TokenManager) RefreshToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.RefreshToken
}

func (m *TokenManager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.UserID
}

func (m *TokenManager) ExpiresAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return time.Time{}
	}
	return m.session.ExpiresAt
}
