// Package token issues and verifies the signed access and refresh tokens
// handed out by the auth endpoints.
//
// Both token kinds are HS256 JWTs carrying the user id as subject. They are
// signed with different secrets, so holding one kind never allows forging the
// other. Verification is stateless: signature, token type and expiry are all
// the server checks here.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrInvalidSignature covers malformed tokens, bad signatures and tokens
	// of the wrong kind.
	ErrInvalidSignature = errors.New("token invalid")
	// ErrExpired is returned for a correctly signed token past its exp claim.
	ErrExpired = errors.New("token expired")
)

var signingMethod = jwt.SigningMethodHS256

// Claims is the payload of both token kinds.
type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Token is a signed token together with the claims needed by callers that
// must not re-parse it (revocation, envelopes).
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// Pair is what login, registration and refresh return.
type Pair struct {
	Access    Token
	Refresh   Token
	ExpiresIn int
}

type Options struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	// Now defaults to time.Now.
	Now func() time.Time
}

type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

func NewManager(opts Options) (*Manager, error) {
	if len(opts.AccessSecret) == 0 || len(opts.RefreshSecret) == 0 {
		return nil, errors.New("token: access and refresh secrets are required")
	}
	if string(opts.AccessSecret) == string(opts.RefreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if opts.AccessTTL <= 0 || opts.RefreshTTL <= 0 {
		return nil, errors.New("token: lifetimes must be positive")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		accessSecret:  opts.AccessSecret,
		refreshSecret: opts.RefreshSecret,
		accessTTL:     opts.AccessTTL,
		refreshTTL:    opts.RefreshTTL,
		issuer:        opts.Issuer,
		now:           now,
	}, nil
}

// AccessTTL is the lifetime advertised to clients as expires_in.
func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

func (m *Manager) IssueAccessToken(userID string) (Token, error) {
	return m.issue(userID, TypeAccess, m.accessSecret, m.accessTTL)
}

func (m *Manager) IssueRefreshToken(userID string) (Token, error) {
	return m.issue(userID, TypeRefresh, m.refreshSecret, m.refreshTTL)
}

// IssuePair mints a fresh access/refresh pair for userID.
func (m *Manager) IssuePair(userID string) (*Pair, error) {
	access, err := m.IssueAccessToken(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := m.IssueRefreshToken(userID)
	if err != nil {
		return nil, err
	}
	return &Pair{
		Access:    access,
		Refresh:   refresh,
		ExpiresIn: int(m.accessTTL / time.Second),
	}, nil
}

func (m *Manager) VerifyAccessToken(s string) (*Claims, error) {
	return m.verify(s, TypeAccess, m.accessSecret)
}

func (m *Manager) VerifyRefreshToken(s string) (*Claims, error) {
	return m.verify(s, TypeRefresh, m.refreshSecret)
}

func (m *Manager) issue(userID, typ string, secret []byte, ttl time.Duration) (Token, error) {
	if userID == "" {
		return Token{}, errors.New("token: empty subject")
	}
	now := m.now()
	id := uuid.NewString()
	exp := jwt.NewNumericDate(now.Add(ttl))
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(secret)
	if err != nil {
		return Token{}, fmt.Errorf("token: sign %s token: %w", typ, err)
	}
	return Token{Value: signed, ID: id, ExpiresAt: exp.Time}, nil
}

func (m *Manager) verify(s, typ string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(s, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidSignature, typ, claims.Type)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidSignature)
	}
	return claims, nil
}
