package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/example/todoapp/internal/token"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ctxKey int

const (
	userCtxKey ctxKey = iota
	claimsCtxKey
)

const (
	msgNotLoggedIn   = "You are not logged in. Please log in to get access"
	msgTokenInvalid  = "Invalid token. Please log in again"
	msgTokenExpired  = "Your token has expired. Please log in again"
	msgTokenRevoked  = "Token has been revoked. Please log in again"
	msgUserNotExists = "The user belonging to this token no longer exists"
)

func userFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey).(*User)
	return u
}

func claimsFromContext(ctx context.Context) *token.Claims {
	c, _ := ctx.Value(claimsCtxKey).(*token.Claims)
	return c
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// Protect lets a request through only with a valid access token whose user
// still exists. The user and the token claims are put on the context.
func (a *App) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, msgNotLoggedIn)
			return
		}

		claims, err := a.Tokens.VerifyAccessToken(raw)
		if err != nil {
			if errors.Is(err, token.ErrExpired) {
				a.Log.Info("token expired", zap.String("path", r.URL.Path))
				writeError(w, http.StatusUnauthorized, msgTokenExpired)
				return
			}
			a.Log.Info("token invalid", zap.String("path", r.URL.Path), zap.Error(err))
			writeError(w, http.StatusUnauthorized, msgTokenInvalid)
			return
		}

		revoked, err := a.Revoker.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			a.Log.Error("revocation lookup", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if revoked {
			a.Log.Info("token revoked", zap.String("jti", claims.ID))
			writeError(w, http.StatusUnauthorized, msgTokenRevoked)
			return
		}

		user, err := a.DB.GetUserByID(r.Context(), claims.Subject)
		if err != nil {
			a.Log.Error("user lookup", zap.String("user_id", claims.Subject), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if user == nil {
			a.Log.Info("token for missing user", zap.String("user_id", claims.Subject))
			writeError(w, http.StatusUnauthorized, msgUserNotExists)
			return
		}

		ctx := context.WithValue(r.Context(), userCtxKey, user)
		ctx = context.WithValue(ctx, claimsCtxKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CORS middleware handles CORS headers
func (a *App) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			allowed := len(a.CORSOrigins) == 0
			for _, o := range a.CORSOrigins {
				if o == origin || o == "*" {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// limiterIdle is how long an address may stay quiet before its bucket is
// dropped. A bucket refills completely within a minute, so nothing is lost.
const limiterIdle = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per client address. Idle buckets
// are swept on access.
type RateLimiter struct {
	visitors  map[string]*visitor
	mu        sync.Mutex
	perMin    int
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		perMin:   perMinute,
		now:      time.Now,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= limiterIdle {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= limiterIdle {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(rl.perMin)/60, rl.perMin)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit throttles the auth endpoints per client address. A zero limit
// disables it.
func (a *App) RateLimit(next http.Handler) http.Handler {
	if a.rateLimiter == nil || a.rateLimiter.perMin <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.rateLimiter.getLimiter(clientIP(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Logging middleware logs requests
func (a *App) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		a.Log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

// Recover turns a handler panic into a 500 envelope.
func (a *App) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				a.Log.Error("panic", zap.Any("panic", rec), zap.String("path", r.URL.Path), zap.Stack("stack"))
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}
