package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/example/todoapp/internal/token"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

const msgInvalidRefresh = "Invalid refresh token"

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"`
	User         userResponse `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func newUserResponse(u *User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}
}

// decodeJSON reads a bounded JSON body. An empty body decodes to the zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (a *App) writeTokens(w http.ResponseWriter, u *User) {
	pair, err := a.Tokens.IssuePair(u.ID)
	if err != nil {
		a.Log.Error("issue tokens", zap.String("user_id", u.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
		ExpiresIn:    pair.ExpiresIn,
		User:         newUserResponse(u),
	})
}

func duplicateError(field string) validation {
	v := validation{}
	if field == "email" {
		v.add("email", "Email is already in use")
	} else {
		v.add("username", "Username is already in use")
	}
	return v
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if v := in.validate(); !v.ok() {
		writeValidationError(w, v)
		return
	}

	existing, err := a.DB.FindUserByUsernameOrEmail(r.Context(), in.Username, in.Email)
	if err != nil {
		a.Log.Error("register lookup", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if existing != nil {
		field := "username"
		if existing.Email == in.Email {
			field = "email"
		}
		writeValidationError(w, duplicateError(field))
		return
	}

	hashed, err := hashPassword(in.Password)
	if err != nil {
		a.Log.Error("hash password", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	user, err := a.DB.CreateUser(r.Context(), in.Username, in.Email, hashed)
	if err != nil {
		// lost a race with a concurrent registration
		if d, ok := isDuplicate(err); ok {
			writeValidationError(w, duplicateError(d.Field))
			return
		}
		a.Log.Error("create user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	a.Log.Info("user registered", zap.String("user_id", user.ID))
	a.writeTokens(w, user)
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if v := in.validate(); !v.ok() {
		writeValidationError(w, v)
		return
	}
	user, err := a.DB.GetUserByUsername(r.Context(), in.Username)
	if err != nil {
		a.Log.Error("login lookup", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !checkCredentials(user, in.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	a.writeTokens(w, user)
}

func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	claims, err := a.Tokens.VerifyRefreshToken(in.RefreshToken)
	if err != nil {
		a.Log.Info("refresh rejected", zap.Error(err))
		writeError(w, http.StatusUnauthorized, msgInvalidRefresh)
		return
	}
	revoked, err := a.Revoker.IsRevoked(r.Context(), claims.ID)
	if err != nil {
		a.Log.Error("revocation lookup", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if revoked {
		a.Log.Info("refresh token reused", zap.String("jti", claims.ID))
		writeError(w, http.StatusUnauthorized, msgInvalidRefresh)
		return
	}
	user, err := a.DB.GetUserByID(r.Context(), claims.Subject)
	if err != nil {
		a.Log.Error("refresh lookup", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, msgInvalidRefresh)
		return
	}

	// rotate
	if err := a.revoke(r, claims); err != nil {
		a.Log.Error("revoke refresh token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	a.writeTokens(w, user)
}

// HandleLogout always succeeds for an authenticated caller. With a revocation
// backend configured the presented access token, and the refresh token if
// one is sent in the body, stop being accepted.
func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in)

	claims := claimsFromContext(r.Context())
	if claims != nil {
		if err := a.revoke(r, claims); err != nil {
			a.Log.Warn("revoke access token", zap.Error(err))
		}
	}
	if in.RefreshToken != "" {
		rc, err := a.Tokens.VerifyRefreshToken(in.RefreshToken)
		if err == nil && claims != nil && rc.Subject == claims.Subject {
			if err := a.revoke(r, rc); err != nil {
				a.Log.Warn("revoke refresh token", zap.Error(err))
			}
		}
	}
	writeMessage(w, http.StatusOK, "Successfully logged out")
}

func (a *App) revoke(r *http.Request, c *token.Claims) error {
	if c.ExpiresAt == nil {
		return nil
	}
	return a.Revoker.Revoke(r.Context(), c.ID, c.ExpiresAt.Time.Sub(a.now()))
}

// HandleMe reports the account behind the presented access token.
func (a *App) HandleMe(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]userResponse{"user": newUserResponse(user)})
}
