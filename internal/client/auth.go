package client

import (
	"context"
	"errors"
	"time"
)

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthResponse is the token envelope returned by register, login and refresh.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

type registerBody struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

type messageBody struct {
	Message string `json:"message"`
}

func (c *Client) Register(ctx context.Context, username, email, password string) (*User, error) {
	return c.authenticate(ctx, RegisterEndpoint(username, email, password))
}

func (c *Client) Login(ctx context.Context, username, password string) (*User, error) {
	return c.authenticate(ctx, LoginEndpoint(username, password))
}

func (c *Client) authenticate(ctx context.Context, ep Endpoint) (*User, error) {
	resp, err := Send[AuthResponse](ctx, c, ep)
	if err != nil {
		return nil, err
	}
	if err := c.tokens.StoreTokens(resp.AccessToken, resp.RefreshToken, resp.ExpiresIn, resp.User.ID); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Refresh exchanges the refresh token now, even if the access token is
// still fresh.
func (c *Client) Refresh(ctx context.Context) error {
	return c.refreshSession(ctx, true)
}

// Logout tells the server and drops the local session. The session is
// dropped even when the server call fails. A stale pair is refreshed first so
// the refresh token sent for revocation is the current one.
func (c *Client) Logout(ctx context.Context) error {
	if !c.tokens.IsLoggedIn() {
		return nil
	}
	ctx = context.WithValue(ctx, loggingOutKey{}, true)
	var err error
	if !c.tokens.IsTokenValid() {
		err = c.refreshSession(ctx, false)
	}
	if err == nil {
		err = c.send(ctx, LogoutEndpoint(c.tokens.RefreshToken()), nil)
	}
	if clearErr := c.tokens.ClearTokens(); clearErr != nil && err == nil {
		err = clearErr
	}
	if errors.Is(err, ErrUnauthorized) {
		// already logged out as far as the server is concerned
		return nil
	}
	return err
}

// Me returns the account of the current session.
func (c *Client) Me(ctx context.Context) (*User, error) {
	resp, err := Send[struct {
		User User `json:"user"`
	}](ctx, c, MeEndpoint())
	if err != nil {
		return nil, err
	}
	return &resp.User, nil
}
